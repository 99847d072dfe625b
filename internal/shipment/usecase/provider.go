package usecase

import (
	"context"

	"shipmate-backend/pkg/mailbox"
)

// managerSessionProvider adapts the connection manager to the
// SessionProvider port. Release hands the hold back to the manager, which
// only disconnects once the last concurrent sync for the identity is done,
// so teardown stays the manager's sole responsibility.
type managerSessionProvider struct {
	manager *mailbox.Manager
}

// NewManagerSessionProvider wraps a connection manager as a SessionProvider
func NewManagerSessionProvider(m *mailbox.Manager) SessionProvider {
	return &managerSessionProvider{manager: m}
}

func (p *managerSessionProvider) Acquire(ctx context.Context, identity string, creds mailbox.Credentials) (MailSession, error) {
	return p.manager.GetConnection(ctx, identity, creds)
}

func (p *managerSessionProvider) Release(identity string) {
	p.manager.Release(identity)
}
