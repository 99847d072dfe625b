package mailbox

import (
	"context"
	"log"
	"sync"
	"time"
)

// pendingDial lets concurrent GetConnection calls for one identity await a
// single in-flight dial instead of opening a second connection.
type pendingDial struct {
	done    chan struct{}
	session *Session
	err     error
}

// Manager deduplicates live sessions per mailbox identity: at most one
// Session per identity, and never two concurrent dials for the same one.
// Each GetConnection is balanced by a Release; the session is only torn
// down when the last holder releases it, so concurrent syncs sharing one
// identity never pull the connection out from under each other.
// Constructed once in the composition root and injected everywhere a
// session is needed; only the Manager creates or tears sessions down.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*Session
	refs     map[string]int
	pending  map[string]*pendingDial

	connectTimeout time.Duration

	// opener stands in for the real dial in tests
	opener func(ctx context.Context, identity string, creds Credentials) (*Session, error)
}

// NewManager creates an empty connection manager. A non-positive
// connectTimeout selects the session default.
func NewManager(connectTimeout time.Duration) *Manager {
	return &Manager{
		sessions:       make(map[string]*Session),
		refs:           make(map[string]int),
		pending:        make(map[string]*pendingDial),
		connectTimeout: connectTimeout,
	}
}

// GetConnection returns the live session for identity, reusing an existing
// one, joining an in-flight dial, or opening a new connection.
func (m *Manager) GetConnection(ctx context.Context, identity string, creds Credentials) (*Session, error) {
	m.mu.Lock()

	if s, ok := m.sessions[identity]; ok && s.IsActive() {
		m.refs[identity]++
		m.mu.Unlock()
		return s, nil
	}

	if p, ok := m.pending[identity]; ok {
		m.mu.Unlock()
		select {
		case <-p.done:
			if p.err != nil {
				return nil, p.err
			}
			m.mu.Lock()
			m.refs[identity]++
			m.mu.Unlock()
			return p.session, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p := &pendingDial{done: make(chan struct{})}
	m.pending[identity] = p
	m.mu.Unlock()

	open := m.open
	if m.opener != nil {
		open = m.opener
	}
	p.session, p.err = open(ctx, identity, creds)

	m.mu.Lock()
	delete(m.pending, identity)
	if p.err == nil {
		m.sessions[identity] = p.session
		m.refs[identity]++
	}
	m.mu.Unlock()
	close(p.done)

	return p.session, p.err
}

// Release balances one GetConnection. The session stays live while other
// holders remain; the last release tears it down.
func (m *Manager) Release(identity string) {
	m.mu.Lock()
	if m.refs[identity] > 1 {
		m.refs[identity]--
		m.mu.Unlock()
		return
	}
	delete(m.refs, identity)
	s, ok := m.sessions[identity]
	if ok {
		delete(m.sessions, identity)
	}
	m.mu.Unlock()

	if ok {
		s.SafeDisconnect()
		log.Printf("[IMAP] Released last hold, closed session for %s", identity)
	}
}

// RefreshConnection tears down any existing session for identity, even a
// usable one, and opens a fresh connection. Used after credential rotation.
func (m *Manager) RefreshConnection(ctx context.Context, identity string, creds Credentials) (*Session, error) {
	m.mu.Lock()
	if old, ok := m.sessions[identity]; ok {
		delete(m.sessions, identity)
		delete(m.refs, identity)
		m.mu.Unlock()
		old.SafeDisconnect()
	} else {
		m.mu.Unlock()
	}

	return m.GetConnection(ctx, identity, creds)
}

// Cleanup force-tears down the session for identity regardless of live
// holders, best effort. Used after credential rotation and on shutdown;
// a sync still sharing the session sees its next command fail as not
// connected rather than running against stale credentials.
func (m *Manager) Cleanup(identity string) {
	m.mu.Lock()
	s, ok := m.sessions[identity]
	if ok {
		delete(m.sessions, identity)
	}
	delete(m.refs, identity)
	m.mu.Unlock()

	if ok {
		s.SafeDisconnect()
		log.Printf("[IMAP] Cleaned up session for %s", identity)
	}
}

// ForceCleanupAll tears down every live session. Used on shutdown.
func (m *Manager) ForceCleanupAll() {
	m.mu.Lock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.sessions = make(map[string]*Session)
	m.refs = make(map[string]int)
	m.mu.Unlock()

	for _, s := range sessions {
		s.SafeDisconnect()
	}
	if len(sessions) > 0 {
		log.Printf("[IMAP] Force cleaned %d sessions", len(sessions))
	}
}

// ActiveCount reports the number of registered sessions.
func (m *Manager) ActiveCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

func (m *Manager) open(ctx context.Context, identity string, creds Credentials) (*Session, error) {
	s := NewSession(identity, creds, m.connectTimeout)
	if err := s.Connect(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
