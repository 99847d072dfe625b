package usecase

import (
	"context"
	"errors"
	"time"

	shipmentdomain "shipmate-backend/internal/shipment/domain"
	"shipmate-backend/pkg/mailbox"
)

// ErrSyncBusy is returned when another refresh already holds the lock for
// the same user/group key and did not finish within the wait window.
var ErrSyncBusy = errors.New("sync already in progress, try again shortly")

// MailSession is the slice of the protocol session the orchestrator uses
type MailSession interface {
	SearchByDateAndKeyword(ctx context.Context, since, before time.Time, keywords []string) ([]*mailbox.RawMessage, error)
	SearchByGroupCode(ctx context.Context, code string) ([]*mailbox.RawMessage, error)
}

// SessionProvider hands out one live session per mailbox identity and takes
// it back when a sync finishes
type SessionProvider interface {
	Acquire(ctx context.Context, identity string, creds mailbox.Credentials) (MailSession, error)
	Release(identity string)
}

// CredentialSource supplies mailbox credentials per user. Implemented by the
// auth subsystem; the orchestrator treats the values as opaque.
type CredentialSource interface {
	MailboxCredentials(userID string) (identity string, creds mailbox.Credentials, err error)
}

// EventService defines interface for sending notifications
type EventService interface {
	SendToUser(userID string, eventType string, payload interface{})
}

// SyncReport summarizes what one sync pass changed
type SyncReport struct {
	GroupsSeen    int      `json:"groups_seen"`
	NewMessages   int      `json:"new_messages"`
	CreatedGroups []string `json:"created_groups,omitempty"`
	UpdatedGroups []string `json:"updated_groups,omitempty"`
}

// ShipmentUsecase defines the interface for shipment sync and read operations
type ShipmentUsecase interface {
	// SyncRange runs a full sweep over a date range. Zero bounds default to
	// the last day. Serialized per user via the lock manager.
	SyncRange(ctx context.Context, userID string, since, before time.Time) (*SyncReport, error)
	// SyncGroup runs a targeted, unbounded-date lookup for one group code.
	// Serialized per (user, code) via the lock manager.
	SyncGroup(ctx context.Context, userID, code string) (*SyncReport, error)
	// ListGroups returns the user's groups, most recently updated first
	ListGroups(userID string) ([]shipmentdomain.ShipmentGroup, error)
	// CountMessages returns per-group message counts keyed by group code
	CountMessages(userID string) (map[string]int, error)
	// GetGroupMessages returns a group's messages oldest first
	GetGroupMessages(userID, code string) ([]shipmentdomain.ShipmentEmail, error)
	// GetMessage returns one message with attachments, nil if absent
	GetMessage(userID, messageID string) (*shipmentdomain.ShipmentEmail, error)
	// GetSummaries returns cached extraction results keyed by group code
	GetSummaries(userID string, codes []string) (map[string]string, error)

	// SetEventService allows wiring EventService after creation
	SetEventService(svc EventService)
	// SetExtractWorker allows wiring the extraction worker after creation
	SetExtractWorker(w *ExtractWorkerService)
}
