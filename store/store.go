// Package store defines the session ledger: a persistent record of
// every path activation, its outcome and the per-device steps taken.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Status is the lifecycle state of a session.
type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
	StatusFailed Status = "failed"
)

// ParseStatus parses a status name. The empty string is accepted and
// means "any" in filters.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case "", StatusActive, StatusClosed, StatusFailed:
		return Status(s), nil
	default:
		return "", fmt.Errorf("unknown session status: %q", s)
	}
}

// Action is a step recorded against a device.
type Action string

const (
	ActionClaim    Action = "claim"
	ActionShare    Action = "share"
	ActionProgram  Action = "program"
	ActionQuiesce  Action = "quiesce"
	ActionRelease  Action = "release"
	ActionRollback Action = "rollback"
	ActionBarrier  Action = "barrier"
)

// Session records one path activation.
type Session struct {
	ID         uuid.UUID           `json:"id"`
	Source     tracefabric.DeviceID `json:"source"`
	Sink       tracefabric.DeviceID `json:"sink"`
	Mode       tracefabric.Mode     `json:"mode"`
	Agent      tracefabric.AgentID  `json:"agent"`
	Hops       []tracefabric.Hop    `json:"hops"`
	Status     Status               `json:"status"`
	Error      string               `json:"error,omitempty"`
	EnabledAt  time.Time            `json:"enabled_at"`
	DisabledAt *time.Time           `json:"disabled_at,omitempty"`
}

// Event is a single device step within a session.
type Event struct {
	Session uuid.UUID            `json:"session"`
	Device  tracefabric.DeviceID `json:"device"`
	Action  Action               `json:"action"`
	Error   string               `json:"error,omitempty"`
	At      time.Time            `json:"at"`
}

// Filter selects sessions. Zero fields match everything; Limit <= 0 is
// unbounded.
type Filter struct {
	Status Status
	Source tracefabric.DeviceID
	Limit  int
}

// SessionWriter records sessions and their events.
type SessionWriter interface {
	OpenSession(ctx context.Context, s Session) error
	// CloseSession sets the final status of a session. Returns
	// ErrNotFound if the session does not exist.
	CloseSession(ctx context.Context, id uuid.UUID, status Status, errText string, at time.Time) error
	RecordEvent(ctx context.Context, e Event) error
	// Prune deletes sessions that ended before the cutoff and returns
	// how many were removed. Active sessions are never pruned.
	Prune(ctx context.Context, before time.Time) (int, error)
}

// SessionReader reads sessions back.
type SessionReader interface {
	// GetSession returns ErrNotFound if the session does not exist.
	GetSession(ctx context.Context, id uuid.UUID) (Session, error)
	ListSessions(ctx context.Context, f Filter) ([]Session, error)
	ListEvents(ctx context.Context, id uuid.UUID) ([]Event, error)
}

// Transactional provides atomic execution of store operations.
// The callback receives a Store that participates in the transaction.
type Transactional interface {
	RunInTransaction(ctx context.Context, fn func(Store) error) error
}

// Store is the full ledger.
type Store interface {
	io.Closer
	SessionWriter
	SessionReader
	Transactional
}
