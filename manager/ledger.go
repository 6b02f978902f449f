package manager

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric/store"
)

func (a *activation) sessionRecord(status store.Status, err error) store.Session {
	p := a.path
	s := store.Session{
		ID:        a.session,
		Source:    p.Source(),
		Sink:      p.Sink(),
		Mode:      p.Mode,
		Agent:     p.Agent,
		Hops:      p.Hops,
		Status:    status,
		EnabledAt: a.start,
	}
	if err != nil {
		s.Error = err.Error()
		end := a.m.now()
		s.DisabledAt = &end
	}
	return s
}

// recordOpen writes a session and its events in one transaction.
func (m *Manager) recordOpen(ctx context.Context, sess store.Session, events []store.Event) {
	if m.store == nil {
		return
	}
	err := m.store.RunInTransaction(ctx, func(tx store.Store) error {
		if err := tx.OpenSession(ctx, sess); err != nil {
			return err
		}
		if sess.DisabledAt != nil {
			if err := tx.CloseSession(ctx, sess.ID, sess.Status, sess.Error, *sess.DisabledAt); err != nil {
				return err
			}
		}
		for _, e := range events {
			if err := tx.RecordEvent(ctx, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		m.logger.WarnContext(ctx, "ledger write failed", "session", sess.ID, "error", err)
	}
}

// recordClose appends events to a session and ends it.
func (m *Manager) recordClose(ctx context.Context, id uuid.UUID, status store.Status, errText string, at time.Time, events []store.Event) {
	if m.store == nil || id == uuid.Nil {
		return
	}
	err := m.store.RunInTransaction(ctx, func(tx store.Store) error {
		for _, e := range events {
			if err := tx.RecordEvent(ctx, e); err != nil {
				return err
			}
		}
		return tx.CloseSession(ctx, id, status, errText, at)
	})
	if err != nil {
		m.logger.WarnContext(ctx, "ledger write failed", "session", id, "error", err)
	}
}

// History returns recorded sessions matching f.
func (m *Manager) History(ctx context.Context, f store.Filter) ([]store.Session, error) {
	if m.store == nil {
		return nil, nil
	}
	return m.store.ListSessions(ctx, f)
}
