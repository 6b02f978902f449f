package sqlite

import (
	"context"
	"fmt"
)

const sessionColumns = `id, source, sink, mode, agent, hops, status, error, enabled_at, disabled_at`

// prepareStatements prepares all SQL statements for reuse.
func (s *sqliteStore) prepareStatements(ctx context.Context) error {
	if err := s.prepareSessionStatements(ctx); err != nil {
		return err
	}
	return s.prepareEventStatements(ctx)
}

func (s *sqliteStore) prepareSessionStatements(ctx context.Context) error {
	var err error

	const sqlOpenSession = `
		INSERT INTO sessions (` + sessionColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)`
	if s.stmtOpenSession, err = s.db.PrepareContext(ctx, sqlOpenSession); err != nil {
		return fmt.Errorf("prepare OpenSession: %w", err)
	}

	const sqlCloseSession = `
		UPDATE sessions SET status = ?, error = ?, disabled_at = ?
		WHERE id = ?`
	if s.stmtCloseSession, err = s.db.PrepareContext(ctx, sqlCloseSession); err != nil {
		return fmt.Errorf("prepare CloseSession: %w", err)
	}

	const sqlGetSession = `SELECT ` + sessionColumns + ` FROM sessions WHERE id = ?`
	if s.stmtGetSession, err = s.db.PrepareContext(ctx, sqlGetSession); err != nil {
		return fmt.Errorf("prepare GetSession: %w", err)
	}

	const sqlListSessions = `
		SELECT ` + sessionColumns + `
		FROM sessions
		WHERE (? = '' OR status = ?)
		  AND (? = '' OR source = ?)
		ORDER BY enabled_at DESC, id
		LIMIT ?`
	if s.stmtListSessions, err = s.db.PrepareContext(ctx, sqlListSessions); err != nil {
		return fmt.Errorf("prepare ListSessions: %w", err)
	}

	const sqlPrune = `
		DELETE FROM sessions
		WHERE status != 'active' AND disabled_at IS NOT NULL AND disabled_at < ?`
	if s.stmtPrune, err = s.db.PrepareContext(ctx, sqlPrune); err != nil {
		return fmt.Errorf("prepare Prune: %w", err)
	}

	return nil
}

func (s *sqliteStore) prepareEventStatements(ctx context.Context) error {
	var err error

	const sqlRecordEvent = `
		INSERT INTO session_events (session_id, device, action, error, at)
		VALUES (?, ?, ?, ?, ?)`
	if s.stmtRecordEvent, err = s.db.PrepareContext(ctx, sqlRecordEvent); err != nil {
		return fmt.Errorf("prepare RecordEvent: %w", err)
	}

	const sqlListEvents = `
		SELECT session_id, device, action, error, at
		FROM session_events
		WHERE session_id = ?
		ORDER BY seq`
	if s.stmtListEvents, err = s.db.PrepareContext(ctx, sqlListEvents); err != nil {
		return fmt.Errorf("prepare ListEvents: %w", err)
	}

	return nil
}
