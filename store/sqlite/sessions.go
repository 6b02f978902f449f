package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/frobware/go-tracefabric"
	"github.com/frobware/go-tracefabric/store"
)

// ----------------------------------------------------------------------------
// Session Operations
// ----------------------------------------------------------------------------

// OpenSession inserts a new session.
func (s *sqliteStore) OpenSession(ctx context.Context, sess store.Session) error {
	hops, err := cbor.Marshal(sess.Hops)
	if err != nil {
		return fmt.Errorf("encode hops: %w", err)
	}
	status := sess.Status
	if status == "" {
		status = store.StatusActive
	}

	args := []any{
		sess.ID.String(), string(sess.Source), string(sess.Sink), sess.Mode.String(),
		string(sess.Agent), hops, string(status), sess.Error, formatTime(sess.EnabledAt),
	}
	start := time.Now()
	if _, err := s.stmtOpenSession.ExecContext(ctx, args...); err != nil {
		s.logger.Debug("sql", "stmt", "OpenSession", "id", sess.ID, "duration_ms", msec(time.Since(start)), "error", err)
		return fmt.Errorf("open session %s: %w", sess.ID, err)
	}
	s.logger.Debug("sql", "stmt", "OpenSession", "id", sess.ID, "duration_ms", msec(time.Since(start)))
	return nil
}

// CloseSession records the end of a session.
func (s *sqliteStore) CloseSession(ctx context.Context, id uuid.UUID, status store.Status, errText string, at time.Time) error {
	start := time.Now()
	result, err := s.stmtCloseSession.ExecContext(ctx, string(status), errText, formatTime(at), id.String())
	if err != nil {
		s.logger.Debug("sql", "stmt", "CloseSession", "id", id, "duration_ms", msec(time.Since(start)), "error", err)
		return fmt.Errorf("close session %s: %w", id, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	s.logger.Debug("sql", "stmt", "CloseSession", "id", id, "status", status, "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	if rows == 0 {
		return fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// GetSession returns one session.
func (s *sqliteStore) GetSession(ctx context.Context, id uuid.UUID) (store.Session, error) {
	start := time.Now()
	row := s.stmtGetSession.QueryRowContext(ctx, id.String())
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Debug("sql", "stmt", "GetSession", "id", id, "duration_ms", msec(time.Since(start)), "rows", 0)
		return store.Session{}, fmt.Errorf("session %s: %w", id, store.ErrNotFound)
	}
	if err != nil {
		s.logger.Debug("sql", "stmt", "GetSession", "id", id, "duration_ms", msec(time.Since(start)), "error", err)
		return store.Session{}, err
	}
	s.logger.Debug("sql", "stmt", "GetSession", "id", id, "duration_ms", msec(time.Since(start)), "rows", 1)
	return sess, nil
}

// ListSessions returns sessions newest first.
func (s *sqliteStore) ListSessions(ctx context.Context, f store.Filter) ([]store.Session, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}

	start := time.Now()
	rows, err := s.stmtListSessions.QueryContext(ctx,
		string(f.Status), string(f.Status),
		string(f.Source), string(f.Source),
		limit)
	if err != nil {
		s.logger.Debug("sql", "stmt", "ListSessions", "duration_ms", msec(time.Since(start)), "error", err)
		return nil, err
	}
	defer rows.Close()

	var result []store.Session
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			s.logger.Debug("sql", "stmt", "ListSessions", "duration_ms", msec(time.Since(start)), "error", err)
			return nil, err
		}
		result = append(result, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug("sql", "stmt", "ListSessions", "duration_ms", msec(time.Since(start)), "rows", len(result))
	return result, nil
}

// Prune deletes ended sessions older than before.
func (s *sqliteStore) Prune(ctx context.Context, before time.Time) (int, error) {
	start := time.Now()
	result, err := s.stmtPrune.ExecContext(ctx, formatTime(before))
	if err != nil {
		s.logger.Debug("sql", "stmt", "Prune", "duration_ms", msec(time.Since(start)), "error", err)
		return 0, fmt.Errorf("prune sessions: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	s.logger.Debug("sql", "stmt", "Prune", "duration_ms", msec(time.Since(start)), "rows_affected", rows)
	return int(rows), nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSession(row scanner) (store.Session, error) {
	var (
		sess                                          store.Session
		id, source, sink, mode, agent, status, errTxt string
		hops                                          []byte
		enabledAt                                     string
		disabledAt                                    sql.NullString
	)
	if err := row.Scan(&id, &source, &sink, &mode, &agent, &hops, &status, &errTxt, &enabledAt, &disabledAt); err != nil {
		return store.Session{}, err
	}

	var err error
	if sess.ID, err = uuid.Parse(id); err != nil {
		return store.Session{}, fmt.Errorf("session id %q: %w", id, err)
	}
	if sess.Mode, err = tracefabric.ParseMode(mode); err != nil {
		return store.Session{}, fmt.Errorf("session %s: %w", id, err)
	}
	if err := cbor.Unmarshal(hops, &sess.Hops); err != nil {
		return store.Session{}, fmt.Errorf("session %s: decode hops: %w", id, err)
	}
	if sess.EnabledAt, err = parseTime(enabledAt); err != nil {
		return store.Session{}, fmt.Errorf("session %s: enabled_at: %w", id, err)
	}
	if disabledAt.Valid {
		t, err := parseTime(disabledAt.String)
		if err != nil {
			return store.Session{}, fmt.Errorf("session %s: disabled_at: %w", id, err)
		}
		sess.DisabledAt = &t
	}

	sess.Source = tracefabric.DeviceID(source)
	sess.Sink = tracefabric.DeviceID(sink)
	sess.Agent = tracefabric.AgentID(agent)
	sess.Status = store.Status(status)
	sess.Error = errTxt
	return sess, nil
}

// ----------------------------------------------------------------------------
// Event Operations
// ----------------------------------------------------------------------------

// RecordEvent appends a device step to a session.
func (s *sqliteStore) RecordEvent(ctx context.Context, e store.Event) error {
	start := time.Now()
	_, err := s.stmtRecordEvent.ExecContext(ctx, e.Session.String(), string(e.Device), string(e.Action), e.Error, formatTime(e.At))
	if err != nil {
		s.logger.Debug("sql", "stmt", "RecordEvent", "args", []any{e.Session, e.Device, e.Action}, "duration_ms", msec(time.Since(start)), "error", err)
		return fmt.Errorf("record event: %w", err)
	}
	s.logger.Debug("sql", "stmt", "RecordEvent", "args", []any{e.Session, e.Device, e.Action}, "duration_ms", msec(time.Since(start)))
	return nil
}

// ListEvents returns a session's events in the order recorded.
func (s *sqliteStore) ListEvents(ctx context.Context, id uuid.UUID) ([]store.Event, error) {
	start := time.Now()
	rows, err := s.stmtListEvents.QueryContext(ctx, id.String())
	if err != nil {
		s.logger.Debug("sql", "stmt", "ListEvents", "id", id, "duration_ms", msec(time.Since(start)), "error", err)
		return nil, err
	}
	defer rows.Close()

	var result []store.Event
	for rows.Next() {
		var (
			e                             store.Event
			sessionID, device, action, at string
		)
		if err := rows.Scan(&sessionID, &device, &action, &e.Error, &at); err != nil {
			return nil, err
		}
		if e.Session, err = uuid.Parse(sessionID); err != nil {
			return nil, err
		}
		if e.At, err = parseTime(at); err != nil {
			return nil, err
		}
		e.Device = tracefabric.DeviceID(device)
		e.Action = store.Action(action)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	s.logger.Debug("sql", "stmt", "ListEvents", "id", id, "duration_ms", msec(time.Since(start)), "rows", len(result))
	return result, nil
}
