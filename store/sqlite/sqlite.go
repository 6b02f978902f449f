// Package sqlite provides a SQLite implementation of the session
// ledger.
//
// Methods execute against s.conn, which is either the *sql.DB
// (autocommit) or a *sql.Tx when called through RunInTransaction. The
// manager records a session and its per-device events in one
// transaction so a crash never leaves a session without its steps.
//
// All SQL is prepared once at open time. RunInTransaction binds the
// prepared statements to the transaction with tx.StmtContext; the
// master statements stay valid across transactions.
//
// The database is opened in WAL mode so that `tracefabric history`
// can read while another process records.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/frobware/go-tracefabric/store"
)

// msec formats a duration as milliseconds with 3 decimal places.
func msec(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d.Microseconds())/1000)
}

//go:embed schema.sql
var schemaSQL string

// timeFormat sorts lexically in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeFormat, s)
}

// dbConn abstracts *sql.DB and *sql.Tx for query execution.
type dbConn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// sqliteStore implements store.Store using SQLite.
type sqliteStore struct {
	db     *sql.DB // original connection, used for BeginTx
	conn   dbConn  // active connection (db or tx)
	logger *slog.Logger

	stmtOpenSession  *sql.Stmt
	stmtCloseSession *sql.Stmt
	stmtGetSession   *sql.Stmt
	stmtListSessions *sql.Stmt
	stmtPrune        *sql.Stmt

	stmtRecordEvent *sql.Stmt
	stmtListEvents  *sql.Stmt
}

// pragma is a connection setting applied through the DSN.
type pragma struct {
	name, value string
}

var (
	// The CLI and a long-running shell may share the ledger file, so
	// writers wait on each other instead of failing with SQLITE_BUSY.
	filePragmas = []pragma{
		{"journal_mode", "WAL"},
		{"foreign_keys", "1"},
		{"busy_timeout", "5000"},
	}
	memoryPragmas = []pragma{{"foreign_keys", "1"}}
)

// New opens (creating if needed) the ledger at dbPath.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(dbPath, filePragmas))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s, err := open(ctx, db, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened database", "path", dbPath)
	return s, nil
}

// NewInMemory creates an in-memory ledger for testing.
func NewInMemory(ctx context.Context, logger *slog.Logger) (store.Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", ":memory:")

	db, err := sql.Open(driverName, dsn(":memory:", memoryPragmas))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Every pooled connection would otherwise get its own empty database.
	db.SetMaxOpenConns(1)

	return open(ctx, db, logger)
}

func open(ctx context.Context, db *sql.DB, logger *slog.Logger) (*sqliteStore, error) {
	s := &sqliteStore{db: db, conn: db, logger: logger}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.prepareStatements(ctx); err != nil {
		s.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

// Close closes all prepared statements and the database connection.
func (s *sqliteStore) Close() error {
	s.closeStatements()
	return s.db.Close()
}

func (s *sqliteStore) statements() []*sql.Stmt {
	return []*sql.Stmt{
		s.stmtOpenSession,
		s.stmtCloseSession,
		s.stmtGetSession,
		s.stmtListSessions,
		s.stmtPrune,
		s.stmtRecordEvent,
		s.stmtListEvents,
	}
}

// closeStatements closes all prepared statements. Close errors are
// ignored because the database is about to be closed.
func (s *sqliteStore) closeStatements() {
	for _, stmt := range s.statements() {
		if stmt != nil {
			stmt.Close()
		}
	}
}

func (s *sqliteStore) migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	return nil
}

// RunInTransaction executes fn within a database transaction. A nil
// return commits; an error rolls back.
func (s *sqliteStore) RunInTransaction(ctx context.Context, fn func(store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := &sqliteStore{
		db:     s.db,
		conn:   tx,
		logger: s.logger,

		stmtOpenSession:  tx.StmtContext(ctx, s.stmtOpenSession),
		stmtCloseSession: tx.StmtContext(ctx, s.stmtCloseSession),
		stmtGetSession:   tx.StmtContext(ctx, s.stmtGetSession),
		stmtListSessions: tx.StmtContext(ctx, s.stmtListSessions),
		stmtPrune:        tx.StmtContext(ctx, s.stmtPrune),
		stmtRecordEvent:  tx.StmtContext(ctx, s.stmtRecordEvent),
		stmtListEvents:   tx.StmtContext(ctx, s.stmtListEvents),
	}

	if err := fn(txStore); err != nil {
		return err
	}
	return tx.Commit()
}
