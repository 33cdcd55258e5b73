package store

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mattn/go-sqlite3"

	"github.com/roach88/elementstore/internal/querysql"
	"github.com/roach88/elementstore/internal/queryir"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on element_ref_items.target_id
const currentSchemaVersion = 1

// driverName is the database/sql driver registered with the connect hook.
const driverName = "sqlite3_elementstore"

var registerOnce sync.Once

// Options configures Open.
type Options struct {
	// BusyTimeout is how long a connection waits for a lock.
	BusyTimeout time.Duration

	// Logger receives save and find diagnostics. Default: slog.Default().
	Logger *slog.Logger
}

// DefaultOptions returns the options Open uses.
func DefaultOptions() Options {
	return Options{
		BusyTimeout: 5 * time.Second,
		Logger:      slog.Default(),
	}
}

func (o *Options) validate() {
	if o.BusyTimeout <= 0 {
		o.BusyTimeout = 5 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
}

// Store provides durable storage for elements, their revision chains and
// their types. Uses SQLite with WAL mode for concurrent read access.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open creates or opens a SQLite database at the given path with
// DefaultOptions.
func Open(path string) (*Store, error) {
	return OpenWithOptions(path, DefaultOptions())
}

// OpenWithOptions creates or opens a SQLite database at the given path.
// Applies required pragmas and migrations automatically.
//
// This function is idempotent - safe to call multiple times.
func OpenWithOptions(path string, opts Options) (*Store, error) {
	opts.validate()
	registerDriver()

	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d", path, opts.BusyTimeout.Milliseconds())
	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time, so limit connections
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	return &Store{db: db, logger: opts.Logger}, nil
}

// Name identifies the backend in logs and metrics.
func (s *Store) Name() string { return "sqlite" }

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying sql.DB for direct queries.
// Use with caution - prefer using Store methods when available.
func (s *Store) DB() *sql.DB {
	return s.db
}

// registerDriver registers the sqlite3 driver variant whose connections
// carry the casefold function and the required pragmas.
func registerDriver() {
	registerOnce.Do(func() {
		sql.Register(driverName, &sqlite3.SQLiteDriver{
			ConnectHook: func(conn *sqlite3.SQLiteConn) error {
				if err := conn.RegisterFunc(querysql.FoldFunc, casefold, true); err != nil {
					return fmt.Errorf("register %s: %w", querysql.FoldFunc, err)
				}
				return applyPragmas(conn)
			},
		})
	})
}

// casefold folds text arguments and passes everything else through, so
// NULL stays NULL.
func casefold(v any) any {
	switch s := v.(type) {
	case string:
		return queryir.Fold(s)
	case []byte:
		return queryir.Fold(string(s))
	default:
		return v
	}
}

// applyPragmas sets required SQLite configuration on one connection.
func applyPragmas(conn *sqlite3.SQLiteConn) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA case_sensitive_like = ON",
	}

	for _, pragma := range pragmas {
		if _, err := conn.Exec(pragma, nil); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}

// applySchema creates tables if they don't exist and runs migrations.
// This function is idempotent.
func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}

	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if err := migrateToV1(db); err != nil {
			return err
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}

	return nil
}

// migrateToV1 adds the reverse reference index for databases created
// before v1. New databases get it from schema.sql.
func migrateToV1(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_ref_items_target
		ON element_ref_items(target_id)
	`)
	if err != nil {
		return fmt.Errorf("migrate to v1: %w", err)
	}
	return nil
}

// verifyPragma checks that a pragma is set to the expected value.
// Used for testing.
func (s *Store) verifyPragma(name, expected string) error {
	var value string
	query := fmt.Sprintf("PRAGMA %s", name)
	if err := s.db.QueryRow(query).Scan(&value); err != nil {
		return fmt.Errorf("failed to query %s: %w", name, err)
	}
	if value != expected {
		return fmt.Errorf("%s = %q, expected %q", name, value, expected)
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
