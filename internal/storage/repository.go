package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Table names of the canonical schema.
const (
	ObligationsTable  = "annual_charges"
	TransactionsTable = "transactions"
)

// Querier is the subset of *sql.DB and *sql.Tx the store operations need.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Options controls how a repository is opened.
type Options struct {
	// SkipMigrations opens an existing database as-is. Used for databases
	// written by older clients whose schema predates versioned migrations.
	SkipMigrations bool
}

// ErrRollback aborts a WithTx callback without reporting a failure.
var ErrRollback = errors.New("rollback requested")

type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository opens dbPath and migrates it to the latest schema.
func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	return NewSQLiteRepositoryWithOptions(dbPath, Options{})
}

func NewSQLiteRepositoryWithOptions(dbPath string, opts Options) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	// SQLite has a single writer; one connection keeps per-item transactions
	// from racing with reads on a second connection.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if !opts.SkipMigrations {
		if err := RunMigrations(dbPath); err != nil {
			db.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// DB exposes the underlying pool for administrative callers.
func (r *SQLiteRepository) DB() *sql.DB {
	return r.db
}

// WithTx runs fn inside one transaction, committing when fn returns nil.
// A committed transaction is reported as (true, nil); fn may ask for a
// rollback without failing by returning ErrRollback.
func (r *SQLiteRepository) WithTx(ctx context.Context, fn func(q Querier) error) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			slog.WarnContext(ctx, "Rollback failed", "error", rbErr)
		}
		if errors.Is(err, ErrRollback) {
			return false, nil
		}
		return false, err
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit transaction: %w", err)
	}
	return true, nil
}
