package stores

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite3"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Config contains SQLite store configuration.
type Config struct {
	// Path is the database file path.
	Path string

	// MaxOpenConns limits open connections (default: 10).
	MaxOpenConns int

	// MaxIdleConns limits idle connections (default: 5).
	MaxIdleConns int

	// ConnMaxLifetime limits connection reuse time (default: 1 hour).
	ConnMaxLifetime time.Duration
}

// DefaultConfig returns a store configuration with sensible defaults.
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	}
}

// SQLiteStore implements Store backed by a SQLite database file.
type SQLiteStore struct {
	config Config
	db     *sql.DB
}

// NewSQLiteStore creates a new SQLite store. Call Init before use.
func NewSQLiteStore(config Config) *SQLiteStore {
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 10
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.ConnMaxLifetime == 0 {
		config.ConnMaxLifetime = time.Hour
	}
	return &SQLiteStore{config: config}
}

// Init opens the database, configures the connection pool, and runs
// migrations.
func (s *SQLiteStore) Init(ctx context.Context) error {
	if s.config.Path == "" {
		return fmt.Errorf("database path is required")
	}

	if dir := filepath.Dir(s.config.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := fmt.Sprintf("%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL&_txlock=immediate", s.config.Path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.config.MaxOpenConns)
	db.SetMaxIdleConns(s.config.MaxIdleConns)
	db.SetConnMaxLifetime(s.config.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db

	if err := s.Migrate(ctx); err != nil {
		db.Close()
		s.db = nil
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Migrate applies the embedded schema migrations.
func (s *SQLiteStore) Migrate(_ context.Context) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	driver, err := sqlite3.WithInstance(s.db, &sqlite3.Config{})
	if err != nil {
		return fmt.Errorf("failed to create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", source, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migrator: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}

	return nil
}

// HealthCheck verifies the database is reachable.
func (s *SQLiteStore) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("store not initialized")
	}
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// CreateOperation inserts a new operation record.
func (s *SQLiteStore) CreateOperation(ctx context.Context, op *Operation) error {
	if op.ID == "" {
		return fmt.Errorf("operation id is required")
	}
	if op.CreatedAt.IsZero() {
		op.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO operations (
			id, root_package, environment, status, install_order,
			installed, already_installed, failed_package,
			error_code, error_message, started_at, duration_ms, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		op.ID, op.RootPackage, op.Environment, op.Status, op.InstallOrder,
		op.Installed, op.AlreadyInstalled, op.FailedPackage,
		op.ErrorCode, op.ErrorMessage, op.StartedAt, op.DurationMillis, op.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create operation: %w", err)
	}

	return nil
}

// GetOperation retrieves an operation by ID.
func (s *SQLiteStore) GetOperation(ctx context.Context, id string) (*Operation, error) {
	query := `
		SELECT id, root_package, environment, status, install_order,
		       installed, already_installed, failed_package,
		       error_code, error_message, started_at, duration_ms, created_at
		FROM operations WHERE id = ?`

	op, err := scanOperation(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("operation not found: %s", id)
		}
		return nil, fmt.Errorf("failed to get operation: %w", err)
	}

	return op, nil
}

// ListOperations returns operations matching the filter, most recent first.
// A limit of 0 means no limit.
func (s *SQLiteStore) ListOperations(ctx context.Context, filter OperationFilter, limit, offset int) ([]*Operation, error) {
	query := `
		SELECT id, root_package, environment, status, install_order,
		       installed, already_installed, failed_package,
		       error_code, error_message, started_at, duration_ms, created_at
		FROM operations WHERE 1=1`
	args := []interface{}{}

	if filter.RootPackage != "" {
		query += " AND root_package = ?"
		args = append(args, filter.RootPackage)
	}
	if filter.Environment != "" {
		query += " AND environment = ?"
		args = append(args, filter.Environment)
	}
	if filter.Status != "" {
		query += " AND status = ?"
		args = append(args, filter.Status)
	}

	query += " ORDER BY started_at DESC, id DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
		if offset > 0 {
			query += " OFFSET ?"
			args = append(args, offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list operations: %w", err)
	}
	defer rows.Close()

	var ops []*Operation
	for rows.Next() {
		op, err := scanOperation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan operation: %w", err)
		}
		ops = append(ops, op)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate operations: %w", err)
	}

	return ops, nil
}

// DeleteOperation removes an operation record and its events.
func (s *SQLiteStore) DeleteOperation(ctx context.Context, id string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, "DELETE FROM operation_events WHERE operation_id = ?", id); err != nil {
		return fmt.Errorf("failed to delete operation events: %w", err)
	}

	result, err := tx.ExecContext(ctx, "DELETE FROM operations WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete operation: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check delete result: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("operation not found: %s", id)
	}

	return tx.Commit()
}

// PruneOperations deletes all but the most recent keep records and returns
// the number deleted.
func (s *SQLiteStore) PruneOperations(ctx context.Context, keep int) (int64, error) {
	if keep < 0 {
		return 0, fmt.Errorf("keep must not be negative")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	keepQuery := "SELECT id FROM operations ORDER BY started_at DESC, id DESC LIMIT ?"

	if _, err := tx.ExecContext(ctx,
		"DELETE FROM operation_events WHERE operation_id NOT IN ("+keepQuery+")", keep); err != nil {
		return 0, fmt.Errorf("failed to prune operation events: %w", err)
	}

	result, err := tx.ExecContext(ctx,
		"DELETE FROM operations WHERE id NOT IN ("+keepQuery+")", keep)
	if err != nil {
		return 0, fmt.Errorf("failed to prune operations: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to check prune result: %w", err)
	}

	return affected, tx.Commit()
}

// AppendEvents inserts event records in one transaction. The operation row
// must exist (events cascade-delete with it).
func (s *SQLiteStore) AppendEvents(ctx context.Context, events []EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO operation_events (
			operation_id, seq, timestamp, kind, package, stream, text
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare event insert: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if ev.OperationID == "" {
			return fmt.Errorf("event operation id is required")
		}
		if _, err := stmt.ExecContext(ctx,
			ev.OperationID, ev.Seq, ev.Timestamp, ev.Kind, ev.Package, ev.Stream, ev.Text,
		); err != nil {
			return fmt.Errorf("failed to insert event %d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit events: %w", err)
	}

	return nil
}

// ListEvents returns an operation's events in sequence order.
func (s *SQLiteStore) ListEvents(ctx context.Context, operationID string) ([]EventRecord, error) {
	query := `
		SELECT operation_id, seq, timestamp, kind, package, stream, text
		FROM operation_events WHERE operation_id = ? ORDER BY seq`

	rows, err := s.db.QueryContext(ctx, query, operationID)
	if err != nil {
		return nil, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var ev EventRecord
		if err := rows.Scan(
			&ev.OperationID, &ev.Seq, &ev.Timestamp, &ev.Kind, &ev.Package, &ev.Stream, &ev.Text,
		); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate events: %w", err)
	}

	return events, nil
}

// rowScanner abstracts sql.Row and sql.Rows.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanOperation(row rowScanner) (*Operation, error) {
	var op Operation
	err := row.Scan(
		&op.ID, &op.RootPackage, &op.Environment, &op.Status, &op.InstallOrder,
		&op.Installed, &op.AlreadyInstalled, &op.FailedPackage,
		&op.ErrorCode, &op.ErrorMessage, &op.StartedAt, &op.DurationMillis, &op.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &op, nil
}
