// Package sqlite persists run records in a SQLite database, one row per run
// with step outcomes, output, and usage stored as JSON columns.
package sqlite

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	_ "modernc.org/sqlite"

	skilltypes "github.com/relaycrm/skillengine/pkg/types/skill"
)

// Store implements runstore.Store using a SQLite database.
type Store struct {
	dbPath string
	db     *sqlx.DB
}

// NewStore opens or creates the run database at the given path.
func NewStore(ctx context.Context, dbPath string) (*Store, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, errors.Wrap(err, "failed to create database directory")
	}

	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open database")
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to ping database")
	}

	if err := configureDatabase(ctx, db); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to configure database")
	}

	store := &Store{dbPath: dbPath, db: db}
	if err := store.initializeSchema(ctx); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "failed to initialize schema")
	}
	return store, nil
}

// configureDatabase sets up SQLite pragmas for optimal WAL mode performance.
func configureDatabase(ctx context.Context, db *sqlx.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA cache_size=1000",
		"PRAGMA temp_store=memory",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return errors.Wrapf(err, "failed to execute pragma: %s", pragma)
		}
	}

	db.SetMaxIdleConns(1)
	db.SetMaxOpenConns(1)

	var journalMode string
	if err := db.QueryRowContext(ctx, "PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return errors.Wrap(err, "failed to query journal mode")
	}
	if strings.ToLower(journalMode) != "wal" {
		return errors.Errorf("WAL mode not enabled. Current mode: %s", journalMode)
	}
	return nil
}

func (s *Store) initializeSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, createRunsTable); err != nil {
		return errors.Wrap(err, "failed to create runs table")
	}
	for _, index := range createRunIndexes {
		if _, err := s.db.ExecContext(ctx, index); err != nil {
			return errors.Wrap(err, "failed to create index")
		}
	}
	return nil
}

// CreateRun inserts the initial running record.
func (s *Store) CreateRun(ctx context.Context, record *skilltypes.RunRecord) error {
	query := `
		INSERT INTO runs (
			id, workflow_id, tenant_id, status, steps, output, errors,
			usage, tool_calls, started_at, completed_at
		) VALUES (
			:id, :workflow_id, :tenant_id, :status, :steps, :output, :errors,
			:usage, :tool_calls, :started_at, :completed_at
		)
	`
	if _, err := s.db.NamedExecContext(ctx, query, fromRunRecord(record)); err != nil {
		return errors.Wrap(err, "failed to insert run record")
	}
	return nil
}

// FinalizeRun writes the run's terminal state. The row must exist; the upsert
// covers the case where the initial insert was lost.
func (s *Store) FinalizeRun(ctx context.Context, record *skilltypes.RunRecord) error {
	query := `
		INSERT INTO runs (
			id, workflow_id, tenant_id, status, steps, output, errors,
			usage, tool_calls, started_at, completed_at
		) VALUES (
			:id, :workflow_id, :tenant_id, :status, :steps, :output, :errors,
			:usage, :tool_calls, :started_at, :completed_at
		)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			steps = excluded.steps,
			output = excluded.output,
			errors = excluded.errors,
			usage = excluded.usage,
			tool_calls = excluded.tool_calls,
			completed_at = excluded.completed_at
	`
	if _, err := s.db.NamedExecContext(ctx, query, fromRunRecord(record)); err != nil {
		return errors.Wrap(err, "failed to finalize run record")
	}
	return nil
}

// GetRun loads one run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*skilltypes.RunRecord, error) {
	var row dbRunRecord
	query := `SELECT id, workflow_id, tenant_id, status, steps, output, errors,
		usage, tool_calls, started_at, completed_at
		FROM runs WHERE id = ?`
	if err := s.db.GetContext(ctx, &row, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, errors.Errorf("run not found: %s", id)
		}
		return nil, errors.Wrap(err, "failed to load run record")
	}
	return row.toRunRecord(), nil
}

// ListRuns returns a tenant's runs newest first, bounded by limit.
func (s *Store) ListRuns(ctx context.Context, tenantID string, limit int) ([]*skilltypes.RunRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []dbRunRecord
	query := `SELECT id, workflow_id, tenant_id, status, steps, output, errors,
		usage, tool_calls, started_at, completed_at
		FROM runs WHERE tenant_id = ?
		ORDER BY started_at DESC LIMIT ?`
	if err := s.db.SelectContext(ctx, &rows, query, tenantID, limit); err != nil {
		return nil, errors.Wrap(err, "failed to list run records")
	}

	records := make([]*skilltypes.RunRecord, 0, len(rows))
	for i := range rows {
		records = append(records, rows[i].toRunRecord())
	}
	return records, nil
}

// PruneBefore deletes finished runs older than the cutoff and returns the
// number removed.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM runs WHERE status != ? AND started_at < ?`,
		skilltypes.RunStatusRunning, cutoff)
	if err != nil {
		return 0, errors.Wrap(err, "failed to prune run records")
	}
	return result.RowsAffected()
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
