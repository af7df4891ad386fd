package ledger

import (
	"context"
	"database/sql"
	_ "embed"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	apperrors "graphseed/internal/errors"
)

//go:embed schema.sql
var schema string

const timeLayout = time.RFC3339Nano

// SQLiteStore persists load history in a SQLite database file.
type SQLiteStore struct {
	db   *sql.DB
	path string
	now  func() time.Time
}

// Open opens (creating when needed) the ledger at path and applies the schema.
func Open(ctx context.Context, path string) (*SQLiteStore, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, openError(path, "failed to create ledger directory", err)
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, openError(path, "failed to open ledger", err)
	}
	// Parallel loaders share one connection; SQLite serialises writers anyway.
	db.SetMaxOpenConns(1)

	store := NewSQLiteStore(db)
	store.path = path
	if err := store.Bootstrap(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// NewSQLiteStore wraps an already opened database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db, now: time.Now}
}

// Bootstrap creates the schema.
func (s *SQLiteStore) Bootstrap(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return openError(s.path, "failed to apply ledger schema", err)
	}
	return nil
}

// Path returns the database file path.
func (s *SQLiteStore) Path() string {
	return s.path
}

func (s *SQLiteStore) BeginRun(ctx context.Context, command string) (Run, error) {
	run := Run{
		ID:        uuid.NewString(),
		Command:   command,
		Status:    RunRunning,
		StartedAt: s.now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, command, status, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Command, run.Status, run.StartedAt.Format(timeLayout))
	if err != nil {
		return Run{}, queryError("BeginRun", err)
	}
	return run, nil
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID, status string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, finished_at = ? WHERE id = ?`,
		status, s.now().UTC().Format(timeLayout), runID)
	if err != nil {
		return queryError("FinishRun", err).WithField("run_id", runID)
	}
	return nil
}

func (s *SQLiteStore) RecordLoad(ctx context.Context, rec LoadRecord) error {
	if rec.LoadedAt.IsZero() {
		rec.LoadedAt = s.now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO loads (run_id, path, repository, context, sha256, size, format, status, error, duration_ms, loaded_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Path, rec.Repository, rec.Context, rec.SHA256, rec.Size, rec.Format,
		rec.Status, rec.Error, rec.Duration.Milliseconds(), rec.LoadedAt.UTC().Format(timeLayout))
	if err != nil {
		return queryError("RecordLoad", err).WithField("path", rec.Path)
	}
	return nil
}

const selectLoads = `SELECT run_id, path, repository, context, sha256, size, format, status, error, duration_ms, loaded_at FROM loads`

func (s *SQLiteStore) LastLoad(ctx context.Context, key Key) (LoadRecord, bool, error) {
	row := s.db.QueryRowContext(ctx,
		selectLoads+` WHERE path = ? AND repository = ? AND context = ? AND status = ? ORDER BY id DESC LIMIT 1`,
		key.Path, key.Repository, key.Context, LoadLoaded)

	rec, err := scanLoad(row)
	if err == sql.ErrNoRows {
		return LoadRecord{}, false, nil
	}
	if err != nil {
		return LoadRecord{}, false, queryError("LastLoad", err).WithField("path", key.Path)
	}
	return rec, true, nil
}

func (s *SQLiteStore) History(ctx context.Context, limit int) ([]LoadRecord, error) {
	query := selectLoads + ` ORDER BY id DESC`
	args := []interface{}{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError("History", err)
	}
	defer rows.Close()

	var records []LoadRecord
	for rows.Next() {
		rec, err := scanLoad(rows)
		if err != nil {
			return nil, queryError("History", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("History", err)
	}
	return records, nil
}

func (s *SQLiteStore) Forget(ctx context.Context, repository string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM loads WHERE repository = ?`, repository)
	if err != nil {
		return 0, queryError("Forget", err).WithField("repository", repository)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLoad(row scanner) (LoadRecord, error) {
	var (
		rec        LoadRecord
		durationMS int64
		loadedAt   string
	)
	if err := row.Scan(&rec.RunID, &rec.Path, &rec.Repository, &rec.Context, &rec.SHA256, &rec.Size,
		&rec.Format, &rec.Status, &rec.Error, &durationMS, &loadedAt); err != nil {
		return LoadRecord{}, err
	}
	rec.Duration = time.Duration(durationMS) * time.Millisecond
	t, err := time.Parse(timeLayout, loadedAt)
	if err != nil {
		return LoadRecord{}, err
	}
	rec.LoadedAt = t
	return rec, nil
}

func openError(path, message string, err error) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCategoryStorage, apperrors.CodeLedgerOpen, message, err).
		WithModule("ledger").
		WithOperation("Open").
		WithField("path", path)
}

func queryError(operation string, err error) *apperrors.AppError {
	return apperrors.New(apperrors.ErrCategoryStorage, apperrors.CodeLedgerQuery, "ledger query failed", err).
		WithModule("ledger").
		WithOperation(operation)
}

var _ Store = (*SQLiteStore)(nil)
