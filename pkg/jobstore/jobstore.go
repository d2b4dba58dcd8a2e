// Package jobstore persists pending job records in SQLite so a later run can
// resume polling them.
package jobstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	x402 "github.com/castlens/x402client"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned by Get for an unknown job key.
var ErrNotFound = errors.New("jobstore: job not found")

const schema = `
CREATE TABLE IF NOT EXISTS pending_jobs (
	job_key         TEXT PRIMARY KEY,
	job_type        TEXT NOT NULL,
	status          TEXT NOT NULL DEFAULT '',
	started_at      INTEGER NOT NULL,
	message         TEXT NOT NULL DEFAULT '',
	endpoint_path   TEXT NOT NULL DEFAULT '',
	endpoint_method TEXT NOT NULL DEFAULT '',
	updated_at      INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_pending_jobs_started ON pending_jobs(started_at);
`

// Record is a pending job plus the request needed to poll it again.
type Record struct {
	x402.PendingJob
	EndpointPath   string    `json:"endpoint_path"`
	EndpointMethod string    `json:"endpoint_method"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Store is a SQLite backed pending job table.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens or creates the database at path. ":memory:" gives a private
// in-memory database.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", path)
	if path == ":memory:" {
		dsn = ":memory:"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open job store: %w", err)
	}
	// One connection keeps :memory: databases shared and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize pending_jobs table: %w", err)
	}
	return &Store{db: db, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Save inserts or replaces the record for rec.JobKey.
func (s *Store) Save(ctx context.Context, rec Record) error {
	if rec.JobKey == "" {
		return fmt.Errorf("jobstore: job key is required")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = s.now()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO pending_jobs (job_key, job_type, status, started_at, message, endpoint_path, endpoint_method, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(job_key) DO UPDATE SET
			job_type = excluded.job_type,
			status = excluded.status,
			message = excluded.message,
			endpoint_path = excluded.endpoint_path,
			endpoint_method = excluded.endpoint_method,
			updated_at = excluded.updated_at`,
		rec.JobKey, rec.JobType, string(rec.Status), rec.StartedAt.UnixMilli(), rec.Message,
		rec.EndpointPath, rec.EndpointMethod, s.now().UnixMilli())
	if err != nil {
		return fmt.Errorf("failed to save job %s: %w", rec.JobKey, err)
	}
	return nil
}

// UpdateStatus records a status notification for an existing job.
func (s *Store) UpdateStatus(ctx context.Context, jobKey string, status x402.JobStatus, message string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE pending_jobs SET status = ?, message = ?, updated_at = ? WHERE job_key = ?`,
		string(status), message, s.now().UnixMilli(), jobKey)
	if err != nil {
		return fmt.Errorf("failed to update job %s: %w", jobKey, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Get returns the record for jobKey.
func (s *Store) Get(ctx context.Context, jobKey string) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT job_key, job_type, status, started_at, message, endpoint_path, endpoint_method, updated_at
		FROM pending_jobs WHERE job_key = ?`, jobKey)

	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load job %s: %w", jobKey, err)
	}
	return rec, nil
}

// List returns every record, oldest first.
func (s *Store) List(ctx context.Context) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT job_key, job_type, status, started_at, message, endpoint_path, endpoint_method, updated_at
		FROM pending_jobs ORDER BY started_at, job_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan job: %w", err)
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

// Delete removes the record for jobKey. Deleting an unknown key is not an error.
func (s *Store) Delete(ctx context.Context, jobKey string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM pending_jobs WHERE job_key = ?`, jobKey); err != nil {
		return fmt.Errorf("failed to delete job %s: %w", jobKey, err)
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(sc scanner) (*Record, error) {
	var (
		rec       Record
		status    string
		startedAt int64
		updatedAt int64
	)
	if err := sc.Scan(&rec.JobKey, &rec.JobType, &status, &startedAt, &rec.Message,
		&rec.EndpointPath, &rec.EndpointMethod, &updatedAt); err != nil {
		return nil, err
	}
	rec.Status = x402.JobStatus(status)
	rec.StartedAt = time.UnixMilli(startedAt)
	rec.UpdatedAt = time.UnixMilli(updatedAt)
	return &rec, nil
}
