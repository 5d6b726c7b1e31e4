package jobs

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"tonearm/internal/models"
	"tonearm/internal/shared"
)

const jobsSchema = `
CREATE TABLE IF NOT EXISTS jobs (
	id            TEXT PRIMARY KEY,
	fingerprint   TEXT NOT NULL,
	state         TEXT NOT NULL,
	result        TEXT,
	error_kind    TEXT,
	error_message TEXT,
	created_at    TEXT NOT NULL,
	completed_at  TEXT
);
CREATE INDEX IF NOT EXISTS idx_jobs_fingerprint_state ON jobs(fingerprint, state);
CREATE INDEX IF NOT EXISTS idx_jobs_completed_at ON jobs(completed_at);
`

// JobStore persists jobs in SQLite. State transitions use conditional
// updates so the pending → running → terminal ordering holds even when a
// cancellation races a finishing reconciliation.
type JobStore struct {
	db *sql.DB
}

// NewJobStore prepares the schema and returns a store over db.
func NewJobStore(db *sql.DB) (*JobStore, error) {
	if _, err := db.Exec(jobsSchema); err != nil {
		return nil, fmt.Errorf("failed to prepare jobs schema: %w", err)
	}
	return &JobStore{db: db}, nil
}

// Create inserts a job. Jobs created from cache hits may already be terminal.
func (s *JobStore) Create(ctx context.Context, job *models.Job) error {
	var result sql.NullString
	if job.Result != nil {
		data, err := json.Marshal(job.Result)
		if err != nil {
			return fmt.Errorf("failed to encode job result: %w", err)
		}
		result = sql.NullString{String: string(data), Valid: true}
	}

	var errKind, errMessage sql.NullString
	if job.Error != nil {
		errKind = sql.NullString{String: job.Error.Kind, Valid: true}
		errMessage = sql.NullString{String: job.Error.Message, Valid: true}
	}

	var completedAt sql.NullString
	if job.CompletedAt != nil {
		completedAt = sql.NullString{String: job.CompletedAt.UTC().Format(time.RFC3339Nano), Valid: true}
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, fingerprint, state, result, error_kind, error_message, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		job.ID, job.Fingerprint, string(job.State), result, errKind, errMessage,
		job.CreatedAt.UTC().Format(time.RFC3339Nano), completedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

// Get retrieves a job by ID, returning [shared.ErrJobNotFound] for unknown IDs.
func (s *JobStore) Get(ctx context.Context, id string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fingerprint, state, result, error_kind, error_message, created_at, completed_at
		 FROM jobs WHERE id = ?`, id)
	return scanJob(row)
}

// FindActive returns the pending or running job for a fingerprint, if any.
func (s *JobStore) FindActive(ctx context.Context, fingerprint string) (*models.Job, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, fingerprint, state, result, error_kind, error_message, created_at, completed_at
		 FROM jobs WHERE fingerprint = ? AND state IN ('pending', 'running')
		 ORDER BY created_at LIMIT 1`, fingerprint)
	return scanJob(row)
}

// MarkRunning transitions a pending job to running. Returns false when the
// job already left pending, such as after an early cancellation.
func (s *JobStore) MarkRunning(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ? WHERE id = ? AND state = ?`,
		string(models.JobRunning), id, string(models.JobPending))
	if err != nil {
		return false, fmt.Errorf("failed to mark job running: %w", err)
	}
	return affected(res)
}

// Complete transitions a running job to completed with its result. Returns
// false when the job is no longer running, in which case the result is
// discarded.
func (s *JobStore) Complete(ctx context.Context, id string, record *models.CanonicalRecord) (bool, error) {
	data, err := json.Marshal(record)
	if err != nil {
		return false, fmt.Errorf("failed to encode job result: %w", err)
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, result = ?, completed_at = ? WHERE id = ? AND state = ?`,
		string(models.JobCompleted), string(data), time.Now().UTC().Format(time.RFC3339Nano),
		id, string(models.JobRunning))
	if err != nil {
		return false, fmt.Errorf("failed to complete job: %w", err)
	}
	return affected(res)
}

// Fail transitions a pending or running job to failed with a typed error.
// Returns false when the job is already terminal.
func (s *JobStore) Fail(ctx context.Context, id, kind, message string) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE jobs SET state = ?, error_kind = ?, error_message = ?, completed_at = ?
		 WHERE id = ? AND state IN ('pending', 'running')`,
		string(models.JobFailed), kind, message, time.Now().UTC().Format(time.RFC3339Nano), id)
	if err != nil {
		return false, fmt.Errorf("failed to fail job: %w", err)
	}
	return affected(res)
}

// PruneTerminal deletes terminal jobs that completed before the retention
// window. Returns the number of jobs removed.
func (s *JobStore) PruneTerminal(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM jobs WHERE state IN ('completed', 'failed') AND completed_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func affected(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func scanJob(row *sql.Row) (*models.Job, error) {
	var job models.Job
	var state, createdAt string
	var result, errKind, errMessage, completedAt sql.NullString

	err := row.Scan(&job.ID, &job.Fingerprint, &state, &result, &errKind, &errMessage, &createdAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, shared.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}

	job.State = models.JobState(state)

	if result.Valid {
		var record models.CanonicalRecord
		if err := json.Unmarshal([]byte(result.String), &record); err != nil {
			return nil, fmt.Errorf("failed to decode job result: %w", err)
		}
		job.Result = &record
	}

	if errKind.Valid {
		job.Error = &models.JobError{Kind: errKind.String, Message: errMessage.String}
	}

	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		job.CreatedAt = t
	}
	if completedAt.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAt.String); err == nil {
			job.CompletedAt = &t
		}
	}

	return &job, nil
}
