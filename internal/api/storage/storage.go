package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/cuongbtq/market-bridge/internal/api/model"
	"github.com/cuongbtq/market-bridge/internal/domain"
	"github.com/cuongbtq/market-bridge/shared/postgresql"
	"github.com/jmoiron/sqlx"
)

const schema = `
	CREATE TABLE IF NOT EXISTS scrape_jobs (
		job_id      UUID PRIMARY KEY,
		client_key  TEXT NOT NULL,
		query       TEXT NOT NULL,
		marketplace TEXT NOT NULL,
		page        INTEGER NOT NULL,
		status      TEXT NOT NULL,
		error       TEXT,
		created_at  TIMESTAMPTZ NOT NULL,
		started_at  TIMESTAMPTZ,
		finished_at TIMESTAMPTZ,
		updated_at  TIMESTAMPTZ NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scrape_jobs_created ON scrape_jobs (created_at DESC, job_id DESC);
	CREATE INDEX IF NOT EXISTS idx_scrape_jobs_client ON scrape_jobs (client_key, created_at DESC);
`

// Storage persists the job journal in PostgreSQL
type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

// EnsureSchema creates the journal table when it does not exist yet
func (s *Storage) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create journal schema: %w", err)
	}
	return nil
}

// RecordQueued inserts a QUEUED row. A repeated call for the same job is ignored.
func (s *Storage) RecordQueued(ctx context.Context, job domain.Job) error {
	query := `
		INSERT INTO scrape_jobs (
			job_id, client_key, query, marketplace,
			page, status, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $7
		)
		ON CONFLICT (job_id) DO NOTHING
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.ClientKey,
		job.Query,
		job.Marketplace,
		job.Page,
		domain.JobStatusQueued,
		job.EnqueuedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record queued job: %w", err)
	}

	return nil
}

// RecordStarted marks a job RUNNING, inserting the row if the queued write was lost
func (s *Storage) RecordStarted(ctx context.Context, job domain.Job) error {
	now := time.Now()
	query := `
		INSERT INTO scrape_jobs (
			job_id, client_key, query, marketplace,
			page, status, created_at, started_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $8
		)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			started_at = EXCLUDED.started_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.ClientKey,
		job.Query,
		job.Marketplace,
		job.Page,
		domain.JobStatusRunning,
		job.EnqueuedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to record started job: %w", err)
	}

	return nil
}

// RecordFinished stores the terminal status of a job
func (s *Storage) RecordFinished(ctx context.Context, job domain.Job, outcome domain.Outcome) error {
	now := time.Now()

	var reason *string
	if r := outcome.Reason(); r != "" {
		reason = &r
	}

	query := `
		INSERT INTO scrape_jobs (
			job_id, client_key, query, marketplace,
			page, status, error, created_at, finished_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5, $6, $7, $8, $9, $9
		)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			finished_at = EXCLUDED.finished_at,
			updated_at = EXCLUDED.updated_at
	`

	_, err := s.db.ExecContext(
		ctx,
		query,
		job.ID,
		job.ClientKey,
		job.Query,
		job.Marketplace,
		job.Page,
		outcome.JournalStatus(),
		reason,
		job.EnqueuedAt,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to record finished job: %w", err)
	}

	return nil
}

func (s *Storage) GetJobByID(ctx context.Context, jobID string) (*model.Job, error) {
	var job model.Job
	query := `
		SELECT
			job_id, client_key, query, marketplace, page, status,
			error, created_at, started_at, finished_at, updated_at
		FROM scrape_jobs
		WHERE job_id = $1
	`

	err := s.db.GetContext(ctx, &job, query, jobID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}

	return &job, nil
}

type JobFilter struct {
	ClientKey   string
	Marketplace string
	Status      string
	PageSize    int
	Cursor      *JobCursor
}

type JobCursor struct {
	CreatedAt time.Time
	JobID     string
}

// ListJobs returns up to PageSize+1 rows so the caller can tell whether another page exists
func (s *Storage) ListJobs(ctx context.Context, filter JobFilter) ([]model.Job, error) {
	query, args := listJobsQuery(filter)

	var jobs []model.Job
	err := s.db.SelectContext(ctx, &jobs, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}

	return jobs, nil
}

// listJobsQuery builds the filtered keyset query, numbering placeholders in argument order
func listJobsQuery(filter JobFilter) (string, []interface{}) {
	query := `
		SELECT
			job_id, client_key, query, marketplace, page, status,
			error, created_at, started_at, finished_at, updated_at
		FROM scrape_jobs
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.ClientKey != "" {
		query += fmt.Sprintf(" AND client_key = $%d", argIdx)
		args = append(args, filter.ClientKey)
		argIdx++
	}

	if filter.Marketplace != "" {
		query += fmt.Sprintf(" AND marketplace = $%d", argIdx)
		args = append(args, filter.Marketplace)
		argIdx++
	}

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", argIdx)
		args = append(args, filter.Status)
		argIdx++
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (created_at, job_id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.CreatedAt, filter.Cursor.JobID)
		argIdx += 2
	}

	query += " ORDER BY created_at DESC, job_id DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	return query, args
}
