package database

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

var ErrJobNotFound = errors.New("job not found")

const (
	JobStatusPending   = "pending"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

const jobSchema = `
CREATE TABLE IF NOT EXISTS crawl_jobs (
	id               UUID PRIMARY KEY,
	search_url       TEXT NOT NULL,
	page_limit       INTEGER NOT NULL DEFAULT 0,
	method           TEXT NOT NULL DEFAULT 'classic',
	status           TEXT NOT NULL DEFAULT 'pending',
	cancel_requested BOOLEAN NOT NULL DEFAULT FALSE,
	session_id       TEXT,
	stop_reason      TEXT,
	item_count       INTEGER NOT NULL DEFAULT 0,
	error_message    TEXT,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	started_at       TIMESTAMPTZ,
	finished_at      TIMESTAMPTZ
)`

// CrawlJob is one queued crawl request, typically created over the
// HTTP API and picked up by the worker loop.
type CrawlJob struct {
	ID              uuid.UUID
	SearchURL       string
	PageLimit       int
	Method          string
	Status          string
	CancelRequested bool
	SessionID       *string
	StopReason      *string
	ItemCount       int
	ErrorMessage    *string
	CreatedAt       time.Time
	StartedAt       *time.Time
	FinishedAt      *time.Time
}

type JobRepository struct {
	db *DB
}

func NewJobRepository(db *DB) *JobRepository {
	return &JobRepository{db: db}
}

func (r *JobRepository) Insert(ctx context.Context, job *CrawlJob) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	if job.Method == "" {
		job.Method = "classic"
	}

	query := `
		INSERT INTO crawl_jobs (id, search_url, page_limit, method, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		job.ID, job.SearchURL, job.PageLimit, job.Method, job.Status).Scan(&job.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert job: %w", err)
	}
	return nil
}

const jobColumns = `id, search_url, page_limit, method, status, cancel_requested,
	session_id, stop_reason, item_count, error_message, created_at, started_at, finished_at`

func scanJob(row pgx.Row) (*CrawlJob, error) {
	var job CrawlJob
	err := row.Scan(
		&job.ID, &job.SearchURL, &job.PageLimit, &job.Method, &job.Status,
		&job.CancelRequested, &job.SessionID, &job.StopReason, &job.ItemCount,
		&job.ErrorMessage, &job.CreatedAt, &job.StartedAt, &job.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan job: %w", err)
	}
	return &job, nil
}

func (r *JobRepository) Get(ctx context.Context, id uuid.UUID) (*CrawlJob, error) {
	query := fmt.Sprintf(`SELECT %s FROM crawl_jobs WHERE id = $1`, jobColumns)
	return scanJob(r.db.QueryRow(ctx, query, id))
}

// ClaimNext atomically takes the oldest pending job and marks it
// running. SKIP LOCKED lets several workers poll the same table
// without stepping on each other. Returns ErrJobNotFound when the
// queue is empty.
func (r *JobRepository) ClaimNext(ctx context.Context) (*CrawlJob, error) {
	var job *CrawlJob
	err := r.db.WithTx(ctx, func(tx pgx.Tx) error {
		query := fmt.Sprintf(`
			SELECT %s FROM crawl_jobs
			WHERE status = $1
			ORDER BY created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED`, jobColumns)

		claimed, err := scanJob(tx.QueryRow(ctx, query, JobStatusPending))
		if err != nil {
			return err
		}

		now := time.Now()
		_, err = tx.Exec(ctx,
			`UPDATE crawl_jobs SET status = $1, started_at = $2 WHERE id = $3`,
			JobStatusRunning, now, claimed.ID)
		if err != nil {
			return fmt.Errorf("failed to mark job running: %w", err)
		}

		claimed.Status = JobStatusRunning
		claimed.StartedAt = &now
		job = claimed
		return nil
	})
	if err != nil {
		return nil, err
	}
	return job, nil
}

// Complete records the crawl outcome. A user-cancelled crawl completes
// with status cancelled; error stop reasons complete as failed only
// when no items were collected, partial results still count.
func (r *JobRepository) Complete(ctx context.Context, id uuid.UUID, sessionID, stopReason string, itemCount int, status string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE crawl_jobs
		SET status = $1, session_id = $2, stop_reason = $3, item_count = $4, finished_at = NOW()
		WHERE id = $5`,
		status, sessionID, stopReason, itemCount, id)
	if err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}
	return nil
}

func (r *JobRepository) Fail(ctx context.Context, id uuid.UUID, message string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE crawl_jobs
		SET status = $1, error_message = $2, finished_at = NOW()
		WHERE id = $3`,
		JobStatusFailed, message, id)
	if err != nil {
		return fmt.Errorf("failed to mark job failed: %w", err)
	}
	return nil
}

// RequestCancel flags a pending or running job for cancellation. The
// worker polls the flag and stops the crawl cooperatively.
func (r *JobRepository) RequestCancel(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE crawl_jobs
		SET cancel_requested = TRUE,
		    status = CASE WHEN status = $1 THEN $2 ELSE status END
		WHERE id = $3 AND status IN ($1, $4)`,
		JobStatusPending, JobStatusCancelled, id, JobStatusRunning)
	if err != nil {
		return fmt.Errorf("failed to request cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrJobNotFound
	}
	return nil
}

func (r *JobRepository) IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error) {
	var requested bool
	err := r.db.QueryRow(ctx,
		`SELECT cancel_requested FROM crawl_jobs WHERE id = $1`, id).Scan(&requested)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, ErrJobNotFound
	}
	if err != nil {
		return false, fmt.Errorf("failed to read cancel flag: %w", err)
	}
	return requested, nil
}

// ListRecent returns the newest jobs first.
func (r *JobRepository) ListRecent(ctx context.Context, limit int) ([]*CrawlJob, error) {
	if limit <= 0 {
		limit = 50
	}
	query := fmt.Sprintf(`SELECT %s FROM crawl_jobs ORDER BY created_at DESC LIMIT $1`, jobColumns)
	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*CrawlJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}
