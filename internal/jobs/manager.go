// Package jobs queues crawl requests and runs them one at a time in a
// background worker.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/product-ranker/internal/database"
	"github.com/maltedev/product-ranker/internal/models"
	"github.com/maltedev/product-ranker/internal/scoring"
)

// JobStore is the persistence surface the manager needs; implemented
// by database.JobRepository, mocked in tests.
type JobStore interface {
	Insert(ctx context.Context, job *database.CrawlJob) error
	Get(ctx context.Context, id uuid.UUID) (*database.CrawlJob, error)
	ClaimNext(ctx context.Context) (*database.CrawlJob, error)
	Complete(ctx context.Context, id uuid.UUID, sessionID, stopReason string, itemCount int, status string) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	RequestCancel(ctx context.Context, id uuid.UUID) error
	IsCancelRequested(ctx context.Context, id uuid.UUID) (bool, error)
	ListRecent(ctx context.Context, limit int) ([]*database.CrawlJob, error)
}

// CrawlRunner executes one claimed job end to end and reports the
// crawl outcome. Errors are reserved for setup failures; a crawl that
// stopped badly still returns a result with its stop reason.
type CrawlRunner interface {
	RunJob(ctx context.Context, job *database.CrawlJob) (*models.CrawlResult, error)
}

type Manager struct {
	store  JobStore
	runner CrawlRunner
	logger *slog.Logger

	pollInterval   time.Duration
	cancelInterval time.Duration
}

func NewManager(store JobStore, runner CrawlRunner) *Manager {
	return &Manager{
		store:          store,
		runner:         runner,
		logger:         slog.Default().With("component", "job_manager"),
		pollInterval:   10 * time.Second,
		cancelInterval: 2 * time.Second,
	}
}

// Create validates and enqueues a crawl job.
func (m *Manager) Create(ctx context.Context, searchURL string, pageLimit int, method string) (*database.CrawlJob, error) {
	u, err := url.Parse(searchURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid search URL %q", searchURL)
	}
	if pageLimit < 0 {
		return nil, fmt.Errorf("page limit cannot be negative")
	}
	if method == "" {
		method = string(scoring.MethodClassic)
	}
	if _, err := scoring.ParseMethod(method); err != nil {
		return nil, err
	}

	job := &database.CrawlJob{
		SearchURL: searchURL,
		PageLimit: pageLimit,
		Method:    method,
	}
	if err := m.store.Insert(ctx, job); err != nil {
		return nil, err
	}

	m.logger.Info("job created", "job_id", job.ID, "url", searchURL, "method", method)
	return job, nil
}

func (m *Manager) Get(ctx context.Context, id uuid.UUID) (*database.CrawlJob, error) {
	return m.store.Get(ctx, id)
}

func (m *Manager) List(ctx context.Context, limit int) ([]*database.CrawlJob, error) {
	return m.store.ListRecent(ctx, limit)
}

// Cancel flags the job; the worker notices and stops the crawl
// cooperatively, keeping whatever was collected.
func (m *Manager) Cancel(ctx context.Context, id uuid.UUID) error {
	return m.store.RequestCancel(ctx, id)
}

// StartWorker polls for pending jobs until ctx is cancelled. Jobs run
// strictly one at a time; the shared browser cannot serve two crawls.
func (m *Manager) StartWorker(ctx context.Context) {
	m.logger.Info("job worker started", "poll_interval", m.pollInterval)

	ticker := time.NewTicker(m.pollInterval)
	defer ticker.Stop()

	for {
		m.drainPending(ctx)
		select {
		case <-ctx.Done():
			m.logger.Info("job worker stopping")
			return
		case <-ticker.C:
		}
	}
}

// drainPending runs claimed jobs back to back until the queue is
// empty.
func (m *Manager) drainPending(ctx context.Context) {
	for ctx.Err() == nil {
		job, err := m.store.ClaimNext(ctx)
		if errors.Is(err, database.ErrJobNotFound) {
			return
		}
		if err != nil {
			m.logger.Error("failed to claim job", "error", err)
			return
		}
		m.runJob(ctx, job)
	}
}

func (m *Manager) runJob(ctx context.Context, job *database.CrawlJob) {
	m.logger.Info("job started", "job_id", job.ID, "url", job.SearchURL)

	jobCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go m.watchCancel(jobCtx, job.ID, cancel)

	result, err := m.runner.RunJob(jobCtx, job)
	if err != nil {
		m.logger.Error("job failed", "job_id", job.ID, "error", err)
		if failErr := m.store.Fail(ctx, job.ID, err.Error()); failErr != nil {
			m.logger.Error("failed to record job failure", "job_id", job.ID, "error", failErr)
		}
		return
	}

	status := statusFor(result)
	if err := m.store.Complete(ctx, job.ID, result.SessionID,
		string(result.StopReason), len(result.Items), status); err != nil {
		m.logger.Error("failed to record job completion", "job_id", job.ID, "error", err)
		return
	}

	m.logger.Info("job finished",
		"job_id", job.ID,
		"status", status,
		"stop_reason", string(result.StopReason),
		"items", len(result.Items))
}

// statusFor maps the crawl outcome onto a job status. A crawl that
// errored but salvaged items still counts as completed; the stop
// reason tells the caller what happened.
func statusFor(result *models.CrawlResult) string {
	switch {
	case result.StopReason == models.StopUserCancelled:
		return database.JobStatusCancelled
	case result.StopReason.IsError() && result.Empty():
		return database.JobStatusFailed
	default:
		return database.JobStatusCompleted
	}
}

// watchCancel polls the cancel flag while the job runs and tears down
// the job context when it flips.
func (m *Manager) watchCancel(ctx context.Context, id uuid.UUID, cancel context.CancelFunc) {
	ticker := time.NewTicker(m.cancelInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			requested, err := m.store.IsCancelRequested(ctx, id)
			if err != nil {
				continue
			}
			if requested {
				m.logger.Info("cancel requested", "job_id", id)
				cancel()
				return
			}
		}
	}
}
