package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/maltedev/product-ranker/internal/browser"
	"github.com/maltedev/product-ranker/internal/config"
	"github.com/maltedev/product-ranker/internal/crawler"
	"github.com/maltedev/product-ranker/internal/database"
	"github.com/maltedev/product-ranker/internal/events"
	"github.com/maltedev/product-ranker/internal/models"
	"github.com/maltedev/product-ranker/internal/ratelimit"
	"github.com/maltedev/product-ranker/internal/scoring"
	"github.com/maltedev/product-ranker/internal/scraper"
)

// BrowserRunner executes jobs against a real browser: one fresh page
// per job, a crawl orchestrator around it, progress fanned out to
// Redis.
type BrowserRunner struct {
	browser   *browser.Browser
	cfg       *config.Config
	engine    *scoring.Engine
	sessions  crawler.SessionStore
	publisher *events.Publisher
	metrics   *crawler.Metrics
	logger    *slog.Logger
}

func NewBrowserRunner(b *browser.Browser, cfg *config.Config, sessions crawler.SessionStore, publisher *events.Publisher, metrics *crawler.Metrics) *BrowserRunner {
	return &BrowserRunner{
		browser:   b,
		cfg:       cfg,
		engine:    scoring.NewEngine(),
		sessions:  sessions,
		publisher: publisher,
		metrics:   metrics,
		logger:    slog.Default().With("component", "job_runner"),
	}
}

func (r *BrowserRunner) RunJob(ctx context.Context, job *database.CrawlJob) (*models.CrawlResult, error) {
	method, err := scoring.ParseMethod(job.Method)
	if err != nil {
		return nil, err
	}

	sc := scraper.NewSearchScraper(r.browser)
	sc.SetMaxRetries(r.cfg.Crawler.MaxRetries)
	if err := sc.Open(ctx, job.SearchURL); err != nil {
		return nil, fmt.Errorf("failed to open search page: %w", err)
	}
	defer sc.Close()

	// Long-running job crawls back off when Amazon starts pushing
	// back; the orchestrator feeds the limiter page outcomes.
	limiter := ratelimit.NewBackoffRateLimiter(
		r.cfg.Crawler.RateLimitMin, r.cfg.Crawler.RateLimitMax)

	// Custom params only apply to the custom method; the others derive
	// their priors from the batch.
	var custom *scoring.Params
	if method == scoring.MethodCustom {
		custom = &scoring.Params{C: r.cfg.Crawler.CustomC, M: r.cfg.Crawler.CustomM}
	}

	orch := crawler.New(sc, sc, r.engine, crawler.Config{
		PageLimit:   job.PageLimit,
		PageTimeout: r.cfg.Crawler.PageTimeout,
		Method:      method,
		Custom:      custom,
		Store:       r.sessions,
		Limiter:     limiter,
		Metrics:     r.metrics,
		OnProgress:  r.progressHook(ctx),
	})

	result, err := orch.Run(ctx)
	if err != nil {
		return nil, err
	}

	if r.publisher != nil {
		if err := r.publisher.PublishFinished(ctx, result); err != nil {
			r.logger.Warn("failed to publish finish event", "error", err)
		}
	}
	return result, nil
}

func (r *BrowserRunner) progressHook(ctx context.Context) crawler.ProgressFunc {
	if r.publisher == nil {
		return nil
	}
	return func(p models.Progress) {
		if err := r.publisher.PublishProgress(ctx, p); err != nil {
			r.logger.Warn("failed to publish progress event", "error", err)
		}
	}
}
