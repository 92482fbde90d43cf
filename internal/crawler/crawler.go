package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/maltedev/product-ranker/internal/models"
	"github.com/maltedev/product-ranker/internal/scoring"
)

// PageExtractor pulls the items off the page the browser is currently
// on. An empty slice is a legitimate answer (sparse result page), not
// an error.
type PageExtractor interface {
	Extract(ctx context.Context) ([]*models.Item, error)
}

// PageNavigator finds and follows the next-page link. NextPageURL
// returns "" with a nil error when the current page is the last one.
type PageNavigator interface {
	NextPageURL(ctx context.Context) (string, error)
	Navigate(ctx context.Context, url string) error
}

// SessionStore persists session snapshots so a crashed or restarted
// process can recover partial results. Saves are best effort: a store
// failure never aborts a crawl.
type SessionStore interface {
	SaveSession(ctx context.Context, snap *SessionSnapshot) error
}

// Limiter paces page transitions. Wait blocks until the next page may
// be fetched or the context is done.
type Limiter interface {
	Wait(ctx context.Context) error
}

// outcomeRecorder is the optional half of a limiter that adapts its
// delay to how the crawl is going. The orchestrator feeds it one
// success per clean page cycle and one error per failed one.
type outcomeRecorder interface {
	RecordSuccess()
	RecordError()
}

// ProgressFunc is invoked after every page, from the crawl goroutine.
type ProgressFunc func(models.Progress)

// ErrAlreadyRunning is returned by Run when a crawl is in flight.
// The orchestrator is strictly sequential: one page at a time, one
// crawl at a time.
var ErrAlreadyRunning = errors.New("crawler: crawl already running")

type Config struct {
	// PageLimit caps the number of pages visited. 0 means unbounded,
	// the crawl runs until the pagination ends.
	PageLimit int

	// PageTimeout bounds one full page cycle (extract + find next +
	// navigate). A cycle that exceeds it stops the crawl with reason
	// stalled. 0 disables the watchdog.
	PageTimeout time.Duration

	Method scoring.Method
	Custom *scoring.Params

	// Optional collaborators.
	Store      SessionStore
	Limiter    Limiter
	OnProgress ProgressFunc
	Metrics    *Metrics
}

// Orchestrator drives a paginated crawl: extract items from the
// current page, deduplicate them into the session accumulator, emit
// progress, then navigate to the next page, until a stop condition is
// met. When the loop ends the collected batch is scored in one pass.
type Orchestrator struct {
	extractor PageExtractor
	navigator PageNavigator
	engine    *scoring.Engine
	cfg       Config
	logger    *slog.Logger

	running   atomic.Bool
	cancelled atomic.Bool
}

func New(extractor PageExtractor, navigator PageNavigator, engine *scoring.Engine, cfg Config) *Orchestrator {
	if engine == nil {
		engine = scoring.NewEngine()
	}
	if cfg.Method == "" {
		cfg.Method = scoring.MethodClassic
	}
	return &Orchestrator{
		extractor: extractor,
		navigator: navigator,
		engine:    engine,
		cfg:       cfg,
		logger:    slog.Default().With("component", "crawler"),
	}
}

// Cancel requests a cooperative stop. The crawl finishes the page
// cycle it is in, then stops with reason user_cancelled; items
// collected so far are kept and scored. Safe to call from any
// goroutine, and a no-op when nothing is running.
func (o *Orchestrator) Cancel() {
	o.cancelled.Store(true)
}

// Run executes a crawl from the page the navigator is currently on.
// It always returns a usable result: stop conditions, including error
// conditions, are reported through CrawlResult.StopReason rather than
// the error return. The error is reserved for misuse (a second
// concurrent Run).
func (o *Orchestrator) Run(ctx context.Context) (*models.CrawlResult, error) {
	return o.run(ctx, newSession(uuid.New().String(), o.cfg.PageLimit))
}

// Resume continues a crawl from a persisted snapshot, keeping its
// session ID and already collected items. The caller is responsible
// for bringing the navigator back to the page the snapshot left off
// on.
func (o *Orchestrator) Resume(ctx context.Context, snap *SessionSnapshot) (*models.CrawlResult, error) {
	if snap == nil {
		return o.Run(ctx)
	}
	return o.run(ctx, restoreSession(snap))
}

func (o *Orchestrator) run(ctx context.Context, sess *session) (*models.CrawlResult, error) {
	if !o.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer o.running.Store(false)
	o.cancelled.Store(false)

	o.logger.Info("crawl started",
		"session_id", sess.id,
		"page_limit", sess.pageLimit,
		"method", string(o.cfg.Method))

	reason := o.loop(ctx, sess)

	result := sess.result(reason)
	o.finish(ctx, sess, result)
	return result, nil
}

// loop is the page state machine. Each iteration is one page cycle:
// extract, deduplicate, report, decide whether to continue, navigate.
// It returns the first stop reason that fires.
func (o *Orchestrator) loop(ctx context.Context, sess *session) models.StopReason {
	for {
		if reason, stop := o.shouldStop(ctx); stop {
			return reason
		}

		pctx, cancel := o.pageContext(ctx)
		reason, done := o.step(ctx, pctx, sess)
		cancel()
		if done {
			return reason
		}
	}
}

// step runs a single page cycle under the watchdog context pctx.
func (o *Orchestrator) step(ctx, pctx context.Context, sess *session) (models.StopReason, bool) {
	pageStart := time.Now()

	items, err := o.extractor.Extract(pctx)
	if err != nil {
		return o.failure(ctx, pctx, sess, err, models.StopExtractionError), true
	}

	added := sess.absorb(items)
	sess.pagesVisited++
	o.recordOutcome(true)
	o.observePage(sess, len(items), added, time.Since(pageStart))

	o.saveSnapshot(ctx, sess, "")

	if sess.pageLimit > 0 && sess.pagesVisited >= sess.pageLimit {
		return models.StopPageLimitReached, true
	}
	if reason, stop := o.shouldStop(ctx); stop {
		return reason, true
	}

	next, err := o.navigator.NextPageURL(pctx)
	if err != nil {
		return o.failure(ctx, pctx, sess, err, models.StopNavigationError), true
	}
	if next == "" {
		return models.StopNoNextPage, true
	}

	if o.cfg.Limiter != nil {
		if err := o.cfg.Limiter.Wait(ctx); err != nil {
			return models.StopUserCancelled, true
		}
	}
	if reason, stop := o.shouldStop(ctx); stop {
		return reason, true
	}

	if err := o.navigator.Navigate(pctx, next); err != nil {
		return o.failure(ctx, pctx, sess, err, models.StopNavigationError), true
	}
	return "", false
}

func (o *Orchestrator) pageContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if o.cfg.PageTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, o.cfg.PageTimeout)
}

func (o *Orchestrator) shouldStop(ctx context.Context) (models.StopReason, bool) {
	if o.cancelled.Load() || ctx.Err() != nil {
		return models.StopUserCancelled, true
	}
	return "", false
}

// failure maps a collaborator error onto a stop reason. A failure
// caused by the caller's context is a cancellation; one caused by the
// page watchdog expiring is a stall; anything else keeps the
// collaborator's reason. Errors never abort with an empty result, the
// session keeps whatever it has collected.
func (o *Orchestrator) failure(ctx, pctx context.Context, sess *session, err error, reason models.StopReason) models.StopReason {
	o.recordOutcome(false)
	switch {
	case ctx.Err() != nil:
		reason = models.StopUserCancelled
	case errors.Is(pctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded):
		reason = models.StopStalled
	}
	o.logger.Error("page cycle failed",
		"session_id", sess.id,
		"page", sess.pagesVisited+1,
		"items_so_far", len(sess.items),
		"stop_reason", string(reason),
		"error", err)
	return reason
}

func (o *Orchestrator) recordOutcome(ok bool) {
	rec, adaptive := o.cfg.Limiter.(outcomeRecorder)
	if !adaptive {
		return
	}
	if ok {
		rec.RecordSuccess()
	} else {
		rec.RecordError()
	}
}

func (o *Orchestrator) observePage(sess *session, extracted, added int, elapsed time.Duration) {
	o.logger.Info("page processed",
		"session_id", sess.id,
		"page", sess.pagesVisited,
		"extracted", extracted,
		"added", added,
		"duplicates_total", sess.duplicates,
		"items_total", len(sess.items))

	o.cfg.Metrics.ObservePage(extracted, sess.duplicates, elapsed)

	if o.cfg.OnProgress != nil {
		o.cfg.OnProgress(sess.progress())
	}
}

// finish is the terminal phase: score the accumulated batch, compute
// its summary stats and persist the final snapshot.
func (o *Orchestrator) finish(ctx context.Context, sess *session, result *models.CrawlResult) {
	if len(result.Items) > 0 {
		if _, err := o.engine.Score(result.Items, o.cfg.Method, o.cfg.Custom); err != nil {
			// Unknown method is a config mistake; the raw items are
			// still worth returning.
			o.logger.Error("scoring failed", "session_id", sess.id, "error", err)
		}
	}
	result.Stats = models.ComputeBatchStats(result.Items)
	result.Duration = time.Since(sess.startedAt)

	o.saveSnapshot(ctx, sess, result.StopReason)
	o.cfg.Metrics.ObserveCrawl(result)

	o.logger.Info("crawl finished",
		"session_id", sess.id,
		"stop_reason", string(result.StopReason),
		"pages", result.PagesVisited,
		"items", len(result.Items),
		"duplicates", result.Duplicates,
		"duration", result.Duration.Round(time.Millisecond))
}

func (o *Orchestrator) saveSnapshot(ctx context.Context, sess *session, reason models.StopReason) {
	if o.cfg.Store == nil {
		return
	}
	// The caller's context may already be cancelled; the final save
	// still has to go through so partial results survive.
	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := o.cfg.Store.SaveSession(sctx, sess.snapshot(reason)); err != nil {
		o.logger.Warn("session snapshot failed", "session_id", sess.id, "error", err)
	}
}

// Describe reports the orchestrator configuration for logs and the
// API surface.
func (o *Orchestrator) Describe() string {
	return fmt.Sprintf("method=%s page_limit=%d page_timeout=%s",
		o.cfg.Method, o.cfg.PageLimit, o.cfg.PageTimeout)
}
