package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/maltedev/product-ranker/internal/browser"
	"github.com/maltedev/product-ranker/internal/config"
	"github.com/maltedev/product-ranker/internal/crawler"
	"github.com/maltedev/product-ranker/internal/export"
	"github.com/maltedev/product-ranker/internal/models"
	"github.com/maltedev/product-ranker/internal/ratelimit"
	"github.com/maltedev/product-ranker/internal/scoring"
	"github.com/maltedev/product-ranker/internal/scraper"
)

// One-shot crawl: open a search URL, walk the result pages, score the
// batch and write it to a file. No database, no queue.
func main() {
	var (
		searchURL = flag.String("url", "", "Amazon search URL")
		pages     = flag.Int("pages", 0, "Maximum pages to crawl (0 = use config default)")
		method    = flag.String("method", "", "Scoring method (classic, enhanced, wilson, logadjusted, value, premium, custom)")
		outFile   = flag.String("out", "", "Output file (default: exports/products.<format>)")
		format    = flag.String("format", "", "Output format: csv or json")
		headless  = flag.Bool("headless", true, "Run browser in headless mode")
	)
	flag.Parse()

	if *searchURL == "" {
		fmt.Fprintln(os.Stderr, "Please provide a search URL with -url")
		flag.Usage()
		os.Exit(1)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if *pages > 0 {
		cfg.Crawler.PageLimit = *pages
	}
	if *method != "" {
		cfg.Crawler.Method = *method
	}
	if *format != "" {
		cfg.Export.Format = *format
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	outFormat, err := export.ParseFormat(cfg.Export.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid format: %v\n", err)
		os.Exit(1)
	}
	outPath := *outFile
	if outPath == "" {
		outPath = filepath.Join(cfg.Export.Dir, "products."+string(outFormat))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	result, err := run(ctx, cancel, sigChan, cfg, *searchURL, *headless, logger)
	if err != nil {
		logger.Error("crawl failed", "error", err)
		os.Exit(1)
	}

	if err := export.WriteFile(outPath, outFormat, result.Items); err != nil {
		logger.Error("failed to write output", "error", err)
		os.Exit(1)
	}

	fmt.Printf("Crawled %d page(s), collected %d item(s) (%d duplicate(s) skipped)\n",
		result.PagesVisited, len(result.Items), result.Duplicates)
	fmt.Printf("Stop reason: %s\n", result.StopReason)
	fmt.Printf("Results written to %s\n", outPath)
}

func run(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal, cfg *config.Config, searchURL string, headless bool, logger *slog.Logger) (*models.CrawlResult, error) {
	b, err := browser.New(&browser.Options{
		Headless:       headless,
		Timeout:        cfg.Browser.Timeout,
		ViewportWidth:  cfg.Browser.ViewportWidth,
		ViewportHeight: cfg.Browser.ViewportHeight,
		AcceptLanguage: cfg.Browser.AcceptLanguage,
		TimezoneID:     cfg.Browser.TimezoneID,
		Locale:         cfg.Browser.Locale,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize browser: %w", err)
	}
	defer b.Close()

	sc := scraper.NewSearchScraper(b)
	sc.SetMaxRetries(cfg.Crawler.MaxRetries)
	if err := sc.Open(ctx, searchURL); err != nil {
		return nil, fmt.Errorf("failed to open search page: %w", err)
	}
	defer sc.Close()

	if maxPages, err := sc.MaxPages(ctx); err == nil && maxPages > 1 {
		logger.Info("pagination detected", "estimated_pages", maxPages)
	}

	crawlMethod, err := scoring.ParseMethod(cfg.Crawler.Method)
	if err != nil {
		return nil, err
	}
	var custom *scoring.Params
	if crawlMethod == scoring.MethodCustom {
		custom = &scoring.Params{C: cfg.Crawler.CustomC, M: cfg.Crawler.CustomM}
	}

	orch := crawler.New(sc, sc, scoring.NewEngine(), crawler.Config{
		PageLimit:   cfg.Crawler.PageLimit,
		PageTimeout: cfg.Crawler.PageTimeout,
		Method:      crawlMethod,
		Custom:      custom,
		Limiter:     ratelimit.NewSimpleRateLimiter(cfg.Crawler.RateLimitMin, cfg.Crawler.RateLimitMax),
		OnProgress: func(p models.Progress) {
			logger.Info("progress",
				"pages_visited", p.PagesVisited,
				"items_collected", p.ItemsCollected)
		},
	})

	go func() {
		select {
		case <-sigChan:
			logger.Info("shutdown signal received, stopping crawl")
			orch.Cancel()
			cancel()
		case <-ctx.Done():
		}
	}()

	start := time.Now()
	result, err := orch.Run(ctx)
	if err != nil {
		return nil, err
	}
	logger.Info("crawl finished",
		"stop_reason", result.StopReason,
		"items", len(result.Items),
		"elapsed", time.Since(start).Round(time.Millisecond))
	return result, nil
}
