package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/playwright-community/playwright-go"

	"github.com/maltedev/product-ranker/internal/browser"
	"github.com/maltedev/product-ranker/internal/models"
	"github.com/maltedev/product-ranker/internal/parser"
)

const resultSelector = `[data-component-type="s-search-result"]`

// SearchScraper drives one playwright page through Amazon search
// results. It satisfies the crawler's PageExtractor and PageNavigator:
// Extract parses the page the browser currently shows, NextPageURL
// finds the link forward, Navigate follows it.
type SearchScraper struct {
	browser    *browser.Browser
	parser     *parser.SearchParser
	page       playwright.Page
	origin     string
	maxRetries int
	logger     *slog.Logger
}

func NewSearchScraper(b *browser.Browser) *SearchScraper {
	return &SearchScraper{
		browser:    b,
		parser:     parser.NewSearchParser(),
		maxRetries: 3,
		logger:     slog.Default().With("component", "search_scraper"),
	}
}

// SetMaxRetries overrides how often Open retries the initial
// navigation. Values below 1 are ignored.
func (s *SearchScraper) SetMaxRetries(n int) {
	if n >= 1 {
		s.maxRetries = n
	}
}

// Open creates the page and loads the first search results page. It
// must be called before the crawl starts.
func (s *SearchScraper) Open(ctx context.Context, searchURL string) error {
	u, err := url.Parse(searchURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%w: %q", ErrInvalidURL, searchURL)
	}
	s.origin = u.Scheme + "://" + u.Host

	page, err := s.browser.NewPage()
	if err != nil {
		return fmt.Errorf("failed to create page: %w", err)
	}
	s.page = page

	if err := s.browser.NavigateWithRetry(page, searchURL, s.maxRetries); err != nil {
		return fmt.Errorf("failed to open search page: %w", err)
	}
	s.browser.HumanizeInteraction(page)
	return nil
}

func (s *SearchScraper) Close() error {
	if s.page == nil {
		return nil
	}
	err := s.page.Close()
	s.page = nil
	return err
}

// Extract waits for the result cards to render, then hands the full
// document to the HTML parser. A rendered page with zero cards is an
// empty slice, not an error.
func (s *SearchScraper) Extract(ctx context.Context) ([]*models.Item, error) {
	if s.page == nil {
		return nil, ErrPageNotReady
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	_, err := s.page.WaitForSelector(resultSelector, playwright.PageWaitForSelectorOptions{
		Timeout: playwright.Float(s.remainingMillis(ctx, 10_000)),
	})
	if err != nil {
		// The selector may legitimately be absent (empty result set);
		// fall through and let the parser decide.
		s.logger.Debug("result selector wait failed", "error", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	html, err := s.page.Content()
	if err != nil {
		return nil, fmt.Errorf("failed to read page content: %w", err)
	}
	if isBlockedPage(html) {
		return nil, ErrBlocked
	}

	items, err := s.parser.ParseSearchPage(html, s.origin)
	if err != nil {
		return nil, fmt.Errorf("failed to parse search page: %w", err)
	}

	s.logger.Debug("extracted search page", "items", len(items))
	return items, nil
}

// NextPageURL inspects the pagination of the current page. "" means
// the crawl reached the last page.
func (s *SearchScraper) NextPageURL(ctx context.Context) (string, error) {
	if s.page == nil {
		return "", ErrPageNotReady
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	html, err := s.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to read page content: %w", err)
	}
	return s.parser.NextPageURL(html, s.origin)
}

// Navigate follows url and settles the new page. A navigation timeout
// surfaces as an error; the caller decides whether that is a stall.
func (s *SearchScraper) Navigate(ctx context.Context, pageURL string) error {
	if s.page == nil {
		return ErrPageNotReady
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.page.Goto(pageURL, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(s.remainingMillis(ctx, 30_000)),
	})
	if err != nil {
		return fmt.Errorf("failed to navigate to %s: %w", pageURL, err)
	}

	s.browser.HumanizeInteraction(s.page)
	return nil
}

// MaxPages reads the pagination strip of the current page.
func (s *SearchScraper) MaxPages(ctx context.Context) (int, error) {
	if s.page == nil {
		return 0, ErrPageNotReady
	}
	html, err := s.page.Content()
	if err != nil {
		return 0, fmt.Errorf("failed to read page content: %w", err)
	}
	return s.parser.MaxPages(html), nil
}

// remainingMillis converts the context deadline into a playwright
// timeout, capped at fallback.
func (s *SearchScraper) remainingMillis(ctx context.Context, fallback float64) float64 {
	deadline, ok := ctx.Deadline()
	if !ok {
		return fallback
	}
	remaining := float64(time.Until(deadline).Milliseconds())
	if remaining <= 0 {
		return 1
	}
	if remaining > fallback {
		return fallback
	}
	return remaining
}

func isBlockedPage(html string) bool {
	return strings.Contains(html, "Enter the characters you see below") ||
		strings.Contains(html, "api-services-support@amazon.com")
}
