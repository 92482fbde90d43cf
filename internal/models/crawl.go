package models

import "time"

// StopReason records why a crawl session ended.
type StopReason string

const (
	StopNoNextPage       StopReason = "no_next_page"
	StopPageLimitReached StopReason = "page_limit_reached"
	StopUserCancelled    StopReason = "user_cancelled"
	StopExtractionError  StopReason = "extraction_error"
	StopNavigationError  StopReason = "navigation_error"
	StopStalled          StopReason = "stalled"
)

// IsError reports whether the reason represents a failure as opposed to a
// normal termination path. User cancellation is not an error.
func (r StopReason) IsError() bool {
	switch r {
	case StopExtractionError, StopNavigationError, StopStalled:
		return true
	}
	return false
}

// Progress is the passive per-page notification emitted by the
// orchestrator. PageLimit 0 means unbounded.
type Progress struct {
	SessionID      string `json:"session_id"`
	PagesVisited   int    `json:"pages_visited"`
	PageLimit      int    `json:"page_limit"`
	ItemsCollected int    `json:"items_collected"`
}

// BatchStats summarizes the collected batch for status displays.
type BatchStats struct {
	Total      int     `json:"total"`
	MinReviews int     `json:"min_reviews"`
	MaxReviews int     `json:"max_reviews"`
	AvgReviews int     `json:"avg_reviews"`
	AvgRating  float64 `json:"avg_rating"`
}

// ComputeBatchStats derives summary statistics from a batch. MinReviews
// considers only items with at least one review, matching the way the
// stats are shown to users.
func ComputeBatchStats(items []*Item) BatchStats {
	stats := BatchStats{Total: len(items)}
	if len(items) == 0 {
		return stats
	}

	var reviewSum, ratingCount int
	var ratingSum float64
	minPositive := 0
	for _, it := range items {
		reviewSum += it.Reviews
		if it.Reviews > stats.MaxReviews {
			stats.MaxReviews = it.Reviews
		}
		if it.Reviews > 0 && (minPositive == 0 || it.Reviews < minPositive) {
			minPositive = it.Reviews
		}
		ratingSum += it.Rating
		ratingCount++
	}
	stats.MinReviews = minPositive
	stats.AvgReviews = reviewSum / len(items)
	stats.AvgRating = ratingSum / float64(ratingCount)
	return stats
}

// CrawlResult is the terminal outcome of one crawl session. Items is the
// deduplicated, scored collection in first-seen order; an empty Items
// with a non-error StopReason means "nothing found", which callers must
// be able to distinguish from a crash.
type CrawlResult struct {
	SessionID    string        `json:"session_id"`
	Items        []*Item       `json:"items"`
	StopReason   StopReason    `json:"stop_reason"`
	PagesVisited int           `json:"pages_visited"`
	Duplicates   int           `json:"duplicates"`
	Stats        BatchStats    `json:"stats"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration"`
}

// Empty reports whether the crawl terminated without collecting anything.
func (r *CrawlResult) Empty() bool {
	return len(r.Items) == 0
}
