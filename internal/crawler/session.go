package crawler

import (
	"time"

	"github.com/maltedev/product-ranker/internal/models"
)

// session is the mutable state of one crawl. It is owned exclusively by
// the orchestrator: created at crawl start, mutated only by the step
// loop, and discarded when the next crawl begins.
type session struct {
	id           string
	pageLimit    int
	pagesVisited int
	startedAt    time.Time

	items      []*models.Item
	seen       map[string]struct{}
	duplicates int
}

func newSession(id string, pageLimit int) *session {
	return &session{
		id:        id,
		pageLimit: pageLimit,
		startedAt: time.Now(),
		seen:      make(map[string]struct{}),
	}
}

// absorb merges a page's worth of raw items into the accumulator,
// dropping items whose identity key was already seen. First-seen order
// is preserved; duplicates are counted, not erred. Returns how many
// items were actually added.
func (s *session) absorb(items []*models.Item) int {
	added := 0
	for _, it := range items {
		if it == nil {
			continue
		}
		key := it.IdentityKey()
		if key == "" {
			continue
		}
		if _, ok := s.seen[key]; ok {
			s.duplicates++
			continue
		}
		s.seen[key] = struct{}{}
		s.items = append(s.items, it)
		added++
	}
	return added
}

func (s *session) progress() models.Progress {
	return models.Progress{
		SessionID:      s.id,
		PagesVisited:   s.pagesVisited,
		PageLimit:      s.pageLimit,
		ItemsCollected: len(s.items),
	}
}

func (s *session) result(reason models.StopReason) *models.CrawlResult {
	return &models.CrawlResult{
		SessionID:    s.id,
		Items:        s.items,
		StopReason:   reason,
		PagesVisited: s.pagesVisited,
		Duplicates:   s.duplicates,
		StartedAt:    s.startedAt,
		Duration:     time.Since(s.startedAt),
	}
}

// SessionSnapshot is the externally persisted form of a session. It
// carries enough state for a restarted process to resume the crawl or
// at least recover the partial results.
type SessionSnapshot struct {
	ID           string          `json:"id"`
	PageLimit    int             `json:"page_limit"`
	PagesVisited int             `json:"pages_visited"`
	Items        []*models.Item  `json:"items"`
	Duplicates   int             `json:"duplicates"`
	StopReason   models.StopReason `json:"stop_reason,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (s *session) snapshot(reason models.StopReason) *SessionSnapshot {
	return &SessionSnapshot{
		ID:           s.id,
		PageLimit:    s.pageLimit,
		PagesVisited: s.pagesVisited,
		Items:        s.items,
		Duplicates:   s.duplicates,
		StopReason:   reason,
		StartedAt:    s.startedAt,
		UpdatedAt:    time.Now(),
	}
}

func restoreSession(snap *SessionSnapshot) *session {
	s := newSession(snap.ID, snap.PageLimit)
	s.pagesVisited = snap.PagesVisited
	s.duplicates = snap.Duplicates
	s.startedAt = snap.StartedAt
	if s.startedAt.IsZero() {
		s.startedAt = time.Now()
	}
	s.absorb(snap.Items)
	return s
}
