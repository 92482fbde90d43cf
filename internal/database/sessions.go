package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/maltedev/product-ranker/internal/crawler"
	"github.com/maltedev/product-ranker/internal/models"
)

var ErrSessionNotFound = errors.New("session not found")

const sessionSchema = `
CREATE TABLE IF NOT EXISTS crawl_sessions (
	id            TEXT PRIMARY KEY,
	page_limit    INTEGER NOT NULL DEFAULT 0,
	pages_visited INTEGER NOT NULL DEFAULT 0,
	duplicates    INTEGER NOT NULL DEFAULT 0,
	stop_reason   TEXT NOT NULL DEFAULT '',
	items         JSONB NOT NULL DEFAULT '[]',
	started_at    TIMESTAMPTZ NOT NULL,
	updated_at    TIMESTAMPTZ NOT NULL
)`

// SessionRepository persists crawl session snapshots. It satisfies the
// crawler's SessionStore, which is what keeps partial results
// recoverable after a crash.
type SessionRepository struct {
	db *DB
}

func NewSessionRepository(db *DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// SaveSession upserts the snapshot. Called once per page plus once at
// crawl end, so the row always reflects the latest known state.
func (r *SessionRepository) SaveSession(ctx context.Context, snap *crawler.SessionSnapshot) error {
	items, err := json.Marshal(snap.Items)
	if err != nil {
		return fmt.Errorf("failed to marshal session items: %w", err)
	}

	query := `
		INSERT INTO crawl_sessions
			(id, page_limit, pages_visited, duplicates, stop_reason, items, started_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			pages_visited = EXCLUDED.pages_visited,
			duplicates    = EXCLUDED.duplicates,
			stop_reason   = EXCLUDED.stop_reason,
			items         = EXCLUDED.items,
			updated_at    = EXCLUDED.updated_at`

	updatedAt := snap.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now()
	}

	_, err = r.db.Exec(ctx, query,
		snap.ID, snap.PageLimit, snap.PagesVisited, snap.Duplicates,
		string(snap.StopReason), items, snap.StartedAt, updatedAt)
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

// LoadSession fetches a snapshot by ID.
func (r *SessionRepository) LoadSession(ctx context.Context, id string) (*crawler.SessionSnapshot, error) {
	query := `
		SELECT id, page_limit, pages_visited, duplicates, stop_reason, items, started_at, updated_at
		FROM crawl_sessions
		WHERE id = $1`

	var (
		snap       crawler.SessionSnapshot
		stopReason string
		itemsJSON  []byte
	)
	err := r.db.QueryRow(ctx, query, id).Scan(
		&snap.ID, &snap.PageLimit, &snap.PagesVisited, &snap.Duplicates,
		&stopReason, &itemsJSON, &snap.StartedAt, &snap.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	snap.StopReason = models.StopReason(stopReason)
	if err := json.Unmarshal(itemsJSON, &snap.Items); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session items: %w", err)
	}
	return &snap, nil
}

// DeleteOlderThan prunes finished sessions past the retention window.
func (r *SessionRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM crawl_sessions WHERE updated_at < $1 AND stop_reason <> ''`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to prune sessions: %w", err)
	}
	return tag.RowsAffected(), nil
}
