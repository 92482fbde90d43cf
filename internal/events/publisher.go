// Package events publishes crawl lifecycle events to Redis streams so
// other services (dashboards, notifiers) can follow a crawl live.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maltedev/product-ranker/internal/models"
)

// RedisClient is the slice of go-redis the publisher needs; kept small
// for mocking.
type RedisClient interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
	Close() error
}

const (
	EventCrawlProgress = "crawl.progress"
	EventCrawlFinished = "crawl.finished"
)

// DefaultStream is where crawl events land unless configured
// otherwise.
const DefaultStream = "crawl:events"

type Publisher struct {
	redis  RedisClient
	stream string
	logger *slog.Logger
}

func NewPublisher(client RedisClient, stream string) *Publisher {
	if stream == "" {
		stream = DefaultStream
	}
	return &Publisher{
		redis:  client,
		stream: stream,
		logger: slog.Default().With("component", "events"),
	}
}

// PublishProgress emits one crawl.progress event. Publishing is best
// effort from the crawler's point of view; callers log and move on.
func (p *Publisher) PublishProgress(ctx context.Context, progress models.Progress) error {
	return p.publish(ctx, EventCrawlProgress, progress.SessionID, progress)
}

// PublishFinished emits the terminal crawl.finished event with the
// result summary. Items are summarized, not embedded; the full batch
// lives in the session store.
func (p *Publisher) PublishFinished(ctx context.Context, result *models.CrawlResult) error {
	summary := map[string]any{
		"session_id":  result.SessionID,
		"stop_reason": string(result.StopReason),
		"pages":       result.PagesVisited,
		"items":       len(result.Items),
		"duplicates":  result.Duplicates,
		"duration_ms": result.Duration.Milliseconds(),
	}
	return p.publish(ctx, EventCrawlFinished, result.SessionID, summary)
}

func (p *Publisher) publish(ctx context.Context, eventType, sessionID string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event payload: %w", err)
	}

	args := &redis.XAddArgs{
		Stream: p.stream,
		Values: map[string]interface{}{
			"type":       eventType,
			"session_id": sessionID,
			"timestamp":  time.Now().Format(time.RFC3339),
			"data":       string(data),
		},
	}

	if _, err := p.redis.XAdd(ctx, args).Result(); err != nil {
		return fmt.Errorf("failed to publish to redis: %w", err)
	}

	p.logger.Debug("event published", "type", eventType, "session_id", sessionID)
	return nil
}

func (p *Publisher) Close() error {
	return p.redis.Close()
}
