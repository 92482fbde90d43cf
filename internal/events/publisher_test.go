package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-ranker/internal/models"
)

// MockRedisClient is a mock for the Redis client
type MockRedisClient struct {
	mock.Mock
	lastArgs *redis.XAddArgs
}

func (m *MockRedisClient) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	m.lastArgs = args
	mockArgs := m.Called(ctx, args)
	cmd := redis.NewStringCmd(ctx)
	if mockArgs.Get(0) != nil {
		cmd.SetErr(mockArgs.Error(0))
	} else {
		cmd.SetVal("1234567890-0")
	}
	return cmd
}

func (m *MockRedisClient) Close() error {
	args := m.Called()
	return args.Error(0)
}

func TestPublishProgress(t *testing.T) {
	ctx := context.Background()

	t.Run("publishes to configured stream", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockRedis.On("XAdd", mock.Anything, mock.Anything).Return(nil)

		p := NewPublisher(mockRedis, "crawl:test")
		err := p.PublishProgress(ctx, models.Progress{
			SessionID:      "sess-1",
			PagesVisited:   2,
			PageLimit:      10,
			ItemsCollected: 37,
		})
		require.NoError(t, err)

		require.NotNil(t, mockRedis.lastArgs)
		assert.Equal(t, "crawl:test", mockRedis.lastArgs.Stream)
		assert.Equal(t, EventCrawlProgress, mockRedis.lastArgs.Values.(map[string]interface{})["type"])
		assert.Equal(t, "sess-1", mockRedis.lastArgs.Values.(map[string]interface{})["session_id"])

		var decoded models.Progress
		data := mockRedis.lastArgs.Values.(map[string]interface{})["data"].(string)
		require.NoError(t, json.Unmarshal([]byte(data), &decoded))
		assert.Equal(t, 37, decoded.ItemsCollected)

		mockRedis.AssertExpectations(t)
	})

	t.Run("redis failure surfaces as error", func(t *testing.T) {
		mockRedis := new(MockRedisClient)
		mockRedis.On("XAdd", mock.Anything, mock.Anything).Return(errors.New("connection refused"))

		p := NewPublisher(mockRedis, "")
		err := p.PublishProgress(ctx, models.Progress{SessionID: "sess-2"})
		assert.Error(t, err)
	})
}

func TestPublishFinished(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockRedis.On("XAdd", mock.Anything, mock.Anything).Return(nil)

	p := NewPublisher(mockRedis, "")
	result := &models.CrawlResult{
		SessionID:    "sess-3",
		StopReason:   models.StopNoNextPage,
		PagesVisited: 4,
		Items:        []*models.Item{{ASIN: "B01"}, {ASIN: "B02"}},
		Duplicates:   1,
		Duration:     3 * time.Second,
	}
	require.NoError(t, p.PublishFinished(context.Background(), result))

	assert.Equal(t, DefaultStream, mockRedis.lastArgs.Stream)

	var summary map[string]any
	data := mockRedis.lastArgs.Values.(map[string]interface{})["data"].(string)
	require.NoError(t, json.Unmarshal([]byte(data), &summary))
	assert.Equal(t, "no_next_page", summary["stop_reason"])
	assert.EqualValues(t, 2, summary["items"])
	assert.EqualValues(t, 3000, summary["duration_ms"])
}

func TestPublisherClose(t *testing.T) {
	mockRedis := new(MockRedisClient)
	mockRedis.On("Close").Return(nil)

	p := NewPublisher(mockRedis, "")
	assert.NoError(t, p.Close())
	mockRedis.AssertExpectations(t)
}
