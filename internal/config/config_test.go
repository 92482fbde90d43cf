package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 5, cfg.Crawler.PageLimit)
	assert.Equal(t, 90*time.Second, cfg.Crawler.PageTimeout)
	assert.Equal(t, "classic", cfg.Crawler.Method)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, "product_ranker", cfg.Database.DBName)
	assert.Equal(t, "crawl:events", cfg.Redis.Stream)
	assert.Equal(t, "csv", cfg.Export.Format)

	assert.NoError(t, cfg.Validate())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CRAWLER_PAGE_LIMIT", "20")
	t.Setenv("CRAWLER_METHOD", "wilson")
	t.Setenv("CRAWLER_PAGE_TIMEOUT", "2m")
	t.Setenv("BROWSER_HEADLESS", "false")
	t.Setenv("CRAWLER_CUSTOM_M", "250")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 20, cfg.Crawler.PageLimit)
	assert.Equal(t, "wilson", cfg.Crawler.Method)
	assert.Equal(t, 2*time.Minute, cfg.Crawler.PageTimeout)
	assert.False(t, cfg.Browser.Headless)
	assert.InDelta(t, 250, cfg.Crawler.CustomM, 1e-9)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults are valid", func(*Config) {}, false},
		{"negative page limit", func(c *Config) { c.Crawler.PageLimit = -1 }, true},
		{"inverted rate limits", func(c *Config) {
			c.Crawler.RateLimitMin = 10 * time.Second
			c.Crawler.RateLimitMax = 2 * time.Second
		}, true},
		{"unknown method", func(c *Config) { c.Crawler.Method = "magic" }, true},
		{"unknown export format", func(c *Config) { c.Export.Format = "xlsx" }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load()
			require.NoError(t, err)
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}
