package scraper

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSetMaxRetries(t *testing.T) {
	s := NewSearchScraper(nil)
	assert.Equal(t, 3, s.maxRetries, "default retry count")

	s.SetMaxRetries(5)
	assert.Equal(t, 5, s.maxRetries)

	s.SetMaxRetries(0)
	assert.Equal(t, 5, s.maxRetries, "zero is ignored")

	s.SetMaxRetries(-1)
	assert.Equal(t, 5, s.maxRetries, "negative is ignored")
}
