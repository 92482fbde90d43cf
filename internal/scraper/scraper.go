package scraper

import (
	"errors"
)

var (
	ErrInvalidURL   = errors.New("invalid search URL")
	ErrPageNotReady = errors.New("search results not loaded")
	ErrRateLimited  = errors.New("rate limited by Amazon")
	ErrBlocked      = errors.New("blocked by Amazon anti-bot")
)
