// Package models defines the data structures shared by the crawler,
// scoring engine, and exporters.
package models

import (
	"strings"
	"time"
)

// Item is one search-result listing collected during a crawl.
//
// Rating is on the 0-5 scale with 0 meaning "unrated". Reviews is the
// number of reviews backing the rating. Price 0 means "unknown", never
// "free". Score is written by the scoring engine and is absent (0) until
// scoring runs.
type Item struct {
	ASIN      string    `json:"asin,omitempty" csv:"asin"`
	Title     string    `json:"title" csv:"title"`
	URL       string    `json:"url,omitempty" csv:"url"`
	ImageURL  string    `json:"image_url,omitempty" csv:"image_url"`
	Rating    float64   `json:"rating" csv:"rating"`
	Reviews   int       `json:"reviews" csv:"reviews"`
	Price     float64   `json:"price" csv:"price"`
	ListPrice float64   `json:"list_price,omitempty" csv:"list_price"`
	Prime     bool      `json:"prime,omitempty" csv:"prime"`
	Score     float64   `json:"score" csv:"score"`
	ScrapedAt time.Time `json:"scraped_at,omitempty" csv:"scraped_at"`
}

// IdentityKey returns the stable deduplication key for the item: the
// platform id when present, otherwise the normalized title. Within one
// crawl the key is unique across surviving items.
func (it *Item) IdentityKey() string {
	if it.ASIN != "" {
		return it.ASIN
	}
	return NormalizeTitle(it.Title)
}

// NormalizeTitle lowercases a title and collapses runs of whitespace so
// that cosmetic markup differences between pages do not defeat dedup.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}
