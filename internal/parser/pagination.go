package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// nextLinkSelectors are tried in order; Amazon has shipped several
// pagination layouts and keeps old ones alive on some locales.
var nextLinkSelectors = []string{
	`a.s-pagination-next`,
	`ul.a-pagination li.a-last a`,
	`a[aria-label*="Next"]`,
	`.a-last a`,
}

// NextPageURL finds the link to the next result page. It returns ""
// with a nil error when the pagination marks the current page as the
// last one; that is the normal end of a crawl, not a failure.
func (p *SearchParser) NextPageURL(html string, baseURL string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", fmt.Errorf("failed to parse HTML: %w", err)
	}

	if doc.Find(`.s-pagination-next.s-pagination-disabled, .a-last.a-disabled`).Length() > 0 {
		return "", nil
	}

	for _, sel := range nextLinkSelectors {
		link := doc.Find(sel).First()
		if link.Length() == 0 {
			continue
		}
		if link.AttrOr("aria-disabled", "") == "true" {
			return "", nil
		}
		href := strings.TrimSpace(link.AttrOr("href", ""))
		if href == "" {
			continue
		}
		return p.resolveLink(href, baseURL), nil
	}
	return "", nil
}

var pageNumberSelectors = []string{
	`.s-pagination-container .s-pagination-item:not(.s-pagination-next):not(.s-pagination-previous)`,
	`ul.a-pagination li:not(.a-last):not(.a-selected) a`,
	`span.s-pagination-strip a:not(.s-pagination-next)`,
}

// MaxPages reads the highest page number visible in the pagination
// strip. On pages without pagination it reports 1. Amazon only renders
// a window of page links, so this is a lower bound, good enough to cap
// a crawl, not a promise.
func (p *SearchParser) MaxPages(html string) int {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return 1
	}

	maxPage := 1
	for _, sel := range pageNumberSelectors {
		found := false
		doc.Find(sel).Each(func(_ int, el *goquery.Selection) {
			num, err := strconv.Atoi(strings.TrimSpace(el.Text()))
			if err == nil && num > 0 {
				found = true
				if num > maxPage {
					maxPage = num
				}
			}
		})
		if found {
			break
		}
	}

	// On the last page the pagination window may only show earlier
	// pages; trust the selected page number instead.
	if doc.Find(`.s-pagination-next.s-pagination-disabled, .a-last.a-disabled`).Length() > 0 {
		current := strings.TrimSpace(doc.Find(`.s-pagination-selected, .a-selected`).First().Text())
		if num, err := strconv.Atoi(current); err == nil && num > maxPage {
			maxPage = num
		}
	}
	return maxPage
}
