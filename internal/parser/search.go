// Package parser extracts product listings and pagination links from
// Amazon search-result HTML.
package parser

import (
	"fmt"
	"math"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/maltedev/product-ranker/internal/models"
)

// SearchParser extracts product cards from an Amazon search result
// page. It is tolerant by construction: a card that fails a field
// yields a zero value for that field, a card without a usable title is
// skipped, and a page without any cards is an empty slice, not an
// error.
type SearchParser struct {
	ratingPattern    *regexp.Regexp
	reviewsPattern   *regexp.Regexp
	pricePattern     *regexp.Regexp
	sponsoredPrefix  *regexp.Regexp
	sponsoredSuffix  *regexp.Regexp
	priceOnlyPattern *regexp.Regexp
	uiNoisePatterns  []*regexp.Regexp
}

func NewSearchParser() *SearchParser {
	return &SearchParser{
		// "4.5 out of 5 stars", "4,5 de 5 estrellas"
		ratingPattern:  regexp.MustCompile(`^([\d.,]+)`),
		reviewsPattern: regexp.MustCompile(`([\d.,]+)\s*([kKmM])?`),
		pricePattern:   regexp.MustCompile(`[\d,]+\.?\d*`),
		sponsoredPrefix: regexp.MustCompile(
			`(?i)^(anuncio\s+)?(patrocinado|sponsored|publicidad|promoted)\s*[-:]?\s*`),
		sponsoredSuffix: regexp.MustCompile(
			`(?i)\s*[-:]?\s*(sponsored|patrocinado|publicidad|promoted)$`),
		priceOnlyPattern: regexp.MustCompile(`^[$€£¥₹]\s*[\d,]+|^\d+[.,]\d+$`),
		uiNoisePatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)^(add to cart|buy now|see more|sort by|filter by)`),
			regexp.MustCompile(`(?i)^(next page|previous page|go to page|page \d+|página \d+)`),
			regexp.MustCompile(`(?i)^\d+[.,]?\d* (out of \d+ stars|de \d+ estrellas)`),
			regexp.MustCompile(`(?i)^(free shipping|prime|best seller|amazon's choice|limited time deal)`),
			regexp.MustCompile(`(?i)^(customer reviews|visit the|sign in|create account)`),
			regexp.MustCompile(`(?i)(related searches|more results|your history)`),
		},
	}
}

const cardSelector = `[data-component-type="s-search-result"]`

// ParseSearchPage pulls every usable product card out of the page.
// baseURL resolves relative product links; it is also the origin used
// when rebuilding a /dp/ link from the ASIN.
func (p *SearchParser) ParseSearchPage(html string, baseURL string) ([]*models.Item, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	cards := doc.Find("div.s-main-slot " + cardSelector)
	if cards.Length() == 0 {
		cards = doc.Find(cardSelector)
	}

	var items []*models.Item
	cards.Each(func(_ int, card *goquery.Selection) {
		if it := p.parseCard(card, baseURL); it != nil {
			items = append(items, it)
		}
	})
	return items, nil
}

func (p *SearchParser) parseCard(card *goquery.Selection, baseURL string) *models.Item {
	title := p.cleanTitle(p.extractTitle(card))
	if !p.validTitle(title) {
		return nil
	}

	asin := strings.TrimSpace(card.AttrOr("data-asin", ""))

	it := &models.Item{
		ASIN:      asin,
		Title:     title,
		URL:       p.extractURL(card, asin, baseURL),
		ImageURL:  card.Find("img.s-image").First().AttrOr("src", ""),
		Rating:    p.extractRating(card),
		Reviews:   p.extractReviews(card),
		Price:     p.extractPrice(card, "span.a-price span.a-offscreen, span.a-price-whole"),
		ListPrice: p.extractPrice(card, `span.a-text-price[data-a-strike="true"] span.a-offscreen, .a-price.a-text-price span.a-offscreen`),
		Prime:     card.Find(`i.a-icon-prime, [aria-label="Prime"]`).Length() > 0,
	}
	return it
}

// extractTitle tries the title attribute, then aria-label, then the
// visible heading text.
func (p *SearchParser) extractTitle(card *goquery.Selection) string {
	link := card.Find("h2 a").First()
	if title := strings.TrimSpace(link.AttrOr("title", "")); title != "" {
		return title
	}
	if label := strings.TrimSpace(link.AttrOr("aria-label", "")); label != "" {
		return label
	}
	if h2 := card.Find("a h2").First(); h2.Length() > 0 {
		if label := strings.TrimSpace(h2.AttrOr("aria-label", "")); label != "" {
			return label
		}
		return strings.TrimSpace(h2.Text())
	}
	return strings.TrimSpace(card.Find("h2").First().Text())
}

// cleanTitle strips sponsored labels, marketplace suffixes and stray
// brackets the card markup leaks into the heading.
func (p *SearchParser) cleanTitle(title string) string {
	title = p.sponsoredPrefix.ReplaceAllString(title, "")
	title = p.sponsoredSuffix.ReplaceAllString(title, "")
	title = strings.TrimLeft(title, "[]()")
	title = strings.TrimRight(title, ".")
	return strings.Join(strings.Fields(title), " ")
}

// validTitle rejects cards whose heading is UI furniture rather than a
// product name. Anything under 10 characters is noise.
func (p *SearchParser) validTitle(title string) bool {
	if len(title) < 10 {
		return false
	}
	if p.priceOnlyPattern.MatchString(title) {
		return false
	}
	for _, pattern := range p.uiNoisePatterns {
		if pattern.MatchString(title) {
			return false
		}
	}
	return true
}

func (p *SearchParser) extractRating(card *goquery.Selection) float64 {
	text := strings.TrimSpace(card.Find("i span.a-icon-alt").First().Text())
	if text == "" {
		return 0
	}
	match := p.ratingPattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	rating, err := strconv.ParseFloat(strings.ReplaceAll(match[1], ",", "."), 64)
	if err != nil || math.IsNaN(rating) {
		return 0
	}
	return rating
}

// extractReviews handles both "1,234" (thousands separator) and
// "1.2k" / "1,2k" (multiplier) formats.
func (p *SearchParser) extractReviews(card *goquery.Selection) int {
	el := card.Find(`a[href*="#customerReviews"] span, span[aria-label*="rating"], span[aria-label*="calificaci"]`).First()
	text := strings.TrimSpace(el.Text())
	if text == "" {
		text = strings.TrimSpace(el.AttrOr("aria-label", ""))
	}
	if text == "" {
		return 0
	}

	match := p.reviewsPattern.FindStringSubmatch(text)
	if match == nil {
		return 0
	}
	num := match[1]

	if match[2] != "" {
		// "1,2k" and "1.2k" both mean 1200.
		num = strings.ReplaceAll(num, ",", ".")
		value, err := strconv.ParseFloat(num, 64)
		if err != nil {
			return 0
		}
		mult := 1000.0
		if strings.EqualFold(match[2], "m") {
			mult = 1_000_000
		}
		return int(math.Round(value * mult))
	}

	num = strings.ReplaceAll(num, ",", "")
	num = strings.TrimSuffix(num, ".")
	count, err := strconv.Atoi(num)
	if err != nil || count < 0 {
		return 0
	}
	return count
}

func (p *SearchParser) extractPrice(card *goquery.Selection, selector string) float64 {
	text := strings.TrimSpace(card.Find(selector).First().Text())
	if text == "" {
		return 0
	}
	match := p.pricePattern.FindString(text)
	if match == "" {
		return 0
	}
	price, err := strconv.ParseFloat(strings.ReplaceAll(match, ",", ""), 64)
	if err != nil || math.IsNaN(price) || price < 0 {
		return 0
	}
	return price
}

// extractURL resolves the product link, unwrapping /sspa/click ad
// redirects, and falls back to a /dp/ link built from the ASIN.
func (p *SearchParser) extractURL(card *goquery.Selection, asin, baseURL string) string {
	selectors := []string{
		`h2 a[href*="/dp/"], h2 a[href*="/sspa/click"]`,
		`a.a-link-normal[href*="/dp/"], a.a-link-normal[href*="/sspa/click"]`,
	}
	for _, sel := range selectors {
		href := card.Find(sel).First().AttrOr("href", "")
		if href == "" {
			continue
		}
		return p.resolveLink(href, baseURL)
	}
	if asin != "" && baseURL != "" {
		return strings.TrimRight(baseURL, "/") + "/dp/" + asin
	}
	return ""
}

func (p *SearchParser) resolveLink(href, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	if strings.Contains(href, "/sspa/click") {
		if u, err := url.Parse(href); err == nil {
			if embedded := u.Query().Get("url"); embedded != "" {
				if decoded, err := url.QueryUnescape(embedded); err == nil {
					href = decoded
				}
			}
		}
	}

	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if base != nil {
		return base.ResolveReference(u).String()
	}
	return u.String()
}
