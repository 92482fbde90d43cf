package parser

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cardSpec struct {
	asin      string
	title     string
	rating    string
	reviews   string
	price     string
	listPrice string
	href      string
	prime     bool
	image     string
}

func renderCard(c cardSpec) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<div data-component-type="s-search-result" data-asin="%s">`, c.asin)

	href := c.href
	if href == "" && c.asin != "" {
		href = "/dp/" + c.asin
	}
	fmt.Fprintf(&b, `<h2><a href="%s"><span>%s</span></a></h2>`, href, c.title)

	if c.image != "" {
		fmt.Fprintf(&b, `<img class="s-image" src="%s" alt="%s">`, c.image, c.title)
	}
	if c.rating != "" {
		fmt.Fprintf(&b, `<i class="a-icon-star-small"><span class="a-icon-alt">%s out of 5 stars</span></i>`, c.rating)
	}
	if c.reviews != "" {
		fmt.Fprintf(&b, `<a href="/product-reviews/x#customerReviews"><span>%s</span></a>`, c.reviews)
	}
	if c.price != "" {
		fmt.Fprintf(&b, `<span class="a-price"><span class="a-offscreen">$%s</span></span>`, c.price)
	}
	if c.listPrice != "" {
		fmt.Fprintf(&b, `<span class="a-price a-text-price" data-a-strike="true"><span class="a-offscreen">$%s</span></span>`, c.listPrice)
	}
	if c.prime {
		b.WriteString(`<i class="a-icon-prime"></i>`)
	}
	b.WriteString(`</div>`)
	return b.String()
}

func renderPage(cards ...cardSpec) string {
	var b strings.Builder
	b.WriteString(`<html><body><div class="s-main-slot">`)
	for _, c := range cards {
		b.WriteString(renderCard(c))
	}
	b.WriteString(`</div></body></html>`)
	return b.String()
}

const base = "https://www.amazon.com"

func TestParseSearchPage(t *testing.T) {
	p := NewSearchParser()

	html := renderPage(
		cardSpec{
			asin: "B0TEST0001", title: "Logitech Wireless Mouse M185",
			rating: "4.5", reviews: "12,456", price: "13.99", listPrice: "19.99",
			prime: true, image: "https://m.media-amazon.com/1.jpg",
		},
		cardSpec{
			asin: "B0TEST0002", title: "Mechanical Keyboard with RGB Backlight",
			rating: "4.2", reviews: "873", price: "49.90",
		},
	)

	items, err := p.ParseSearchPage(html, base)
	require.NoError(t, err)
	require.Len(t, items, 2)

	first := items[0]
	assert.Equal(t, "B0TEST0001", first.ASIN)
	assert.Equal(t, "Logitech Wireless Mouse M185", first.Title)
	assert.Equal(t, "https://www.amazon.com/dp/B0TEST0001", first.URL)
	assert.Equal(t, "https://m.media-amazon.com/1.jpg", first.ImageURL)
	assert.InDelta(t, 4.5, first.Rating, 1e-9)
	assert.Equal(t, 12456, first.Reviews)
	assert.InDelta(t, 13.99, first.Price, 1e-9)
	assert.InDelta(t, 19.99, first.ListPrice, 1e-9)
	assert.True(t, first.Prime)

	second := items[1]
	assert.Equal(t, 873, second.Reviews)
	assert.Zero(t, second.ListPrice)
	assert.False(t, second.Prime)
}

func TestParseSearchPageEmptyIsNotAnError(t *testing.T) {
	p := NewSearchParser()

	items, err := p.ParseSearchPage(`<html><body><div class="s-main-slot"></div></body></html>`, base)
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestMissingFieldsBecomeZeroValues(t *testing.T) {
	p := NewSearchParser()

	html := renderPage(cardSpec{asin: "B0TEST0003", title: "Bare Bones Listing With No Numbers"})
	items, err := p.ParseSearchPage(html, base)
	require.NoError(t, err)
	require.Len(t, items, 1)

	it := items[0]
	assert.Zero(t, it.Rating)
	assert.Zero(t, it.Reviews)
	assert.Zero(t, it.Price)
	assert.False(t, it.Prime)
}

func TestTitleCleaning(t *testing.T) {
	p := NewSearchParser()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{"sponsored prefix", "Sponsored - Anker USB C Charger Block", "Anker USB C Charger Block"},
		{"spanish sponsored prefix", "Anuncio patrocinado: Cable HDMI 4K de alta velocidad", "Cable HDMI 4K de alta velocidad"},
		{"sponsored suffix", "Anker USB C Charger Block - Sponsored", "Anker USB C Charger Block"},
		{"collapsed whitespace", "Anker   USB C\n Charger  Block", "Anker USB C Charger Block"},
		{"trailing ellipsis", "Anker USB C Charger Block...", "Anker USB C Charger Block"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := renderPage(cardSpec{asin: "B0TEST0004", title: tt.title})
			items, err := p.ParseSearchPage(html, base)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, tt.want, items[0].Title)
		})
	}
}

func TestNoiseCardsAreSkipped(t *testing.T) {
	p := NewSearchParser()

	tests := []struct {
		name  string
		title string
	}{
		{"too short", "USB Hub"},
		{"bare price", "$1,299.00 was the price"},
		{"pagination text", "Next page of search results"},
		{"rating text", "4.5 out of 5 stars overall rating"},
		{"shipping banner", "Free shipping on orders over $25"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			html := renderPage(
				cardSpec{asin: "B0NOISE", title: tt.title},
				cardSpec{asin: "B0KEEP01", title: "Stainless Steel Water Bottle 32oz"},
			)
			items, err := p.ParseSearchPage(html, base)
			require.NoError(t, err)
			require.Len(t, items, 1, "only the real product survives")
			assert.Equal(t, "B0KEEP01", items[0].ASIN)
		})
	}
}

func TestReviewCountFormats(t *testing.T) {
	p := NewSearchParser()

	tests := []struct {
		raw  string
		want int
	}{
		{"1,234", 1234},
		{"12", 12},
		{"1.2k", 1200},
		{"1,2k", 1200},
		{"3K", 3000},
		{"2.5M", 2500000},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			html := renderPage(cardSpec{asin: "B0TEST0005", title: "Portable Bluetooth Speaker", reviews: tt.raw})
			items, err := p.ParseSearchPage(html, base)
			require.NoError(t, err)
			require.Len(t, items, 1)
			assert.Equal(t, tt.want, items[0].Reviews)
		})
	}
}

func TestCommaDecimalRating(t *testing.T) {
	p := NewSearchParser()

	html := `<div class="s-main-slot"><div data-component-type="s-search-result" data-asin="B0TEST0006">` +
		`<h2><a href="/dp/B0TEST0006"><span>Cafetera de Goteo Programable</span></a></h2>` +
		`<i><span class="a-icon-alt">4,3 de 5 estrellas</span></i></div></div>`

	items, err := p.ParseSearchPage(html, base)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.InDelta(t, 4.3, items[0].Rating, 1e-9)
}

func TestSponsoredRedirectURLUnwrapped(t *testing.T) {
	p := NewSearchParser()

	href := "/sspa/click?ie=UTF8&spc=xyz&url=%2Fdp%2FB0TEST0007%3Fpsc%3D1"
	html := renderPage(cardSpec{asin: "B0TEST0007", title: "Ergonomic Office Chair with Lumbar Support", href: href})

	items, err := p.ParseSearchPage(html, base)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "https://www.amazon.com/dp/B0TEST0007?psc=1", items[0].URL)
}

func TestNextPageURL(t *testing.T) {
	p := NewSearchParser()

	t.Run("modern pagination", func(t *testing.T) {
		html := `<a class="s-pagination-next" href="/s?k=mouse&page=2">Next</a>`
		next, err := p.NextPageURL(html, base)
		require.NoError(t, err)
		assert.Equal(t, "https://www.amazon.com/s?k=mouse&page=2", next)
	})

	t.Run("legacy pagination", func(t *testing.T) {
		html := `<ul class="a-pagination"><li class="a-last"><a href="/s?k=mouse&page=3">Next</a></li></ul>`
		next, err := p.NextPageURL(html, base)
		require.NoError(t, err)
		assert.Equal(t, "https://www.amazon.com/s?k=mouse&page=3", next)
	})

	t.Run("disabled next means last page", func(t *testing.T) {
		html := `<span class="s-pagination-next s-pagination-disabled">Next</span>`
		next, err := p.NextPageURL(html, base)
		require.NoError(t, err)
		assert.Empty(t, next)
	})

	t.Run("aria-disabled means last page", func(t *testing.T) {
		html := `<a class="s-pagination-next" aria-disabled="true" href="/s?page=9">Next</a>`
		next, err := p.NextPageURL(html, base)
		require.NoError(t, err)
		assert.Empty(t, next)
	})

	t.Run("no pagination at all", func(t *testing.T) {
		next, err := p.NextPageURL(`<html><body></body></html>`, base)
		require.NoError(t, err)
		assert.Empty(t, next)
	})
}

func TestMaxPages(t *testing.T) {
	p := NewSearchParser()

	t.Run("reads highest visible page", func(t *testing.T) {
		html := `<div class="s-pagination-container">` +
			`<span class="s-pagination-item s-pagination-selected">1</span>` +
			`<a class="s-pagination-item" href="/s?page=2">2</a>` +
			`<a class="s-pagination-item" href="/s?page=7">7</a>` +
			`<a class="s-pagination-item s-pagination-next" href="/s?page=2">Next</a></div>`
		assert.Equal(t, 7, p.MaxPages(html))
	})

	t.Run("no pagination defaults to one", func(t *testing.T) {
		assert.Equal(t, 1, p.MaxPages(`<html><body></body></html>`))
	})

	t.Run("last page trusts selected number", func(t *testing.T) {
		html := `<span class="s-pagination-next s-pagination-disabled">Next</span>` +
			`<span class="s-pagination-selected">12</span>`
		assert.Equal(t, 12, p.MaxPages(html))
	})
}
