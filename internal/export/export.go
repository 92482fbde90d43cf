// Package export renders a scored crawl result to CSV or JSON.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/maltedev/product-ranker/internal/models"
)

type Format string

const (
	FormatCSV  Format = "csv"
	FormatJSON Format = "json"
)

func ParseFormat(s string) (Format, error) {
	switch Format(s) {
	case FormatCSV, FormatJSON:
		return Format(s), nil
	default:
		return "", fmt.Errorf("unknown export format %q", s)
	}
}

// utf8BOM makes Excel detect the encoding correctly; without it
// non-ASCII titles render as mojibake.
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var csvHeader = []string{
	"Name", "ASIN", "Rating", "Reviews", "Price", "List Price",
	"Prime", "Score", "Link", "Image URL", "Scraped At",
}

// SortByScore orders items best first, with title as a stable
// tiebreaker so equal scores keep a deterministic order.
func SortByScore(items []*models.Item) {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].Score != items[j].Score {
			return items[i].Score > items[j].Score
		}
		return items[i].Title < items[j].Title
	})
}

// WriteCSV emits the items as a UTF-8 CSV table, highest score first.
// The input slice is not modified.
func WriteCSV(w io.Writer, items []*models.Item) error {
	if _, err := w.Write(utf8BOM); err != nil {
		return fmt.Errorf("write csv bom: %w", err)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, it := range sortedCopy(items) {
		record := []string{
			it.Title,
			it.ASIN,
			strconv.FormatFloat(it.Rating, 'f', 1, 64),
			strconv.Itoa(it.Reviews),
			strconv.FormatFloat(it.Price, 'f', 2, 64),
			strconv.FormatFloat(it.ListPrice, 'f', 2, 64),
			yesNo(it.Prime),
			strconv.FormatFloat(it.Score, 'f', 3, 64),
			it.URL,
			it.ImageURL,
			formatTime(it.ScrapedAt),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv record: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

// WriteJSON emits the items as one indented JSON array, highest score
// first.
func WriteJSON(w io.Writer, items []*models.Item) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(sortedCopy(items)); err != nil {
		return fmt.Errorf("encode json: %w", err)
	}
	return nil
}

// WriteFile renders items to path in the given format, creating parent
// directories as needed.
func WriteFile(path string, format Format, items []*models.Item) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create export file: %w", err)
	}
	defer f.Close()

	switch format {
	case FormatJSON:
		err = WriteJSON(f, items)
	default:
		err = WriteCSV(f, items)
	}
	if err != nil {
		return err
	}
	return f.Close()
}

func sortedCopy(items []*models.Item) []*models.Item {
	out := make([]*models.Item, len(items))
	copy(out, items)
	SortByScore(out)
	return out
}

func yesNo(b bool) string {
	if b {
		return "Yes"
	}
	return "No"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(time.RFC3339)
}
