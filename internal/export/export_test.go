package export

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maltedev/product-ranker/internal/models"
)

func sampleItems() []*models.Item {
	return []*models.Item{
		{ASIN: "B01", Title: "Céramique Mug", Rating: 4.1, Reviews: 150, Price: 12.50, Score: 3.9},
		{ASIN: "B02", Title: "Steel Tumbler", Rating: 4.7, Reviews: 2300, Price: 24.99, Score: 4.6, Prime: true},
		{ASIN: "B03", Title: "Glass Carafe", Rating: 3.8, Reviews: 40, Price: 18.00, Score: 3.7},
	}
}

func TestWriteCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleItems()))

	out := buf.Bytes()
	require.True(t, bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}), "CSV must start with a UTF-8 BOM")

	r := csv.NewReader(bytes.NewReader(out[3:]))
	records, err := r.ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)

	assert.Equal(t, "Name", records[0][0])
	assert.Equal(t, "Score", records[0][7])

	// Highest score first.
	assert.Equal(t, "Steel Tumbler", records[1][0])
	assert.Equal(t, "4.600", records[1][7])
	assert.Equal(t, "Yes", records[1][6])
	assert.Equal(t, "Céramique Mug", records[2][0])
	assert.Equal(t, "Glass Carafe", records[3][0])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	assert.Len(t, lines, 1, "header only")
}

func TestWriteJSONSortsByScore(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteJSON(&buf, sampleItems()))

	var decoded []*models.Item
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded, 3)
	assert.Equal(t, "B02", decoded[0].ASIN)
	assert.Equal(t, "B01", decoded[1].ASIN)
	assert.Equal(t, "B03", decoded[2].ASIN)
}

func TestSortByScoreIsStableOnTies(t *testing.T) {
	items := []*models.Item{
		{ASIN: "B10", Title: "Zeta Widget", Score: 4.0},
		{ASIN: "B11", Title: "Alpha Widget", Score: 4.0},
	}
	SortByScore(items)
	assert.Equal(t, "Alpha Widget", items[0].Title)
}

func TestWriteFileDoesNotMutateInput(t *testing.T) {
	items := sampleItems()
	dir := t.TempDir()
	path := filepath.Join(dir, "out", "products.csv")

	require.NoError(t, WriteFile(path, FormatCSV, items))

	// Original order untouched.
	assert.Equal(t, "B01", items[0].ASIN)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in      string
		want    Format
		wantErr bool
	}{
		{"csv", FormatCSV, false},
		{"json", FormatJSON, false},
		{"xlsx", "", true},
		{"", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseFormat(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
