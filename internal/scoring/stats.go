package scoring

import (
	"sort"

	"github.com/maltedev/product-ranker/internal/models"
)

// DatasetStats is an immutable snapshot of batch-level aggregates. It is
// computed fresh from the full item set on every Score call, never
// mutated in place. The arithmetic means feed the classic method and are
// outlier-sensitive by design; the order statistics feed the enhanced,
// value, and premium methods.
type DatasetStats struct {
	MeanRating   float64
	MeanReviews  float64
	MedianRating float64
	P25Reviews   float64
	P25Price     float64
	MaxReviews   int
	Count        int
}

// ComputeStats derives the snapshot for a batch. Empty and single-item
// batches are valid: percentiles and medians degrade to zero and the
// single value respectively.
func ComputeStats(items []*models.Item) DatasetStats {
	stats := DatasetStats{Count: len(items)}
	if len(items) == 0 {
		return stats
	}

	var ratingSum, reviewSum float64
	positiveRatings := make([]float64, 0, len(items))
	positiveReviews := make([]float64, 0, len(items))
	positivePrices := make([]float64, 0, len(items))

	for _, it := range items {
		r := clampRating(it.Rating)
		v := it.Reviews
		if v < 0 {
			v = 0
		}

		ratingSum += r
		reviewSum += float64(v)
		if v > stats.MaxReviews {
			stats.MaxReviews = v
		}
		if r > 0 {
			positiveRatings = append(positiveRatings, r)
		}
		if v > 0 {
			positiveReviews = append(positiveReviews, float64(v))
		}
		if it.Price > 0 {
			positivePrices = append(positivePrices, it.Price)
		}
	}

	n := float64(len(items))
	stats.MeanRating = ratingSum / n
	stats.MeanReviews = reviewSum / n
	stats.MedianRating = median(positiveRatings)
	stats.P25Reviews = percentile(positiveReviews, 0.25)
	stats.P25Price = percentile(positivePrices, 0.25)
	return stats
}

// percentile returns the value at the given fraction of the sorted
// input, using the floor(len*p) index. Empty input returns 0.
func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	idx := int(float64(len(sorted)) * p)
	if idx > len(sorted)-1 {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

// median returns the middle value, averaging the two central values for
// even-length input. Empty input returns 0.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func clampRating(r float64) float64 {
	if r != r || r < 0 {
		return 0
	}
	if r > 5 {
		return 5
	}
	return r
}
