// Package scoring ranks collected listings with a family of
// Bayesian-style methods. All methods are deterministic batch operations:
// parameters derive fresh from the batch on every call, scores land in
// the items' Score field, and nothing else is mutated.
package scoring

import (
	"fmt"
	"log/slog"
	"strconv"

	"github.com/maltedev/product-ranker/internal/models"
)

// Method selects one of the scoring formulas.
type Method string

const (
	MethodClassic     Method = "classic"
	MethodEnhanced    Method = "enhanced"
	MethodWilson      Method = "wilson"
	MethodLogAdjusted Method = "logadjusted"
	MethodValue       Method = "value"
	MethodPremium     Method = "premium"
	MethodCustom      Method = "custom"
)

// Methods lists every supported method in display order.
func Methods() []Method {
	return []Method{
		MethodClassic, MethodEnhanced, MethodWilson,
		MethodLogAdjusted, MethodValue, MethodPremium, MethodCustom,
	}
}

// ParseMethod validates a user-supplied method name.
func ParseMethod(s string) (Method, error) {
	for _, m := range Methods() {
		if s == string(m) {
			return m, nil
		}
	}
	return "", fmt.Errorf("unknown scoring method %q", s)
}

// Params are the confidence-weighting parameters of the Bayesian
// average: C is the prior (center) rating and M its weight in
// review-count units. Larger M pulls low-evidence items harder toward C.
type Params struct {
	C float64
	M float64
}

// DefaultCustomParams backs the custom method when the caller supplies
// nothing.
var DefaultCustomParams = Params{C: 3.5, M: 100}

// Engine applies a scoring method to a batch of items.
type Engine struct {
	logger *slog.Logger
}

func NewEngine() *Engine {
	return &Engine{logger: slog.Default().With("component", "scoring")}
}

// Score computes the batch statistics and writes each item's Score. The
// custom parameter overrides the batch-derived {C, m} for the classic
// and custom methods and is ignored by the others. Malformed ratings and
// counts have already been coerced to zero upstream; scoring itself
// never produces NaN or Inf.
func (e *Engine) Score(items []*models.Item, method Method, custom *Params) (DatasetStats, error) {
	stats := ComputeStats(items)
	if len(items) == 0 {
		return stats, nil
	}

	switch method {
	case MethodClassic:
		params := Params{C: stats.MeanRating, M: stats.MeanReviews}
		if custom != nil {
			params = *custom
		}
		scoreWithParams(items, params)
	case MethodCustom:
		params := DefaultCustomParams
		if custom != nil {
			params = *custom
		}
		scoreWithParams(items, params)
	case MethodEnhanced:
		scoreEnhanced(items, stats)
	case MethodWilson:
		scoreWilson(items)
	case MethodLogAdjusted:
		scoreLogAdjusted(items, stats)
	case MethodValue:
		scoreValue(items, stats)
	case MethodPremium:
		scorePremium(items, stats)
	default:
		return stats, fmt.Errorf("unknown scoring method %q", method)
	}

	e.logger.Debug("batch scored",
		"method", method,
		"items", len(items),
		"mean_rating", stats.MeanRating,
		"max_reviews", stats.MaxReviews,
	)
	return stats, nil
}

// bayes is the weighted Bayesian average, the load-bearing formula of
// the engine: it interpolates between the item's own rating (as v grows)
// and the population prior C (as v shrinks).
func bayes(r float64, v int, c, m float64) float64 {
	den := float64(v) + m
	if den <= 0 {
		return 0
	}
	return (float64(v)/den)*r + (m/den)*c
}

// scoreWithParams is the classic/custom path: the bare Bayesian average,
// deliberately unclamped to preserve the reference behavior when C or R
// exceed the nominal range.
func scoreWithParams(items []*models.Item, p Params) {
	for _, it := range items {
		it.Score = bayes(clampRating(it.Rating), reviewCount(it), p.C, p.M)
	}
}

func reviewCount(it *models.Item) int {
	if it.Reviews < 0 {
		return 0
	}
	return it.Reviews
}

func clampScore(s float64) float64 {
	if s != s || s < 0 {
		return 0
	}
	if s > 5 {
		return 5
	}
	return s
}

// FormatScore renders a score with the fixed three-decimal precision
// used in exports and regression fixtures.
func FormatScore(s float64) string {
	return strconv.FormatFloat(s, 'f', 3, 64)
}
