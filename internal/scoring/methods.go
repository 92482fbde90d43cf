package scoring

import (
	"math"

	"github.com/maltedev/product-ranker/internal/models"
)

// enhancedParams derives the outlier-resistant prior: median rating for
// C (3.5 when the batch has no rated items) and the 25th percentile of
// positive review counts for m, floored at 10.
func enhancedParams(stats DatasetStats) Params {
	c := stats.MedianRating
	if c == 0 {
		c = 3.5
	}
	m := stats.P25Reviews
	if m < 10 {
		m = 10
	}
	return Params{C: c, M: m}
}

// ratingPenalty multiplies scores down for ratings below the acceptable
// threshold of 3.0 with a smooth quadratic falloff, so a 1-star item
// with one review cannot outrank a well-reviewed 4-star item.
func ratingPenalty(r float64) float64 {
	if r >= 3.0 {
		return 1.0
	}
	p := r / 3.0
	return p * p
}

// lowVolumePenalty ramps linearly from 0.5 at zero reviews to 1.0 at the
// confidence threshold, blunting gamed single-review five-star listings.
func lowVolumePenalty(v, threshold int) float64 {
	if v >= threshold {
		return 1.0
	}
	return 0.5 + float64(v)/(2.0*float64(threshold))
}

// reviewVolumeBonus rewards popularity with diminishing returns relative
// to the most-reviewed item in the batch.
func reviewVolumeBonus(v, maxReviews int) float64 {
	if v <= 0 {
		return 1.0
	}
	return 1.0 + 0.3*math.Log10(float64(v)+1)/math.Log10(float64(maxReviews)+1)
}

func scoreEnhanced(items []*models.Item, stats DatasetStats) {
	p := enhancedParams(stats)
	for _, it := range items {
		r := clampRating(it.Rating)
		v := reviewCount(it)
		score := bayes(r, v, p.C, p.M) * ratingPenalty(r) * lowVolumePenalty(v, 5)
		it.Score = clampScore(score)
	}
}

// scoreWilson ranks by the lower bound of the Wilson score interval on
// the rating treated as a Bernoulli proportion (z = 1.96, 95% CI),
// rescaled back to the 5-star range. Zero reviews scores exactly 0.
func scoreWilson(items []*models.Item) {
	const z = 1.96
	for _, it := range items {
		n := float64(reviewCount(it))
		if n == 0 {
			it.Score = 0
			continue
		}

		phat := clampRating(it.Rating) / 5
		denominator := 1 + (z*z)/n
		center := phat + (z*z)/(2*n)
		spread := z * math.Sqrt((phat*(1-phat)+(z*z)/(4*n))/n)

		it.Score = (center - spread) / denominator * 5
	}
}

// scoreLogAdjusted adds a logarithmic popularity bonus (up to 0.5) on
// top of the classic Bayesian average, capped at 5.
func scoreLogAdjusted(items []*models.Item, stats DatasetStats) {
	maxReviews := stats.MaxReviews
	if maxReviews < 1 {
		maxReviews = 1
	}
	for _, it := range items {
		r := clampRating(it.Rating)
		v := reviewCount(it)
		score := bayes(r, v, stats.MeanRating, stats.MeanReviews)
		if v > 0 {
			score += 0.5 * math.Log10(float64(v)+1) / math.Log10(float64(maxReviews)+1)
		}
		if score > 5 {
			score = 5
		}
		it.Score = score
	}
}

// scoreValue favors cheap-but-good listings. Quality is the enhanced
// score with a review-volume bonus; priced items then get an additive
// log price adjustment against the batch's 25th-percentile reference
// price and are min-max rescaled to [0,5] across the batch. The
// rescaling makes a priced item's score depend on the rest of the batch;
// that coupling is deliberate, because the unbounded log term would
// otherwise pile scores up against the cap and destroy spread. Items
// without a price bypass the adjustment entirely and keep their clamped
// quality score: an unknown price is never "free best value".
func scoreValue(items []*models.Item, stats DatasetStats) {
	p := enhancedParams(stats)
	refPrice := stats.P25Price

	raws := make([]float64, len(items))
	priced := make([]bool, len(items))
	anyPriced := false
	var minRaw, maxRaw float64

	for i, it := range items {
		r := clampRating(it.Rating)
		v := reviewCount(it)
		quality := bayes(r, v, p.C, p.M) *
			ratingPenalty(r) *
			lowVolumePenalty(v, 5) *
			reviewVolumeBonus(v, stats.MaxReviews)

		if it.Price > 0 && refPrice > 0 {
			raw := quality + 0.8*math.Log(refPrice/(it.Price+0.1*refPrice))
			raws[i] = raw
			priced[i] = true
			if !anyPriced || raw < minRaw {
				minRaw = raw
			}
			if !anyPriced || raw > maxRaw {
				maxRaw = raw
			}
			anyPriced = true
			continue
		}
		it.Score = clampScore(quality)
	}

	if !anyPriced {
		return
	}

	spread := maxRaw - minRaw
	for i, it := range items {
		if !priced[i] {
			continue
		}
		if spread <= 0 {
			it.Score = clampScore(raws[i])
			continue
		}
		it.Score = 5 * (raws[i] - minRaw) / spread
	}
}

// priceTier buckets a price into review-count expectations: expensive
// items naturally attract fewer buyers and reviews, so higher tiers
// shrink both the prior weight and the low-volume confidence bar.
type priceTier struct {
	name                string
	multiplier          float64
	confidenceThreshold int
}

func tierFor(price float64) priceTier {
	switch {
	case price != price || price <= 0:
		return priceTier{"budget", 1.0, 5}
	case price <= 50:
		return priceTier{"budget", 1.0, 5}
	case price <= 200:
		return priceTier{"midrange", 0.7, 3}
	case price <= 500:
		return priceTier{"premium", 0.5, 3}
	default:
		return priceTier{"luxury", 0.3, 2}
	}
}

func scorePremium(items []*models.Item, stats DatasetStats) {
	p := enhancedParams(stats)
	for _, it := range items {
		r := clampRating(it.Rating)
		v := reviewCount(it)
		tier := tierFor(it.Price)

		adjustedM := p.M * tier.multiplier
		score := bayes(r, v, p.C, adjustedM) *
			ratingPenalty(r) *
			lowVolumePenalty(v, tier.confidenceThreshold)
		it.Score = clampScore(score)
	}
}
