// Package score turns whatever CriterionResults a run produced into one
// overall score in [0,10].
//
// Two deliberately different treatments keep the score honest:
//
//   - A hard failure scores 0 but keeps its weight in the denominator, so
//     failing a criterion can never inflate the overall score.
//   - A criterion with no result at all (skipped, or its tier never ran)
//     is excluded from the weighted mean and instead charged as a
//     multiplicative penalty, so a transient error that did reach a
//     fallback score is not punished twice.
package score

import (
	"math"

	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/models"
)

// Aggregator computes weighted overall scores. Weights reflect product
// importance, not measured reliability, and always sum to 1.0.
type Aggregator struct {
	weights        map[string]float64
	missingPenalty float64
}

// NewAggregator creates an Aggregator from the scoring configuration.
func NewAggregator(cfg config.ScoringConfig) *Aggregator {
	return &Aggregator{
		weights:        cfg.Weights,
		missingPenalty: cfg.MissingPenalty,
	}
}

// Partial computes the running weighted mean over the results seen so far,
// without the missing-criteria penalty — mid-run, "missing" mostly means
// "not reached yet", which is not a defect of the page.
func (a *Aggregator) Partial(results []models.CriterionResult) float64 {
	mean, _ := a.weightedMean(results)
	return round1(mean)
}

// Final computes the overall score for a completed run: weighted mean plus
// the per-missing-criterion multiplicative penalty, clamped to [0,10] and
// rounded to one decimal.
func (a *Aggregator) Final(results []models.CriterionResult) float64 {
	mean, present := a.weightedMean(results)

	missing := 0
	for _, name := range models.CriterionNames {
		if !present[name] {
			missing++
		}
	}
	mean *= math.Pow(1-a.missingPenalty, float64(missing))

	if mean < 0 {
		mean = 0
	}
	if mean > 10 {
		mean = 10
	}
	return round1(mean)
}

// weightedMean returns Σ(score·weight)/Σ(weight) over the criteria that
// count, and the set of criterion names that counted toward the mean.
//
// Counting rules: ok and fallback results contribute their score; failed
// results contribute 0 but keep their weight; skipped results (and results
// for unknown criteria) do not count at all.
func (a *Aggregator) weightedMean(results []models.CriterionResult) (float64, map[string]bool) {
	present := make(map[string]bool, len(results))
	var num, den float64

	for _, r := range results {
		w, known := a.weights[r.Criterion]
		if !known {
			continue
		}
		switch r.Status {
		case models.StatusSkipped:
			continue
		case models.StatusFailed:
			den += w
		default:
			num += r.Score * w
			den += w
		}
		present[r.Criterion] = true
	}

	if den == 0 {
		return 0, present
	}
	return num / den, present
}

func round1(x float64) float64 {
	return math.Round(x*10) / 10
}
