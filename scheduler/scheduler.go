// Package scheduler executes the three criterion tiers: criteria within a
// tier fan out concurrently, tiers run strictly in order, and a progress
// snapshot is emitted after each tier joins. A tier that fails entirely is
// recorded and the next tier still runs — only acquisition failure, which
// happens before the scheduler is involved, aborts a run.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sitegauge/sitegauge/breaker"
	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/criteria"
	"github.com/sitegauge/sitegauge/models"
	"github.com/sitegauge/sitegauge/score"
)

// ProgressFunc receives each finished tier and the run snapshot, invoked
// synchronously on the run's goroutine, at most once per tier, in tier
// order. Callers must not retain the snapshot's slices past the call.
type ProgressFunc func(tier models.TierResult, snapshot models.ProgressiveResults)

// Scheduler drives tier execution. It is safe for concurrent use; the only
// mutable state it touches is the breaker registry, which locks internally.
type Scheduler struct {
	breakers     *breaker.Registry
	agg          *score.Aggregator
	aiConfigured bool

	criterionFloor time.Duration
	retryBackoff   time.Duration
	retryCap       time.Duration
}

// New creates a Scheduler.
func New(breakers *breaker.Registry, agg *score.Aggregator, cfg *config.Config) *Scheduler {
	return &Scheduler{
		breakers:       breakers,
		agg:            agg,
		aiConfigured:   cfg.AI.Configured(),
		criterionFloor: cfg.Tiers.CriterionFloor,
		retryBackoff:   cfg.Breaker.RetryBackoff,
		retryCap:       cfg.Breaker.RetryBackoffCap,
	}
}

// Run executes the given tiers in order against the acquired page and
// returns the completed run. onTier may be nil.
func (s *Scheduler) Run(
	ctx context.Context,
	site *models.ScoringContext,
	tiers []criteria.TierDefinition,
	onTier ProgressFunc,
) *models.ProgressiveResults {
	total := 0
	for _, t := range tiers {
		total += len(t.Criteria)
	}

	progress := &models.ProgressiveResults{
		Tiers:         make([]models.TierResult, 0, len(tiers)),
		TotalCriteria: total,
	}

	for i, tier := range tiers {
		tr := s.runTier(ctx, site, tier)

		progress.Tiers = append(progress.Tiers, tr)
		progress.CompletedCriteria += len(tr.Results)
		progress.Errors = append(progress.Errors, tr.Errors...)

		if i == len(tiers)-1 {
			progress.IsComplete = true
			progress.OverallScore = s.agg.Final(progress.AllResults())
		} else {
			progress.OverallScore = s.agg.Partial(progress.AllResults())
		}

		slog.Info("tier complete",
			"tier", tr.Tier,
			"name", tr.Name,
			"duration", tr.Duration,
			"partialScore", tr.PartialScore,
			"overallScore", progress.OverallScore,
		)

		if onTier != nil {
			onTier(tr, *progress)
		}
	}

	return progress
}

// runTier filters the tier's criteria down to the viable ones, fans those
// out concurrently with individual deadlines, and joins before returning.
func (s *Scheduler) runTier(ctx context.Context, site *models.ScoringContext, tier criteria.TierDefinition) models.TierResult {
	start := time.Now()
	tr := models.TierResult{Tier: tier.Tier, Name: tier.Name}

	var viable []criteria.Descriptor
	for _, d := range tier.Criteria {
		if reason := s.unviableReason(d, site); reason != "" {
			tr.Results = append(tr.Results, skippedResult(d.Name, reason))
			tr.Errors = append(tr.Errors, fmt.Sprintf("%s skipped: %s", d.Name, reason))
			continue
		}
		viable = append(viable, d)
	}

	if len(viable) == 0 {
		tr.Errors = append(tr.Errors, fmt.Sprintf("tier %d (%s): no viable criteria", tier.Tier, tier.Name))
		tr.Duration = time.Since(start)
		tr.DurationMs = tr.Duration.Milliseconds()
		return tr
	}

	// Split the tier budget so one slow criterion cannot starve the rest,
	// but never below the floor.
	perCriterion := tier.Timeout / time.Duration(len(viable))
	if perCriterion < s.criterionFloor {
		perCriterion = s.criterionFloor
	}

	results := make(chan models.CriterionResult, len(viable))
	var wg sync.WaitGroup
	for _, d := range viable {
		wg.Add(1)
		go func(d criteria.Descriptor) {
			defer wg.Done()
			results <- s.executeCriterion(ctx, d, site, perCriterion)
		}(d)
	}
	wg.Wait()
	close(results)

	for r := range results {
		tr.Results = append(tr.Results, r)
		switch r.Status {
		case models.StatusFailed:
			tr.Errors = append(tr.Errors, fmt.Sprintf("%s failed: %s", r.Criterion, r.Evidence.Reasoning))
		case models.StatusFallback:
			tr.Errors = append(tr.Errors, fmt.Sprintf("%s substituted with fallback score", r.Criterion))
		}
	}

	tr.PartialScore = partialScore(tr.Results)
	tr.Duration = time.Since(start)
	tr.DurationMs = tr.Duration.Milliseconds()
	return tr
}

// executeCriterion runs one criterion under its deadline, retry policy and
// circuit breaker. It always returns a result — real, fallback or failed —
// so no criterion is ever silently dropped from a run.
func (s *Scheduler) executeCriterion(
	ctx context.Context,
	d criteria.Descriptor,
	site *models.ScoringContext,
	timeout time.Duration,
) models.CriterionResult {
	start := time.Now()

	primary := func() (models.CriterionResult, error) {
		cctx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()
		return runWithRetry(cctx, d.MaxAttempts, s.retryBackoff, s.retryCap,
			func(ctx context.Context) (models.CriterionResult, error) {
				res, err := d.Evaluate(ctx, site)
				if err != nil {
					return models.CriterionResult{}, err
				}
				return res, nil
			})
	}

	result, err := s.breakers.Execute(d.Name, primary, s.substitute(d))
	if err != nil {
		// Unreachable while a substitute is supplied; belt and braces.
		result = failedResult(d.Name, err)
	}

	result.DurationMs = time.Since(start).Milliseconds()
	return result
}

// substitute builds the breaker fallback for a criterion. Permanent errors
// become hard failures (score 0, weight retained by the aggregator);
// everything else gets the criterion's conservative baseline, tagged so
// downstream consumers can discount it.
func (s *Scheduler) substitute(d criteria.Descriptor) func(cause error) models.CriterionResult {
	return func(cause error) models.CriterionResult {
		if models.IsPermanent(cause) {
			slog.Warn("criterion failed permanently", "criterion", d.Name, "error", cause)
			return failedResult(d.Name, cause)
		}
		slog.Warn("criterion using fallback score", "criterion", d.Name, "error", cause)
		return models.CriterionResult{
			Criterion: d.Name,
			Score:     d.Fallback,
			Status:    models.StatusFallback,
			Evidence: models.Evidence{
				Description: "conservative baseline: real evaluation unavailable",
				Details: map[string]string{
					"fallback": "true",
					"cause":    cause.Error(),
				},
			},
			Passes: models.Passes{Passed: []string{}, Failed: []string{}},
		}
	}
}

// unviableReason returns why a criterion cannot run against this context,
// or "" when it can.
func (s *Scheduler) unviableReason(d criteria.Descriptor, site *models.ScoringContext) string {
	if d.RequiresHTML && site.HTML == "" {
		return "no page HTML available"
	}
	if d.RequiresAI && !s.aiConfigured {
		return "AI credentials not configured"
	}
	return ""
}

func skippedResult(name, reason string) models.CriterionResult {
	return models.CriterionResult{
		Criterion: name,
		Status:    models.StatusSkipped,
		Evidence: models.Evidence{
			Description: "skipped: " + reason,
		},
		Passes: models.Passes{Passed: []string{}, Failed: []string{}},
	}
}

func failedResult(name string, cause error) models.CriterionResult {
	return models.CriterionResult{
		Criterion: name,
		Status:    models.StatusFailed,
		Evidence: models.Evidence{
			Description: "evaluation failed",
			Reasoning:   cause.Error(),
		},
		Passes: models.Passes{Passed: []string{}, Failed: []string{}},
	}
}

// partialScore is the unweighted mean of a tier's non-skipped scores.
func partialScore(results []models.CriterionResult) float64 {
	var sum float64
	n := 0
	for _, r := range results {
		if r.Status == models.StatusSkipped {
			continue
		}
		sum += r.Score
		n++
	}
	if n == 0 {
		return 0
	}
	return sum / float64(n)
}
