// Package criteria defines the 8 website-effectiveness criteria and the
// fixed 3-tier taxonomy they execute under: cheap HTML heuristics first,
// AI judgments second, the external performance API last, so usable partial
// results appear as early as possible.
package criteria

import (
	"context"
	"time"

	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/content"
	"github.com/sitegauge/sitegauge/llm"
	"github.com/sitegauge/sitegauge/models"
	"github.com/sitegauge/sitegauge/pagespeed"
)

// EvaluateFunc evaluates one criterion against the acquired page.
// Implementations must be side-effect-free with respect to the scheduler's
// state; the ScoringContext is read-only.
type EvaluateFunc func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error)

// Descriptor is the static description of one criterion, known at process
// start and never mutated.
type Descriptor struct {
	// Name is one of the models.Criterion* constants.
	Name string

	// RequiresAI marks criteria that need judge credentials; without them
	// the criterion is skipped, not failed.
	RequiresAI bool

	// RequiresHTML marks criteria that need acquired page HTML.
	RequiresHTML bool

	// MaxAttempts bounds the retry loop: HTML heuristics are cheap enough
	// for 3 attempts, AI judgments get 2, and the external API gets 1
	// (its circuit breaker owns the backoff).
	MaxAttempts int

	// Fallback is the conservative baseline score substituted when the
	// real evaluation fails or the circuit is open. Below-average but
	// never zero, so a fallback never reads as either success or failure.
	Fallback float64

	// Evaluate produces the criterion's real result.
	Evaluate EvaluateFunc
}

// TierDefinition groups criteria sharing a cost/reliability profile into
// one scheduling unit with a shared time budget.
type TierDefinition struct {
	Tier     int
	Name     string
	Criteria []Descriptor
	Timeout  time.Duration
}

// Tier names.
const (
	TierFastHTML = "fast-html"
	TierAI       = "ai-assisted"
	TierExternal = "external-api"
)

// NewTiers binds the criterion evaluators to their collaborators and
// returns the fixed tier set, in execution order.
func NewTiers(judge *llm.Judge, psi *pagespeed.Client, prep *content.Preparer, cfg *config.Config) []TierDefinition {
	fb := cfg.Scoring.Fallbacks

	return []TierDefinition{
		{
			Tier:    1,
			Name:    TierFastHTML,
			Timeout: cfg.Tiers.FastHTMLTimeout,
			Criteria: []Descriptor{
				{
					Name:         models.CriterionSEO,
					RequiresHTML: true,
					MaxAttempts:  3,
					Fallback:     fb[models.CriterionSEO],
					Evaluate:     evaluateSEO,
				},
				{
					Name:         models.CriterionAccessibility,
					RequiresHTML: true,
					MaxAttempts:  3,
					Fallback:     fb[models.CriterionAccessibility],
					Evaluate:     evaluateAccessibility,
				},
				{
					Name:         models.CriterionTrust,
					RequiresHTML: true,
					MaxAttempts:  3,
					Fallback:     fb[models.CriterionTrust],
					Evaluate:     evaluateTrust,
				},
				{
					Name:         models.CriterionCTA,
					RequiresHTML: true,
					MaxAttempts:  3,
					Fallback:     fb[models.CriterionCTA],
					Evaluate:     evaluateCTA,
				},
			},
		},
		{
			Tier:    2,
			Name:    TierAI,
			Timeout: cfg.Tiers.AITimeout,
			Criteria: []Descriptor{
				{
					Name:         models.CriterionMessaging,
					RequiresAI:   true,
					RequiresHTML: true,
					MaxAttempts:  2,
					Fallback:     fb[models.CriterionMessaging],
					Evaluate:     evaluateMessaging(judge),
				},
				{
					Name:         models.CriterionContent,
					RequiresAI:   true,
					RequiresHTML: true,
					MaxAttempts:  2,
					Fallback:     fb[models.CriterionContent],
					Evaluate:     evaluateContentQuality(judge, prep, cfg.AI.MaxContentTokens),
				},
				{
					Name:         models.CriterionVisual,
					RequiresAI:   true,
					RequiresHTML: true,
					MaxAttempts:  2,
					Fallback:     fb[models.CriterionVisual],
					Evaluate:     evaluateVisualHierarchy(judge),
				},
			},
		},
		{
			Tier:    3,
			Name:    TierExternal,
			Timeout: cfg.Tiers.ExternalTimeout,
			Criteria: []Descriptor{
				{
					Name:        models.CriterionPageSpeed,
					MaxAttempts: 1,
					Fallback:    fb[models.CriterionPageSpeed],
					Evaluate:    evaluatePageSpeed(psi),
				},
			},
		},
	}
}

// check is one named pass/fail observation inside a heuristic criterion.
type check struct {
	name   string
	ok     bool
	weight float64
}

// scoreChecks folds a checklist into a CriterionResult: the score is 10 ×
// the passed weight fraction, and every check lands in Passes by name.
func scoreChecks(criterion, description string, checks []check, details map[string]string) models.CriterionResult {
	var total, passed float64
	p := models.Passes{Passed: []string{}, Failed: []string{}}
	for _, c := range checks {
		w := c.weight
		if w == 0 {
			w = 1
		}
		total += w
		if c.ok {
			passed += w
			p.Passed = append(p.Passed, c.name)
		} else {
			p.Failed = append(p.Failed, c.name)
		}
	}

	score := 0.0
	if total > 0 {
		score = 10 * passed / total
	}

	return models.CriterionResult{
		Criterion: criterion,
		Score:     score,
		Status:    models.StatusOK,
		Evidence: models.Evidence{
			Description: description,
			Details:     details,
		},
		Passes: p,
	}
}
