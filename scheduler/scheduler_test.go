package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sitegauge/sitegauge/breaker"
	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/criteria"
	"github.com/sitegauge/sitegauge/models"
	"github.com/sitegauge/sitegauge/score"
)

func testConfig(aiKey string) *config.Config {
	cfg := &config.Config{}
	cfg.AI.APIKey = aiKey
	cfg.Tiers = config.TierConfig{
		FastHTMLTimeout: 2 * time.Second,
		AITimeout:       2 * time.Second,
		ExternalTimeout: 2 * time.Second,
		CriterionFloor:  100 * time.Millisecond,
	}
	cfg.Breaker = config.BreakerConfig{
		FailureThreshold:  3,
		FailureWindow:     time.Minute,
		Cooldown:          time.Minute,
		HalfOpenSuccesses: 2,
		RetryBackoff:      time.Millisecond,
		RetryBackoffCap:   5 * time.Millisecond,
	}
	cfg.Scoring = config.ScoringConfig{
		Weights: map[string]float64{
			models.CriterionSEO:           0.15,
			models.CriterionAccessibility: 0.10,
			models.CriterionTrust:         0.10,
			models.CriterionCTA:           0.15,
			models.CriterionMessaging:     0.15,
			models.CriterionContent:       0.10,
			models.CriterionVisual:        0.10,
			models.CriterionPageSpeed:     0.15,
		},
		Fallbacks: map[string]float64{
			models.CriterionSEO:       4.0,
			models.CriterionMessaging: 3.5,
			models.CriterionPageSpeed: 3.0,
		},
		MissingPenalty: 0.05,
	}
	return cfg
}

func testScheduler(cfg *config.Config) *Scheduler {
	return New(
		breaker.NewRegistry(breaker.Settings{
			FailureThreshold:  cfg.Breaker.FailureThreshold,
			FailureWindow:     cfg.Breaker.FailureWindow,
			Cooldown:          cfg.Breaker.Cooldown,
			HalfOpenSuccesses: cfg.Breaker.HalfOpenSuccesses,
		}),
		score.NewAggregator(cfg.Scoring),
		cfg,
	)
}

func okEvaluator(name string, s float64) criteria.EvaluateFunc {
	return func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
		return models.CriterionResult{Criterion: name, Score: s, Status: models.StatusOK}, nil
	}
}

func testSite() *models.ScoringContext {
	return &models.ScoringContext{
		WebsiteURL: "https://example.com",
		HTML:       "<html><body>hello</body></html>",
	}
}

// Three-tier set covering all 8 criteria with instant evaluators.
func testTiers(cfg *config.Config) []criteria.TierDefinition {
	return []criteria.TierDefinition{
		{
			Tier: 1, Name: criteria.TierFastHTML, Timeout: cfg.Tiers.FastHTMLTimeout,
			Criteria: []criteria.Descriptor{
				{Name: models.CriterionSEO, RequiresHTML: true, MaxAttempts: 3, Fallback: 4.0, Evaluate: okEvaluator(models.CriterionSEO, 8)},
				{Name: models.CriterionAccessibility, RequiresHTML: true, MaxAttempts: 3, Fallback: 4.0, Evaluate: okEvaluator(models.CriterionAccessibility, 7)},
				{Name: models.CriterionTrust, RequiresHTML: true, MaxAttempts: 3, Fallback: 4.0, Evaluate: okEvaluator(models.CriterionTrust, 9)},
				{Name: models.CriterionCTA, RequiresHTML: true, MaxAttempts: 3, Fallback: 4.0, Evaluate: okEvaluator(models.CriterionCTA, 6)},
			},
		},
		{
			Tier: 2, Name: criteria.TierAI, Timeout: cfg.Tiers.AITimeout,
			Criteria: []criteria.Descriptor{
				{Name: models.CriterionMessaging, RequiresAI: true, RequiresHTML: true, MaxAttempts: 2, Fallback: 3.5, Evaluate: okEvaluator(models.CriterionMessaging, 8)},
				{Name: models.CriterionContent, RequiresAI: true, RequiresHTML: true, MaxAttempts: 2, Fallback: 3.5, Evaluate: okEvaluator(models.CriterionContent, 5)},
				{Name: models.CriterionVisual, RequiresAI: true, RequiresHTML: true, MaxAttempts: 2, Fallback: 3.5, Evaluate: okEvaluator(models.CriterionVisual, 7)},
			},
		},
		{
			Tier: 3, Name: criteria.TierExternal, Timeout: cfg.Tiers.ExternalTimeout,
			Criteria: []criteria.Descriptor{
				{Name: models.CriterionPageSpeed, MaxAttempts: 1, Fallback: 3.0, Evaluate: okEvaluator(models.CriterionPageSpeed, 9)},
			},
		},
	}
}

func TestRun_AllTiersProduceAllResults(t *testing.T) {
	cfg := testConfig("test-key")
	s := testScheduler(cfg)

	progress := s.Run(context.Background(), testSite(), testTiers(cfg), nil)

	if len(progress.Tiers) != 3 {
		t.Fatalf("got %d tiers, want 3", len(progress.Tiers))
	}
	all := progress.AllResults()
	if len(all) != 8 {
		t.Fatalf("got %d results, want 8", len(all))
	}
	seen := map[string]bool{}
	for _, r := range all {
		seen[r.Criterion] = true
		if r.Status != models.StatusOK {
			t.Errorf("%s: status %q, want ok", r.Criterion, r.Status)
		}
	}
	for _, name := range models.CriterionNames {
		if !seen[name] {
			t.Errorf("missing result for %s", name)
		}
	}
	if !progress.IsComplete {
		t.Error("IsComplete = false after the last tier")
	}
	if progress.CompletedCriteria != 8 {
		t.Errorf("CompletedCriteria = %d, want 8", progress.CompletedCriteria)
	}
	if progress.OverallScore <= 0 || progress.OverallScore > 10 {
		t.Errorf("OverallScore out of range: %v", progress.OverallScore)
	}
}

func TestRun_TierOrderIsStrict(t *testing.T) {
	cfg := testConfig("test-key")
	s := testScheduler(cfg)

	var tierSeq []int
	s.Run(context.Background(), testSite(), testTiers(cfg), func(tr models.TierResult, snap models.ProgressiveResults) {
		tierSeq = append(tierSeq, tr.Tier)
	})

	if len(tierSeq) != 3 || tierSeq[0] != 1 || tierSeq[1] != 2 || tierSeq[2] != 3 {
		t.Errorf("tier callback order = %v, want [1 2 3]", tierSeq)
	}
}

func TestRun_AICriteriaSkippedWithoutCredentials(t *testing.T) {
	cfg := testConfig("") // no AI key
	s := testScheduler(cfg)

	progress := s.Run(context.Background(), testSite(), testTiers(cfg), nil)

	all := progress.AllResults()
	if len(all) != 8 {
		t.Fatalf("got %d results, want 8 (skips still produce results)", len(all))
	}

	skipped := 0
	for _, r := range all {
		if r.Status == models.StatusSkipped {
			skipped++
			switch r.Criterion {
			case models.CriterionMessaging, models.CriterionContent, models.CriterionVisual:
			default:
				t.Errorf("unexpected skip: %s", r.Criterion)
			}
		}
	}
	if skipped != 3 {
		t.Errorf("skipped = %d, want 3", skipped)
	}

	// Tier 2 ran with zero viable criteria and must say so.
	found := false
	for _, e := range progress.Tiers[1].Errors {
		if e != "" {
			found = true
		}
	}
	if !found {
		t.Error("tier 2 recorded no errors despite every criterion being skipped")
	}
}

func TestRun_TransientFailureSubstitutesFallback(t *testing.T) {
	cfg := testConfig("test-key")
	s := testScheduler(cfg)

	tiers := testTiers(cfg)
	// page_speed always fails transiently.
	tiers[2].Criteria[0].Evaluate = func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
		return models.CriterionResult{}, models.NewScoreError(models.ErrCodePageSpeedFailure, "upstream 500", nil)
	}

	progress := s.Run(context.Background(), testSite(), tiers, nil)

	var speed *models.CriterionResult
	for _, r := range progress.AllResults() {
		if r.Criterion == models.CriterionPageSpeed {
			speed = &r
			break
		}
	}
	if speed == nil {
		t.Fatal("no page_speed result")
	}
	if speed.Status != models.StatusFallback {
		t.Fatalf("page_speed status = %q, want fallback", speed.Status)
	}
	if speed.Score != 3.0 {
		t.Errorf("page_speed fallback score = %v, want 3.0", speed.Score)
	}
	if speed.Evidence.Details["fallback"] != "true" {
		t.Error("fallback result not tagged in evidence details")
	}
	if len(progress.Errors) == 0 {
		t.Error("run recorded no errors despite a substituted criterion")
	}
}

func TestRun_PermanentFailureScoresZero(t *testing.T) {
	cfg := testConfig("test-key")
	s := testScheduler(cfg)

	attempts := atomic.Int64{}
	tiers := testTiers(cfg)
	tiers[0].Criteria[0].Evaluate = func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
		attempts.Add(1)
		return models.CriterionResult{}, models.NewScoreError(models.ErrCodeInvalidURL, "unresolvable host", nil)
	}

	progress := s.Run(context.Background(), testSite(), tiers, nil)

	for _, r := range progress.AllResults() {
		if r.Criterion != models.CriterionSEO {
			continue
		}
		if r.Status != models.StatusFailed {
			t.Errorf("status = %q, want failed", r.Status)
		}
		if r.Score != 0 {
			t.Errorf("score = %v, want 0", r.Score)
		}
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("permanent error retried: %d attempts, want 1", got)
	}
}

func TestRun_TransientFailureIsRetried(t *testing.T) {
	cfg := testConfig("test-key")
	s := testScheduler(cfg)

	attempts := atomic.Int64{}
	tiers := testTiers(cfg)
	tiers[0].Criteria[0].Evaluate = func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
		if attempts.Add(1) < 3 {
			return models.CriterionResult{}, errors.New("flaky parse")
		}
		return models.CriterionResult{Criterion: models.CriterionSEO, Score: 8, Status: models.StatusOK}, nil
	}

	progress := s.Run(context.Background(), testSite(), tiers, nil)

	if got := attempts.Load(); got != 3 {
		t.Errorf("attempts = %d, want 3", got)
	}
	for _, r := range progress.AllResults() {
		if r.Criterion == models.CriterionSEO && r.Status != models.StatusOK {
			t.Errorf("status after retries = %q, want ok", r.Status)
		}
	}
}

func TestRun_SlowCriterionHitsDeadlineAndFallsBack(t *testing.T) {
	cfg := testConfig("test-key")
	cfg.Tiers.ExternalTimeout = 50 * time.Millisecond
	cfg.Tiers.CriterionFloor = 50 * time.Millisecond
	s := testScheduler(cfg)

	tiers := testTiers(cfg)
	tiers[2].Timeout = cfg.Tiers.ExternalTimeout
	tiers[2].Criteria[0].Evaluate = func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
		select {
		case <-time.After(5 * time.Second):
			return models.CriterionResult{Criterion: models.CriterionPageSpeed, Score: 9, Status: models.StatusOK}, nil
		case <-ctx.Done():
			return models.CriterionResult{}, ctx.Err()
		}
	}

	start := time.Now()
	progress := s.Run(context.Background(), testSite(), tiers, nil)
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("run took %v, deadline not enforced", elapsed)
	}

	for _, r := range progress.AllResults() {
		if r.Criterion == models.CriterionPageSpeed && r.Status != models.StatusFallback {
			t.Errorf("timed-out criterion status = %q, want fallback", r.Status)
		}
	}
}

func TestRun_ProgressSnapshotsAreMonotonic(t *testing.T) {
	cfg := testConfig("test-key")
	s := testScheduler(cfg)

	var completed []int
	var complete []bool
	s.Run(context.Background(), testSite(), testTiers(cfg), func(tr models.TierResult, snap models.ProgressiveResults) {
		completed = append(completed, snap.CompletedCriteria)
		complete = append(complete, snap.IsComplete)
		if snap.TotalCriteria != 8 {
			t.Errorf("TotalCriteria = %d, want 8", snap.TotalCriteria)
		}
	})

	want := []int{4, 7, 8}
	for i, c := range completed {
		if c != want[i] {
			t.Errorf("snapshot %d: CompletedCriteria = %d, want %d", i, c, want[i])
		}
	}
	if complete[0] || complete[1] || !complete[2] {
		t.Errorf("IsComplete sequence = %v, want [false false true]", complete)
	}
}

func TestRun_RepeatedFailuresOpenCircuit(t *testing.T) {
	cfg := testConfig("test-key")
	cfg.Breaker.FailureThreshold = 1
	reg := breaker.NewRegistry(breaker.Settings{
		FailureThreshold:  1,
		FailureWindow:     time.Minute,
		Cooldown:          time.Minute,
		HalfOpenSuccesses: 2,
	})
	s := New(reg, score.NewAggregator(cfg.Scoring), cfg)

	calls := atomic.Int64{}
	tiers := testTiers(cfg)
	tiers[2].Criteria[0].Evaluate = func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
		calls.Add(1)
		return models.CriterionResult{}, errors.New("quota exhausted")
	}

	// First run trips the breaker; the second must not invoke the evaluator.
	s.Run(context.Background(), testSite(), tiers, nil)
	after := calls.Load()
	s.Run(context.Background(), testSite(), tiers, nil)

	if calls.Load() != after {
		t.Errorf("evaluator invoked with circuit open: %d -> %d calls", after, calls.Load())
	}
	if got := reg.State(models.CriterionPageSpeed); got != breaker.StateOpen {
		t.Errorf("circuit state = %q, want open", got)
	}
}

func TestRun_NoHTMLSkipsHTMLCriteria(t *testing.T) {
	cfg := testConfig("test-key")
	s := testScheduler(cfg)

	site := &models.ScoringContext{WebsiteURL: "https://example.com"} // no HTML
	progress := s.Run(context.Background(), site, testTiers(cfg), nil)

	all := progress.AllResults()
	if len(all) != 8 {
		t.Fatalf("got %d results, want 8", len(all))
	}
	for _, r := range all {
		switch r.Criterion {
		case models.CriterionPageSpeed:
			if r.Status != models.StatusOK {
				t.Errorf("page_speed status = %q, want ok (needs no HTML)", r.Status)
			}
		default:
			if r.Status != models.StatusSkipped {
				t.Errorf("%s status = %q, want skipped without HTML", r.Criterion, r.Status)
			}
		}
	}
}
