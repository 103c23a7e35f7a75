package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sitegauge/sitegauge/breaker"
	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/criteria"
	"github.com/sitegauge/sitegauge/models"
	"github.com/sitegauge/sitegauge/scheduler"
	"github.com/sitegauge/sitegauge/score"
)

type stubAcquirer struct {
	site *models.ScoringContext
	err  error
}

func (s *stubAcquirer) Acquire(ctx context.Context, targetURL string) (*models.ScoringContext, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.site, nil
}

func testOrchestrator(acq ContentAcquirer, development bool) *Orchestrator {
	cfg := &config.Config{}
	cfg.Server.Development = development
	cfg.Tiers = config.TierConfig{
		FastHTMLTimeout: time.Second,
		AITimeout:       time.Second,
		ExternalTimeout: time.Second,
		CriterionFloor:  100 * time.Millisecond,
	}
	cfg.Breaker = config.BreakerConfig{
		FailureThreshold:  3,
		FailureWindow:     time.Minute,
		Cooldown:          time.Minute,
		HalfOpenSuccesses: 2,
		RetryBackoff:      time.Millisecond,
		RetryBackoffCap:   time.Millisecond,
	}
	cfg.Scoring = config.ScoringConfig{
		Weights:        map[string]float64{models.CriterionSEO: 1.0},
		MissingPenalty: 0.05,
	}

	sched := scheduler.New(
		breaker.NewRegistry(breaker.Settings{
			FailureThreshold:  3,
			FailureWindow:     time.Minute,
			Cooldown:          time.Minute,
			HalfOpenSuccesses: 2,
		}),
		score.NewAggregator(cfg.Scoring),
		cfg,
	)

	tiers := []criteria.TierDefinition{
		{
			Tier: 1, Name: criteria.TierFastHTML, Timeout: time.Second,
			Criteria: []criteria.Descriptor{
				{
					Name:         models.CriterionSEO,
					RequiresHTML: true,
					MaxAttempts:  1,
					Fallback:     4.0,
					Evaluate: func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
						return models.CriterionResult{Criterion: models.CriterionSEO, Score: 8, Status: models.StatusOK}, nil
					},
				},
			},
		},
	}

	return New(acq, sched, tiers, cfg)
}

func TestScoreWebsite_HappyPath(t *testing.T) {
	acq := &stubAcquirer{site: &models.ScoringContext{
		WebsiteURL:  "https://example.com",
		FinalURL:    "https://example.com/",
		HTML:        "<html><body>hi</body></html>",
		Title:       "Example",
		FetchMethod: "http",
	}}
	o := testOrchestrator(acq, false)

	result, timing, err := o.ScoreWebsite(context.Background(), "https://example.com", false, nil)
	if err != nil {
		t.Fatalf("ScoreWebsite: %v", err)
	}
	if len(result.CriterionResults) != 1 {
		t.Fatalf("got %d results, want 1", len(result.CriterionResults))
	}
	if result.Artifacts.FinalURL != "https://example.com/" {
		t.Errorf("FinalURL = %q", result.Artifacts.FinalURL)
	}
	if result.Artifacts.FetchMethod != "http" {
		t.Errorf("FetchMethod = %q", result.Artifacts.FetchMethod)
	}
	if result.ScoredAt.IsZero() {
		t.Error("ScoredAt not set")
	}
	if timing.AcquisitionMs < 0 || timing.ScoringMs < 0 {
		t.Errorf("negative phase timing: %+v", timing)
	}
}

func TestScoreWebsite_AcquisitionFailureIsTerminal(t *testing.T) {
	acq := &stubAcquirer{err: models.NewScoreError(models.ErrCodeAcquisition, "navigation failed", errors.New("net::ERR_NAME_NOT_RESOLVED"))}
	o := testOrchestrator(acq, false)

	result, _, err := o.ScoreWebsite(context.Background(), "https://doesnotexist.example", false, nil)
	if err == nil {
		t.Fatal("want error, got nil")
	}
	if result != nil {
		t.Errorf("want nil result on acquisition failure, got %+v", result)
	}
	var se *models.ScoreError
	if !errors.As(err, &se) || se.Code != models.ErrCodeAcquisition {
		t.Errorf("error = %v, want ACQUISITION_FAILED", err)
	}
}

func TestScoreWebsite_URLValidation(t *testing.T) {
	acq := &stubAcquirer{site: &models.ScoringContext{HTML: "<html></html>"}}

	cases := []struct {
		name        string
		url         string
		development bool
		wantErr     bool
	}{
		{"https ok", "https://example.com", false, false},
		{"http ok", "http://example.com", false, false},
		{"ftp rejected", "ftp://example.com", false, true},
		{"file rejected", "file:///etc/passwd", false, true},
		{"no host", "https://", false, true},
		{"localhost rejected", "http://localhost:8080", false, true},
		{"loopback ip rejected", "http://127.0.0.1/admin", false, true},
		{"private ip rejected", "http://10.0.0.5", false, true},
		{"link-local rejected", "http://169.254.169.254/latest/meta-data", false, true},
		{"localhost allowed in development", "http://localhost:3000", true, false},
		{"private ip allowed in development", "http://192.168.1.10", true, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			o := testOrchestrator(acq, tc.development)
			_, _, err := o.ScoreWebsite(context.Background(), tc.url, tc.development, nil)
			if tc.wantErr {
				var se *models.ScoreError
				if err == nil || !errors.As(err, &se) || se.Code != models.ErrCodeInvalidURL {
					t.Errorf("url %q: err = %v, want INVALID_URL", tc.url, err)
				}
			} else if err != nil {
				t.Errorf("url %q: unexpected error %v", tc.url, err)
			}
		})
	}
}

func TestScoreWebsite_AcquisitionWarningsSurfaceInErrors(t *testing.T) {
	acq := &stubAcquirer{site: &models.ScoringContext{
		WebsiteURL:          "https://example.com",
		HTML:                "<html><body>hi</body></html>",
		FetchMethod:         "browser",
		AcquisitionWarnings: []string{"screenshot failed: disk full"},
	}}
	o := testOrchestrator(acq, false)

	result, _, err := o.ScoreWebsite(context.Background(), "https://example.com", false, nil)
	if err != nil {
		t.Fatalf("ScoreWebsite: %v", err)
	}
	found := false
	for _, e := range result.Errors {
		if e == "screenshot failed: disk full" {
			found = true
		}
	}
	if !found {
		t.Errorf("acquisition warning missing from result errors: %v", result.Errors)
	}
}
