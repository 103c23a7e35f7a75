// Package engine ties acquisition and scoring together into one run.
package engine

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/criteria"
	"github.com/sitegauge/sitegauge/models"
	"github.com/sitegauge/sitegauge/scheduler"
)

// ContentAcquirer fetches and renders a website into scoring input.
// *acquire.Acquirer satisfies it; tests substitute a stub.
type ContentAcquirer interface {
	Acquire(ctx context.Context, targetURL string) (*models.ScoringContext, error)
}

// Orchestrator validates the request, acquires content, drives the tier
// scheduler and assembles the terminal result. One instance serves all
// requests; per-run state lives on the stack of ScoreWebsite.
type Orchestrator struct {
	acquirer    ContentAcquirer
	sched       *scheduler.Scheduler
	tiers       []criteria.TierDefinition
	development bool
}

// New creates an Orchestrator.
func New(acquirer ContentAcquirer, sched *scheduler.Scheduler, tiers []criteria.TierDefinition, cfg *config.Config) *Orchestrator {
	return &Orchestrator{
		acquirer:    acquirer,
		sched:       sched,
		tiers:       tiers,
		development: cfg.Server.Development,
	}
}

// ScoreWebsite runs the full pipeline for one URL. onTier, if non-nil, is
// invoked after each tier with the progress so far. allowPrivate lets a
// request opt into loopback/private targets, honored only when the server
// itself runs in development mode.
//
// Acquisition failure is terminal: with no content there is nothing any
// criterion could evaluate, so the run aborts with zero results rather than
// fabricating eight fallback scores for a page nobody saw.
func (o *Orchestrator) ScoreWebsite(ctx context.Context, targetURL string, allowPrivate bool, onTier scheduler.ProgressFunc) (*models.EffectivenessResult, models.TimingInfo, error) {
	var timing models.TimingInfo

	if err := o.validateURL(targetURL, allowPrivate); err != nil {
		return nil, timing, err
	}

	acqStart := time.Now()
	site, err := o.acquirer.Acquire(ctx, targetURL)
	timing.AcquisitionMs = time.Since(acqStart).Milliseconds()
	if err != nil {
		return nil, timing, err
	}

	scoreStart := time.Now()
	progress := o.sched.Run(ctx, site, o.tiers, onTier)
	timing.ScoringMs = time.Since(scoreStart).Milliseconds()

	return &models.EffectivenessResult{
		WebsiteURL:       targetURL,
		OverallScore:     progress.OverallScore,
		CriterionResults: progress.AllResults(),
		Tiers:            progress.Tiers,
		Artifacts: models.Artifacts{
			FinalURL:      site.FinalURL,
			Title:         site.Title,
			ScreenshotRef: site.ScreenshotRef,
			WebVitals:     site.WebVitals,
			FetchMethod:   site.FetchMethod,
		},
		Errors:   append(progress.Errors, site.AcquisitionWarnings...),
		ScoredAt: time.Now().UTC(),
	}, timing, nil
}

// validateURL rejects anything that is not a public http(s) URL. Loopback
// and private-range targets are allowed only when the server runs in
// development mode and the request opts in, keeping the service from being
// used to probe its own network.
func (o *Orchestrator) validateURL(raw string, allowPrivate bool) error {
	u, err := url.Parse(raw)
	if err != nil {
		return models.NewScoreError(models.ErrCodeInvalidURL, "unparseable URL", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return models.NewScoreError(models.ErrCodeInvalidURL,
			fmt.Sprintf("unsupported scheme %q", u.Scheme), nil)
	}
	host := u.Hostname()
	if host == "" {
		return models.NewScoreError(models.ErrCodeInvalidURL, "missing host", nil)
	}

	if o.development && allowPrivate {
		return nil
	}

	if isPrivateHost(host) {
		return models.NewScoreError(models.ErrCodeInvalidURL,
			"loopback and private-range hosts are not scoreable", nil)
	}
	return nil
}

// isPrivateHost reports whether the host names a loopback or private
// address. Hostnames are checked literally, not resolved; DNS rebinding is
// out of scope for this layer.
func isPrivateHost(host string) bool {
	lower := strings.ToLower(host)
	if lower == "localhost" || strings.HasSuffix(lower, ".localhost") || strings.HasSuffix(lower, ".local") {
		return true
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() || ip.IsUnspecified()
	}
	return false
}
