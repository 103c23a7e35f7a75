package models

import "time"

// The 8 scored criteria. Order matches tier order (tier 1 → tier 3) so
// iterating CriterionNames yields results in the order users see them.
const (
	CriterionSEO           = "seo_foundations"
	CriterionAccessibility = "accessibility"
	CriterionTrust         = "trust_signals"
	CriterionCTA           = "call_to_action"
	CriterionMessaging     = "messaging_clarity"
	CriterionContent       = "content_quality"
	CriterionVisual        = "visual_hierarchy"
	CriterionPageSpeed     = "page_speed"
)

// CriterionNames lists every expected criterion. A completed run produces
// exactly one CriterionResult per name — real, fallback, failed or skipped.
var CriterionNames = []string{
	CriterionSEO,
	CriterionAccessibility,
	CriterionTrust,
	CriterionCTA,
	CriterionMessaging,
	CriterionContent,
	CriterionVisual,
	CriterionPageSpeed,
}

// NumCriteria is the number of criteria a completed run must account for.
var NumCriteria = len(CriterionNames)

// Result statuses for a single criterion.
const (
	// StatusOK means the criterion's real evaluation produced the score.
	StatusOK = "ok"

	// StatusFallback means the real evaluation failed (or the circuit was
	// open) and the score is the criterion's conservative baseline.
	StatusFallback = "fallback"

	// StatusFailed means the criterion failed hard with no usable score.
	// The aggregator counts it as 0 but keeps its weight in the denominator.
	StatusFailed = "failed"

	// StatusSkipped means a prerequisite was missing (no HTML, no AI
	// credentials) and the criterion was never attempted. Skipped criteria
	// are excluded from the weighted mean and trigger the missing penalty.
	StatusSkipped = "skipped"
)

// WebVitals holds lab-measured Core Web Vitals. All fields are best-effort;
// a nil *WebVitals means no measurement was possible.
type WebVitals struct {
	// LCPMs is the Largest Contentful Paint in milliseconds.
	LCPMs float64 `json:"lcp_ms"`

	// CLS is the Cumulative Layout Shift score (unitless).
	CLS float64 `json:"cls"`

	// TBTMs is the Total Blocking Time in milliseconds (FID lab proxy).
	TBTMs float64 `json:"tbt_ms"`
}

// ScoringContext is the immutable per-run input produced by content
// acquisition. Evaluators read it; nothing mutates it after creation.
type ScoringContext struct {
	// WebsiteURL is the requested URL.
	WebsiteURL string `json:"website_url"`

	// FinalURL is the URL after redirects.
	FinalURL string `json:"final_url"`

	// HTML is the rendered DOM. Empty means acquisition could not get
	// content (which aborts the run before scoring).
	HTML string `json:"-"`

	// Title is the document title, best-effort.
	Title string `json:"title,omitempty"`

	// ScreenshotRef points at the captured full-page screenshot.
	// Nil when no screenshot could be taken.
	ScreenshotRef *string `json:"screenshot_ref,omitempty"`

	// WebVitals holds lab vitals from the rendering pass. Nil when the
	// page was served by the plain HTTP fetcher or measurement failed.
	WebVitals *WebVitals `json:"web_vitals,omitempty"`

	// FetchMethod records how the HTML was obtained ("http" or "browser").
	FetchMethod string `json:"fetch_method"`

	// AcquisitionWarnings lists best-effort steps that failed without
	// aborting acquisition (screenshot capture, vitals measurement).
	AcquisitionWarnings []string `json:"acquisition_warnings,omitempty"`
}

// Evidence explains how a criterion arrived at its score.
type Evidence struct {
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
	Reasoning   string            `json:"reasoning,omitempty"`
}

// Passes lists the named checks a criterion passed and failed.
type Passes struct {
	Passed []string `json:"passed"`
	Failed []string `json:"failed"`
}

// CriterionResult is the outcome of one criterion for one run.
// Immutable after creation.
type CriterionResult struct {
	// Criterion is one of the CriterionNames constants.
	Criterion string `json:"criterion"`

	// Score is in [0,10]. Meaningless when Status is "failed" or "skipped".
	Score float64 `json:"score"`

	// Status is one of StatusOK, StatusFallback, StatusFailed, StatusSkipped.
	Status string `json:"status"`

	Evidence Evidence `json:"evidence"`
	Passes   Passes   `json:"passes"`

	// DurationMs is how long the evaluation took, including retries.
	DurationMs int64 `json:"duration_ms"`
}

// TierResult is created once when a tier finishes and never mutated.
type TierResult struct {
	Tier     int               `json:"tier"`
	Name     string            `json:"name"`
	Results  []CriterionResult `json:"results"`
	Duration time.Duration     `json:"-"`

	// DurationMs mirrors Duration for JSON consumers.
	DurationMs int64 `json:"duration_ms"`

	// PartialScore is the unweighted mean of this tier's non-skipped scores.
	PartialScore float64 `json:"partial_score"`

	// Errors records skipped criteria and tier-level failures.
	Errors []string `json:"errors,omitempty"`
}

// ProgressiveResults is the running view of one scoring pass. It is owned
// by the goroutine driving the run, updated after each tier join, and
// becomes immutable once IsComplete is true.
type ProgressiveResults struct {
	Tiers             []TierResult `json:"tiers"`
	OverallScore      float64      `json:"overall_score"`
	CompletedCriteria int          `json:"completed_criteria"`
	TotalCriteria     int          `json:"total_criteria"`
	IsComplete        bool         `json:"is_complete"`
	Errors            []string     `json:"errors,omitempty"`
}

// AllResults flattens the per-tier results into one list, in tier order.
func (p *ProgressiveResults) AllResults() []CriterionResult {
	out := make([]CriterionResult, 0, NumCriteria)
	for _, t := range p.Tiers {
		out = append(out, t.Results...)
	}
	return out
}

// Artifacts are the acquisition byproducts returned alongside the score.
type Artifacts struct {
	FinalURL      string     `json:"final_url"`
	Title         string     `json:"title,omitempty"`
	ScreenshotRef *string    `json:"screenshot_ref,omitempty"`
	WebVitals     *WebVitals `json:"web_vitals,omitempty"`
	FetchMethod   string     `json:"fetch_method"`
}

// EffectivenessResult is the terminal output of one completed run.
type EffectivenessResult struct {
	WebsiteURL       string            `json:"website_url"`
	OverallScore     float64           `json:"overall_score"`
	CriterionResults []CriterionResult `json:"criterion_results"`
	Tiers            []TierResult      `json:"tiers"`
	Artifacts        Artifacts         `json:"artifacts"`
	Errors           []string          `json:"errors,omitempty"`
	ScoredAt         time.Time         `json:"scored_at"`
}
