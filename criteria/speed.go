package criteria

import (
	"context"
	"fmt"

	"github.com/sitegauge/sitegauge/models"
	"github.com/sitegauge/sitegauge/pagespeed"
)

// Web-vitals thresholds, per the "good" boundaries Lighthouse reports.
const (
	goodLCPMs = 2500
	goodCLS   = 0.1
	goodTBTMs = 200
)

// evaluatePageSpeed scores performance via the PageSpeed Insights API.
// The Lighthouse performance category (0-100) maps directly onto the 0-10
// scale; the individual vitals only feed the pass/fail lists.
func evaluatePageSpeed(psi *pagespeed.Client) EvaluateFunc {
	return func(ctx context.Context, site *models.ScoringContext) (models.CriterionResult, error) {
		target := site.FinalURL
		if target == "" {
			target = site.WebsiteURL
		}

		report, err := psi.Analyze(ctx, target)
		if err != nil {
			return models.CriterionResult{}, err
		}

		p := models.Passes{Passed: []string{}, Failed: []string{}}
		mark := func(name string, ok bool) {
			if ok {
				p.Passed = append(p.Passed, name)
			} else {
				p.Failed = append(p.Failed, name)
			}
		}
		mark("LCP <= 2.5s", report.LCPMs <= goodLCPMs)
		mark("CLS <= 0.1", report.CLS <= goodCLS)
		mark("TBT <= 200ms", report.TBTMs <= goodTBTMs)
		mark("performance score >= 50", report.PerformanceScore >= 50)

		return models.CriterionResult{
			Criterion: models.CriterionPageSpeed,
			Score:     report.PerformanceScore / 10,
			Status:    models.StatusOK,
			Evidence: models.Evidence{
				Description: "Lighthouse performance via PageSpeed Insights",
				Details: map[string]string{
					"performance": fmt.Sprintf("%.0f", report.PerformanceScore),
					"lcp_ms":      fmt.Sprintf("%.0f", report.LCPMs),
					"cls":         fmt.Sprintf("%.3f", report.CLS),
					"tbt_ms":      fmt.Sprintf("%.0f", report.TBTMs),
				},
			},
			Passes: p,
		}, nil
	}
}
