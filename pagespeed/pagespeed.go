// Package pagespeed wraps the Google PageSpeed Insights v5 API, the external
// dependency behind the page_speed criterion. PSI latency is externally
// imposed and regularly exceeds 30s, which is why this client sits behind
// the widest tier budget and a circuit breaker.
package pagespeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/models"
)

// Client calls the PageSpeed Insights API.
type Client struct {
	httpClient *http.Client
	cfg        config.PageSpeedConfig
}

// NewClient creates a Client with the given http.Client.
// Pass nil to use a default client.
func NewClient(httpClient *http.Client, cfg config.PageSpeedConfig) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Client{httpClient: httpClient, cfg: cfg}
}

// Report is the subset of a Lighthouse run we score on.
type Report struct {
	// PerformanceScore is Lighthouse's category score scaled to [0,100].
	PerformanceScore float64

	// Lab metrics, zero when the audit is missing from the response.
	LCPMs float64 // Largest Contentful Paint
	CLS   float64 // Cumulative Layout Shift
	TBTMs float64 // Total Blocking Time
}

// psiResponse mirrors the fields we need from the PSI v5 response.
type psiResponse struct {
	LighthouseResult struct {
		Categories struct {
			Performance struct {
				Score *float64 `json:"score"` // 0..1, null on audit failure
			} `json:"performance"`
		} `json:"categories"`
		Audits map[string]struct {
			NumericValue float64 `json:"numericValue"`
		} `json:"audits"`
	} `json:"lighthouseResult"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Analyze runs a PSI audit for the target URL and returns the report.
func (c *Client) Analyze(ctx context.Context, targetURL string) (*Report, error) {
	q := url.Values{}
	q.Set("url", targetURL)
	q.Set("category", "PERFORMANCE")
	q.Set("strategy", c.cfg.Strategy)
	if c.cfg.APIKey != "" {
		q.Set("key", c.cfg.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.Endpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("pagespeed: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, models.NewScoreError(models.ErrCodePageSpeedFailure, "PageSpeed request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, models.NewScoreError(models.ErrCodePageSpeedFailure, "failed to read PageSpeed response", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, models.NewScoreError(models.ErrCodePageSpeedQuota, "PageSpeed quota exceeded", nil)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, models.NewScoreError(models.ErrCodePageSpeedFailure,
			fmt.Sprintf("PageSpeed API returned %d", resp.StatusCode), nil)
	}

	var psi psiResponse
	if err := json.Unmarshal(body, &psi); err != nil {
		return nil, models.NewScoreError(models.ErrCodePageSpeedFailure, "failed to parse PageSpeed response", err)
	}
	if psi.Error != nil {
		return nil, models.NewScoreError(models.ErrCodePageSpeedFailure,
			fmt.Sprintf("PageSpeed API error %d: %s", psi.Error.Code, psi.Error.Message), nil)
	}
	if psi.LighthouseResult.Categories.Performance.Score == nil {
		return nil, models.NewScoreError(models.ErrCodePageSpeedFailure, "PageSpeed returned no performance score", nil)
	}

	report := &Report{
		PerformanceScore: *psi.LighthouseResult.Categories.Performance.Score * 100,
	}
	if a, ok := psi.LighthouseResult.Audits["largest-contentful-paint"]; ok {
		report.LCPMs = a.NumericValue
	}
	if a, ok := psi.LighthouseResult.Audits["cumulative-layout-shift"]; ok {
		report.CLS = a.NumericValue
	}
	if a, ok := psi.LighthouseResult.Audits["total-blocking-time"]; ok {
		report.TBTMs = a.NumericValue
	}
	return report, nil
}
