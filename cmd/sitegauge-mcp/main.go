// Command sitegauge-mcp bridges the scoring API into an MCP stdio server so
// agent tooling can request website scores as a tool call.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// scoreRequest mirrors the Sitegauge API request model.
type scoreRequest struct {
	URL    string `json:"url"`
	MaxAge int    `json:"max_age,omitempty"`
}

// scoreResponse mirrors the Sitegauge API response model, reduced to the
// fields the tool output needs.
type scoreResponse struct {
	Success bool `json:"success"`
	Result  *struct {
		WebsiteURL       string  `json:"website_url"`
		OverallScore     float64 `json:"overall_score"`
		CriterionResults []struct {
			Criterion string  `json:"criterion"`
			Score     float64 `json:"score"`
			Status    string  `json:"status"`
			Evidence  struct {
				Description string `json:"description"`
				Reasoning   string `json:"reasoning"`
			} `json:"evidence"`
			Passes struct {
				Passed []string `json:"passed"`
				Failed []string `json:"failed"`
			} `json:"passes"`
		} `json:"criterion_results"`
		Errors []string `json:"errors"`
	} `json:"result"`
	CacheStatus string `json:"cache_status"`
	Error       *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// healthResponse mirrors the Sitegauge health API response.
type healthResponse struct {
	Status   string            `json:"status"`
	Uptime   string            `json:"uptime"`
	Breakers map[string]string `json:"breakers"`
}

func main() {
	apiURL := os.Getenv("SITEGAUGE_API_URL")
	if apiURL == "" {
		apiURL = "http://127.0.0.1:8080"
	}
	apiKey := os.Getenv("SITEGAUGE_API_KEY")
	if apiKey == "" {
		fmt.Fprintln(os.Stderr, "SITEGAUGE_API_KEY is required")
		os.Exit(1)
	}

	s := server.NewMCPServer(
		"sitegauge",
		"1.0.0",
		server.WithToolCapabilities(false),
	)

	scoreWebsiteTool := mcp.NewTool("score_website",
		mcp.WithDescription("Score a website's effectiveness on a 0-10 scale across 8 criteria (SEO, accessibility, trust, calls to action, messaging, content, visual hierarchy, page speed). A full run can take up to two minutes."),
		mcp.WithString("url",
			mcp.Required(),
			mcp.Description("The URL of the website to score"),
		),
		mcp.WithNumber("max_age",
			mcp.Description("Accept a cached result up to this many milliseconds old (default: 0, always rescore)"),
		),
	)
	s.AddTool(scoreWebsiteTool, handleScoreWebsite(apiURL, apiKey))

	serviceHealthTool := mcp.NewTool("service_health",
		mcp.WithDescription("Report the scoring service's health: pool utilisation and per-criterion circuit breaker states."),
	)
	s.AddTool(serviceHealthTool, handleServiceHealth(apiURL, apiKey))

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func handleScoreWebsite(apiURL, apiKey string) server.ToolHandlerFunc {
	// Scoring holds the response for the whole run; tier budgets add up to
	// just under two minutes plus acquisition.
	client := &http.Client{Timeout: 240 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		url, err := request.RequireString("url")
		if err != nil {
			return mcp.NewToolResultError("url is required"), nil
		}
		maxAge := request.GetInt("max_age", 0)

		body, err := json.Marshal(scoreRequest{URL: url, MaxAge: maxAge})
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to marshal request: %v", err)), nil
		}

		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, apiURL+"/api/v1/score", bytes.NewReader(body))
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-API-Key", apiKey)

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var scoreResp scoreResponse
		if err := json.Unmarshal(respBody, &scoreResp); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		if !scoreResp.Success || scoreResp.Result == nil {
			errMsg := "scoring failed"
			if scoreResp.Error != nil {
				errMsg = fmt.Sprintf("[%s] %s", scoreResp.Error.Code, scoreResp.Error.Message)
			}
			return mcp.NewToolResultError(errMsg), nil
		}

		return mcp.NewToolResultText(formatReport(&scoreResp)), nil
	}
}

// formatReport renders the score result as a readable text report.
func formatReport(resp *scoreResponse) string {
	r := resp.Result
	var b strings.Builder

	fmt.Fprintf(&b, "Website: %s\nOverall score: %.1f / 10", r.WebsiteURL, r.OverallScore)
	if resp.CacheStatus == "hit" {
		b.WriteString(" (cached)")
	}
	b.WriteString("\n\n")

	for _, cr := range r.CriterionResults {
		switch cr.Status {
		case "skipped":
			fmt.Fprintf(&b, "- %s: skipped (%s)\n", cr.Criterion, cr.Evidence.Description)
			continue
		case "failed":
			fmt.Fprintf(&b, "- %s: failed (%s)\n", cr.Criterion, cr.Evidence.Reasoning)
			continue
		case "fallback":
			fmt.Fprintf(&b, "- %s: %.1f (baseline; real evaluation unavailable)\n", cr.Criterion, cr.Score)
			continue
		}
		fmt.Fprintf(&b, "- %s: %.1f", cr.Criterion, cr.Score)
		if len(cr.Passes.Failed) > 0 {
			fmt.Fprintf(&b, " — needs work: %s", strings.Join(cr.Passes.Failed, ", "))
		}
		b.WriteString("\n")
	}

	if len(r.Errors) > 0 {
		b.WriteString("\nWarnings:\n")
		for _, e := range r.Errors {
			fmt.Fprintf(&b, "- %s\n", e)
		}
	}

	return b.String()
}

func handleServiceHealth(apiURL, apiKey string) server.ToolHandlerFunc {
	client := &http.Client{Timeout: 10 * time.Second}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, apiURL+"/api/v1/health", nil)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to create request: %v", err)), nil
		}
		httpReq.Header.Set("X-API-Key", apiKey)

		resp, err := client.Do(httpReq)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("API request failed: %v", err)), nil
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(resp.Body)
		if err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to read response: %v", err)), nil
		}

		var health healthResponse
		if err := json.Unmarshal(respBody, &health); err != nil {
			return mcp.NewToolResultError(fmt.Sprintf("failed to parse response: %v", err)), nil
		}

		var b strings.Builder
		fmt.Fprintf(&b, "Status: %s (up %s)\n", health.Status, health.Uptime)
		if len(health.Breakers) > 0 {
			b.WriteString("Circuits:\n")
			for name, state := range health.Breakers {
				fmt.Fprintf(&b, "- %s: %s\n", name, state)
			}
		}
		return mcp.NewToolResultText(b.String()), nil
	}
}
