package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sitegauge/sitegauge/config"
	"github.com/sitegauge/sitegauge/models"
)

// Judge is a lightweight OpenAI-compatible client that scores page content
// against a single criterion. It uses net/http directly — no SDK needed.
type Judge struct {
	httpClient *http.Client
	cfg        config.AIConfig
}

// NewJudge creates a Judge with the given http.Client.
// Pass nil to use a default client.
func NewJudge(httpClient *http.Client, cfg config.AIConfig) *Judge {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Judge{httpClient: httpClient, cfg: cfg}
}

// Judgment is the structured verdict for one criterion.
type Judgment struct {
	// Score is the judged score in [0,10].
	Score float64 `json:"score"`

	// Reasoning is a short explanation of the score.
	Reasoning string `json:"reasoning"`

	// Strengths and Weaknesses list concrete observations, phrased as
	// short check names (e.g. "clear headline", "jargon-heavy intro").
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// chatRequest is the OpenAI chat completion request body.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the minimal OpenAI chat completion response we need.
type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// chatErrorResponse captures an API error from the provider.
type chatErrorResponse struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error"`
}

// Score sends the rubric and page content to the model and returns the
// parsed judgment. The rubric describes one criterion's scoring guidance;
// content is the markdown-converted page text.
func (j *Judge) Score(ctx context.Context, rubric, content string) (*Judgment, error) {
	reqBody := chatRequest{
		Model: j.cfg.Model,
		Messages: []chatMessage{
			{Role: "system", Content: buildSystemPrompt(rubric)},
			{Role: "user", Content: content},
		},
		Temperature:    0,
		ResponseFormat: &responseFormat{Type: "json_object"},
	}

	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	endpoint := strings.TrimRight(j.cfg.BaseURL, "/") + "/chat/completions"

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+j.cfg.APIKey)

	resp, err := j.httpClient.Do(req)
	if err != nil {
		return nil, models.NewScoreError(models.ErrCodeAIFailure, "AI request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, models.NewScoreError(models.ErrCodeAIFailure, "failed to read AI response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, classifyAIError(resp.StatusCode, respBody)
	}

	var chatResp chatResponse
	if err := json.Unmarshal(respBody, &chatResp); err != nil {
		return nil, models.NewScoreError(models.ErrCodeAIFailure, "failed to parse AI response", err)
	}

	if len(chatResp.Choices) == 0 {
		return nil, models.NewScoreError(models.ErrCodeAIFailure, "AI returned no choices", nil)
	}

	var verdict Judgment
	raw := chatResp.Choices[0].Message.Content
	if err := json.Unmarshal([]byte(raw), &verdict); err != nil {
		return nil, models.NewScoreError(models.ErrCodeAIFailure, "AI returned invalid verdict JSON", err)
	}

	// Clamp out-of-range scores rather than failing the criterion.
	if verdict.Score < 0 {
		verdict.Score = 0
	}
	if verdict.Score > 10 {
		verdict.Score = 10
	}

	return &verdict, nil
}

// buildSystemPrompt frames the model as a website-effectiveness judge for
// one criterion and pins the output contract.
func buildSystemPrompt(rubric string) string {
	return fmt.Sprintf(`You are a website effectiveness auditor. Judge the provided page content against exactly one criterion and return your verdict as JSON.

Criterion:
%s

Return ONLY a JSON object with these fields:
- "score": number from 0 to 10 (10 = excellent)
- "reasoning": one or two sentences explaining the score
- "strengths": array of short observed strengths
- "weaknesses": array of short observed weaknesses

Rules:
- Judge only the criterion above, nothing else.
- Base every observation on the provided content; never invent details.
- No markdown fences or prose outside the JSON object.`, rubric)
}

// classifyAIError maps HTTP status codes to appropriate error codes.
func classifyAIError(statusCode int, body []byte) *models.ScoreError {
	var errResp chatErrorResponse
	msg := "AI API error"
	if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
		msg = errResp.Error.Message
	}

	switch {
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return models.NewScoreError(models.ErrCodeAIAuthFailure, msg, nil)
	case statusCode == http.StatusTooManyRequests:
		return models.NewScoreError(models.ErrCodeAIRateLimited, msg, nil)
	default:
		return models.NewScoreError(models.ErrCodeAIFailure, fmt.Sprintf("AI API returned %d: %s", statusCode, msg), nil)
	}
}
