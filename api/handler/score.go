package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitegauge/sitegauge/cache"
	"github.com/sitegauge/sitegauge/engine"
	"github.com/sitegauge/sitegauge/models"
	"github.com/sitegauge/sitegauge/scheduler"
	"github.com/sitegauge/sitegauge/webhook"
)

// Score returns a handler for POST /api/v1/score.
//
// Orchestration flow:
//  1. Parse & validate request.
//  2. Cache lookup (only when max_age > 0).
//  3. Orchestrator.ScoreWebsite → full result + phase timing.
//  4. Webhook events: score.tier per finished tier, then a terminal
//     score.completed or score.failed.
//  5. Fill Timing, cache store, return 200.
//
// The HTTP response is held until the run completes; callers wanting
// progressive results supply webhook_url and receive score.tier events as
// tiers finish.
func Score(o *engine.Orchestrator, cc *cache.Cache, webhookSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		totalStart := time.Now()

		// ── 1. Parse request ────────────────────────────────────────
		var req models.ScoreRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, models.ScoreResponse{
				Success: false,
				Error: &models.ErrorDetail{
					Code:    models.ErrCodeInvalidURL,
					Message: err.Error(),
				},
			})
			return
		}

		// ── 2. Cache lookup ─────────────────────────────────────────
		cacheKey := cache.Key(req.URL)
		if cc != nil && req.MaxAge > 0 {
			if cached, hit := cc.Get(cacheKey, req.MaxAge); hit {
				c.JSON(http.StatusOK, models.ScoreResponse{
					Success:     true,
					Result:      cached,
					CacheStatus: "hit",
					Timing: models.TimingInfo{
						TotalMs: time.Since(totalStart).Milliseconds(),
					},
				})
				return
			}
		}

		// ── 3. Per-tier progress webhooks ───────────────────────────
		// Delivered synchronously with a single attempt: tier events are
		// advisory and must never arrive after the terminal event.
		var onTier scheduler.ProgressFunc
		if req.WebhookURL != "" {
			onTier = func(tr models.TierResult, snapshot models.ProgressiveResults) {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				_ = webhook.Deliver(ctx, req.WebhookURL, webhookSecret, &webhook.Event{
					Type:      webhook.EventTier,
					URL:       req.URL,
					Timestamp: time.Now().Unix(),
					Data:      snapshot,
				})
			}
		}

		// ── 4. Score ────────────────────────────────────────────────
		result, timing, err := o.ScoreWebsite(c.Request.Context(), req.URL, req.Development, onTier)
		timing.TotalMs = time.Since(totalStart).Milliseconds()

		if err != nil {
			if req.WebhookURL != "" {
				scoreErr, ok := err.(*models.ScoreError)
				if !ok {
					scoreErr = models.NewScoreError(models.ErrCodeInternal, err.Error(), err)
				}
				webhook.DeliverAsync(req.WebhookURL, webhookSecret, &webhook.Event{
					Type:      webhook.EventFailed,
					URL:       req.URL,
					Timestamp: time.Now().Unix(),
					Data:      scoreErr.ToDetail(),
				})
			}
			respondError(c, err, timing)
			return
		}

		// ── 5. Terminal webhook + cache store + respond ─────────────
		if req.WebhookURL != "" {
			webhook.DeliverAsync(req.WebhookURL, webhookSecret, &webhook.Event{
				Type:      webhook.EventCompleted,
				URL:       req.URL,
				Timestamp: time.Now().Unix(),
				Data:      result,
			})
		}

		resp := models.ScoreResponse{
			Success: true,
			Result:  result,
			Timing:  timing,
		}
		if cc != nil && req.MaxAge > 0 {
			cc.Set(cacheKey, result)
			resp.CacheStatus = "miss"
		}

		c.JSON(http.StatusOK, resp)
	}
}

// respondError maps a ScoreError to the correct HTTP status code and writes
// a structured JSON error response.
func respondError(c *gin.Context, err error, timing models.TimingInfo) {
	scoreErr, ok := err.(*models.ScoreError)
	if !ok {
		scoreErr = models.NewScoreError(models.ErrCodeInternal, err.Error(), err)
	}

	c.JSON(mapErrorToStatus(scoreErr), models.ScoreResponse{
		Success: false,
		Error:   scoreErr.ToDetail(),
		Timing:  timing,
	})
}

// mapErrorToStatus translates error codes to HTTP status codes.
func mapErrorToStatus(e *models.ScoreError) int {
	switch e.Code {
	case models.ErrCodeTimeout:
		return http.StatusGatewayTimeout // 504
	case models.ErrCodeAcquisition:
		return http.StatusBadGateway // 502
	case models.ErrCodeInvalidURL:
		return http.StatusBadRequest // 400
	case models.ErrCodeRateLimited:
		return http.StatusTooManyRequests // 429
	case models.ErrCodeUnauthorized:
		return http.StatusUnauthorized // 401
	default:
		return http.StatusInternalServerError // 500
	}
}
