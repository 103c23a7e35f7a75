package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/sitegauge/sitegauge/acquire"
	"github.com/sitegauge/sitegauge/breaker"
	"github.com/sitegauge/sitegauge/models"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports pool utilisation and circuit states. Status degrades when > 80%
// of pages are active or any circuit is open.
func Health(a *acquire.Acquirer, breakers *breaker.Registry, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := a.Stats()
		circuits := breakers.Snapshot()

		status := "healthy"
		if stats.MaxPages > 0 && stats.ActivePages > int(float64(stats.MaxPages)*0.8) {
			status = "degraded"
		}
		for _, state := range circuits {
			if state == breaker.StateOpen {
				status = "degraded"
			}
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:    status,
			Uptime:    time.Since(startTime).Round(time.Second).String(),
			PoolStats: stats,
			Breakers:  circuits,
			Version:   "0.1.0",
		})
	}
}
