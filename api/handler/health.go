package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/scrollgrab/models"
)

// Health returns a handler for GET /api/v1/health.
//
// Reports run-slot utilisation and degrades status when > 80% of slots are
// active.
func Health(gate *RunGate, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		stats := gate.Stats()

		status := "healthy"
		if stats.MaxRuns > 0 && stats.ActiveRuns > int(float64(stats.MaxRuns)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:   status,
			Uptime:   time.Since(startTime).Round(time.Second).String(),
			RunStats: stats,
			Version:  "0.1.0",
		})
	}
}
