package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/viewtube/backend/internal/constants"
	"github.com/viewtube/backend/pkg/health"
)

type HealthHandler struct {
	monitor *health.Monitor
}

type HealthCheckResponse struct {
	Status    string                 `json:"status"`
	Version   string                 `json:"version"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]HealthCheck `json:"checks"`
}

type HealthCheck struct {
	Status    string `json:"status"`
	LatencyMs int64  `json:"latency_ms"`
	Message   string `json:"message,omitempty"`
}

func NewHealthHandler(monitor *health.Monitor) *HealthHandler {
	return &HealthHandler{monitor: monitor}
}

// HealthCheck reports the latest probe round from the dependency
// monitor. A failing critical dependency degrades the whole endpoint.
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	checks := make(map[string]HealthCheck)
	for _, result := range h.monitor.Snapshot() {
		entry := HealthCheck{
			Status:    "healthy",
			LatencyMs: result.Latency.Milliseconds(),
		}
		if !result.Healthy {
			entry.Status = "unhealthy"
			if result.LastError != nil {
				entry.Message = result.LastError.Error()
			}
		}
		checks[result.Name] = entry
	}

	status := "healthy"
	code := http.StatusOK
	if !h.monitor.Healthy() {
		status = "degraded"
		code = http.StatusServiceUnavailable
	}

	c.JSON(code, HealthCheckResponse{
		Status:    status,
		Version:   constants.AppVersion,
		Timestamp: time.Now(),
		Checks:    checks,
	})
}
