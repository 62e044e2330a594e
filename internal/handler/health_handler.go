package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// HealthChecker is a dependency that can report its health
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// HealthHandler serves liveness and readiness probes
type HealthHandler struct {
	service  string
	checkers map[string]HealthChecker
}

// NewHealthHandler creates a health handler. Nil checkers are skipped.
func NewHealthHandler(service string, checkers map[string]HealthChecker) *HealthHandler {
	active := make(map[string]HealthChecker, len(checkers))
	for name, checker := range checkers {
		if checker != nil {
			active[name] = checker
		}
	}
	return &HealthHandler{service: service, checkers: active}
}

// Health handles GET /health
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": h.service,
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checkers))
	status := http.StatusOK
	for name, checker := range h.checkers {
		if err := checker.HealthCheck(ctx); err != nil {
			checks[name] = "unhealthy"
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	c.JSON(status, gin.H{
		"status":  state,
		"service": h.service,
		"checks":  checks,
	})
}
