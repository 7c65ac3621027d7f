package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/metafuse/tenant-gateway/internal/apierror"
)

// Handles system-related endpoints
type SystemHandler struct {
	pool BreakerPool
}

func NewSystemHandler(pool BreakerPool) *SystemHandler {
	return &SystemHandler{pool: pool}
}

// Returns connection and circuit breaker state for every tenant seen so far
func (h *SystemHandler) CircuitBreakerStatus(c *gin.Context) {
	statuses := make(map[string]interface{})

	for _, s := range h.pool.Stats() {
		entry := gin.H{
			"active_connections":   s.Active,
			"max_connections":      s.MaxConnections,
			"breaker_enabled":      s.BreakerEnabled,
			"state":                s.Breaker.State.String(),
			"consecutive_failures": s.Breaker.ConsecutiveFailures,
			"trips":                s.Breaker.Trips,
			"last_state_change":    s.Breaker.LastStateChange,
		}
		if !s.Breaker.LastFailureTime.IsZero() {
			entry["last_failure_time"] = s.Breaker.LastFailureTime
		}
		statuses[s.TenantID] = entry
	}

	c.JSON(http.StatusOK, statuses)
}

// Manually closes a tenant's circuit breaker
func (h *SystemHandler) ResetCircuitBreaker(c *gin.Context) {
	tenantID := c.Param("tenant")

	if !h.pool.ResetBreaker(tenantID) {
		abort(c, apierror.NotFound(fmt.Sprintf("No connection pool for tenant '%s'", tenantID)))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "Circuit breaker reset successfully",
		"tenant":  tenantID,
	})
}
