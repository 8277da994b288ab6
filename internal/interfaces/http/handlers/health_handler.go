package handlers

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/authcore/internal/domain/service"
	"github.com/turtacn/authcore/pkg/logger"
)

// HealthCheck checks one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// HealthHandler provides health check endpoints.
type HealthHandler struct {
	checks  map[string]HealthCheck
	clock   service.Clock
	timeout time.Duration
	log     logger.Logger
}

// NewHealthHandler creates a new HealthHandler. checks is keyed by dependency name.
func NewHealthHandler(checks map[string]HealthCheck, clock service.Clock, log logger.Logger) *HealthHandler {
	return &HealthHandler{
		checks:  checks,
		clock:   clock,
		timeout: 2 * time.Second,
		log:     log.WithComponent("health"),
	}
}

// KeyRingCheck reports unhealthy when no signing key is active.
func KeyRingCheck(keys service.KeyRing) HealthCheck {
	return func(context.Context) error {
		_, err := keys.ActiveKey()
		return err
	}
}

// Live reports that the process is serving requests.
func (h *HealthHandler) Live(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "alive"})
}

// Health runs every dependency check.
func (h *HealthHandler) Health(c *gin.Context) {
	status := "healthy"
	httpStatus := http.StatusOK
	checks := h.performChecks(c.Request.Context())
	for _, result := range checks {
		if result != "ok" {
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			break
		}
	}

	c.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": h.clock.Now(),
		"checks":    checks,
	})
}

// Ready is Health under the readiness probe path.
func (h *HealthHandler) Ready(c *gin.Context) {
	h.Health(c)
}

func (h *HealthHandler) performChecks(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results = make(map[string]string, len(h.checks))
	)
	wg.Add(len(h.checks))
	for name, check := range h.checks {
		go func(name string, check HealthCheck) {
			defer wg.Done()
			result := "ok"
			if err := check(ctx); err != nil {
				// Dependency errors can carry addresses; only the log gets the detail.
				h.log.Warn(ctx, "health check failed", logger.String("dependency", name), logger.Err(err))
				result = "unavailable"
			}
			mu.Lock()
			results[name] = result
			mu.Unlock()
		}(name, check)
	}
	wg.Wait()
	return results
}
