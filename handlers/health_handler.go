package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/utils"
)

// ReadinessChecker reports whether the backing store is reachable
type ReadinessChecker interface {
	Ready(ctx context.Context) error
}

// ProviderCounter reports how many providers are registered
type ProviderCounter interface {
	Count() int
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp string            `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health-related HTTP requests
type HealthHandler struct {
	store     ReadinessChecker
	providers ProviderCounter
	logger    *zap.Logger
}

// NewHealthHandler creates a new HealthHandler
func NewHealthHandler(store ReadinessChecker, providers ProviderCounter, logger *zap.Logger) *HealthHandler {
	return &HealthHandler{
		store:     store,
		providers: providers,
		logger:    logger,
	}
}

// HandleHealth handles GET /healthz
// Basic health check - always returns 200 if service is running
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	_ = utils.WriteOK(w, HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// HandleReadiness handles GET /readyz
// Readiness check - pings the store when one is configured
func (h *HealthHandler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string)
	ready := true

	if h.store == nil {
		checks["store"] = "memory"
	} else if err := h.store.Ready(ctx); err != nil {
		h.logger.Warn("store readiness check failed", zap.Error(err))
		checks["store"] = "unhealthy"
		ready = false
	} else {
		checks["store"] = "healthy"
	}

	if h.providers != nil && h.providers.Count() == 0 {
		checks["providers"] = "none_configured"
	} else {
		checks["providers"] = "configured"
	}

	response := HealthResponse{
		Status:    "ready",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Checks:    checks,
	}
	if !ready {
		response.Status = "not_ready"
		_ = utils.WriteJSON(w, http.StatusServiceUnavailable, utils.Envelope{Data: response})
		return
	}
	_ = utils.WriteOK(w, response)
}
