package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/upb/ai-integration-platform/services/breaker"
	"github.com/upb/ai-integration-platform/services/health"
	"github.com/upb/ai-integration-platform/services/providers"
	"github.com/upb/ai-integration-platform/utils"
)

// ProviderLister lists the registered remote providers
type ProviderLister interface {
	List() []*providers.Remote
}

// HealthReader reports a provider's rolling health window
type HealthReader interface {
	Snapshot(providerID string) health.Snapshot
}

// CircuitReader reports a provider's circuit
type CircuitReader interface {
	Snapshot(providerID string) breaker.Snapshot
}

// ProviderInfo is one catalog entry as exposed over HTTP
type ProviderInfo struct {
	ID           string                 `json:"id"`
	DisplayName  string                 `json:"display_name"`
	Vendor       string                 `json:"vendor"`
	Model        string                 `json:"model"`
	Capabilities []providers.Capability `json:"capabilities"`
	Pricing      providers.Pricing      `json:"pricing"`
	Enabled      bool                   `json:"enabled"`
}

// ProviderHealth combines a provider's health window with its circuit
type ProviderHealth struct {
	Status              health.Status `json:"status"`
	SuccessRate         float64       `json:"success_rate"`
	AvgLatencyMs        int64         `json:"avg_latency_ms"`
	Samples             int           `json:"samples"`
	CircuitState        breaker.State `json:"circuit_state"`
	ConsecutiveFailures int           `json:"consecutive_failures"`
}

// ProviderHandler exposes the catalog and live provider health
type ProviderHandler struct {
	registry ProviderLister
	health   HealthReader
	circuits CircuitReader
	logger   *zap.Logger
}

// NewProviderHandler creates a new ProviderHandler
func NewProviderHandler(registry ProviderLister, health HealthReader, circuits CircuitReader, logger *zap.Logger) *ProviderHandler {
	return &ProviderHandler{
		registry: registry,
		health:   health,
		circuits: circuits,
		logger:   logger,
	}
}

// HandleList handles GET /api/v1/providers
func (h *ProviderHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	list := h.registry.List()
	out := make([]ProviderInfo, 0, len(list))
	for _, p := range list {
		out = append(out, ProviderInfo{
			ID:           p.ID,
			DisplayName:  p.DisplayName,
			Vendor:       p.Vendor,
			Model:        p.Model,
			Capabilities: p.Capabilities.List(),
			Pricing:      p.Pricing,
			Enabled:      p.Enabled,
		})
	}
	_ = utils.WriteOK(w, out)
}

// HandleHealth handles GET /api/v1/providers/health
func (h *ProviderHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	list := h.registry.List()
	out := make(map[string]ProviderHealth, len(list))
	for _, p := range list {
		snap := h.health.Snapshot(p.ID)
		circuit := h.circuits.Snapshot(p.ID)
		out[p.ID] = ProviderHealth{
			Status:              snap.Status,
			SuccessRate:         snap.SuccessRate,
			AvgLatencyMs:        snap.AvgLatencyMs,
			Samples:             snap.Samples,
			CircuitState:        circuit.State,
			ConsecutiveFailures: circuit.ConsecutiveFailures,
		}
	}
	_ = utils.WriteOK(w, out)
}
