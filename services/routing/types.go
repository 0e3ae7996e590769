package routing

import (
	"time"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/services/providers"
)

// Config holds configuration for the router
type Config struct {
	// AttemptTimeout bounds a single provider call
	AttemptTimeout time.Duration

	// ChainTimeout bounds the whole fallback chain. Once it passes, the
	// remaining remote candidates are skipped and the local fallback serves.
	ChainTimeout time.Duration

	// MaxCandidates caps the remote providers considered per call
	MaxCandidates int

	// DedupWindow is how long a completed idempotent result is replayed
	DedupWindow time.Duration

	// DedupCapacity bounds the number of remembered idempotent results
	DedupCapacity int

	// BillFailedAttempts records vendor-reported cost of failed attempts
	BillFailedAttempts bool
}

// DefaultConfig returns a sensible default configuration
func DefaultConfig() Config {
	return Config{
		AttemptTimeout: 15 * time.Second,
		ChainTimeout:   45 * time.Second,
		MaxCandidates:  4,
		DedupWindow:    10 * time.Minute,
		DedupCapacity:  10000,
	}
}

// Request is an inbound routing request
type Request struct {
	Capability        string         `json:"capability" validate:"required,capability"`
	Prompt            string         `json:"prompt" validate:"required_without=Payload,max=200000"`
	Payload           map[string]any `json:"payload,omitempty"`
	MaxCost           *models.Money  `json:"max_cost,omitempty" validate:"omitempty,gte=0"`
	PreferredProvider string         `json:"preferred_provider,omitempty" validate:"max=100"`
	Model             string         `json:"model,omitempty" validate:"max=100"`
	MaxTokens         int            `json:"max_tokens,omitempty" validate:"gte=0,lte=1000000"`
	UserID            string         `json:"user_id" validate:"required,max=255"`
	IdempotencyKey    string         `json:"idempotency_key,omitempty" validate:"max=255"`
}

func (r *Request) providerRequest(c providers.Capability) *providers.Request {
	return &providers.Request{
		Capability: c,
		Prompt:     r.Prompt,
		Payload:    r.Payload,
		Model:      r.Model,
		MaxTokens:  r.MaxTokens,
		UserID:     r.UserID,
	}
}

// Result is the outcome of a route call. Success is true whenever the chain
// reached a provider that served the request, including the local fallback.
type Result struct {
	Success      bool                   `json:"success"`
	ProviderUsed string                 `json:"provider_used"`
	Output       string                 `json:"output"`
	Model        string                 `json:"model,omitempty"`
	CostIncurred models.Money           `json:"cost_incurred"`
	Attempts     []models.AttemptRecord `json:"attempts,omitempty"`
	RequestID    string                 `json:"request_id"`
	Deduplicated bool                   `json:"deduplicated"`
}

func (r *Result) clone() *Result {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Attempts = append([]models.AttemptRecord(nil), r.Attempts...)
	return &cp
}

// WithoutAttempts returns a copy with the attempt trail withheld
func (r *Result) WithoutAttempts() *Result {
	cp := r.clone()
	cp.Attempts = nil
	return cp
}

// Candidate is one planned entry of a fallback chain
type Candidate struct {
	Provider    providers.Candidate `json:"-"`
	ID          string              `json:"provider_id"`
	Estimate    models.Money        `json:"estimated_cost"`
	SuccessRate float64             `json:"success_rate"`
	Local       bool                `json:"local"`
}
