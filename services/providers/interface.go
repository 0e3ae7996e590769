package providers

import (
	"context"
	"time"

	"github.com/upb/ai-integration-platform/models"
)

// Vendor names understood by the registry builder
const (
	VendorOpenAI    = "openai"
	VendorAnthropic = "anthropic"
	VendorGoogle    = "google"
	VendorStability = "stability"
)

// Adapter wraps one vendor API behind a uniform request/response contract.
// Implementations must map vendor failures to *ProviderError so the router
// can tell transient errors from caller-attributable ones, and must honour
// ctx cancellation on the network call.
type Adapter interface {
	// Vendor returns the vendor name (e.g., "openai", "anthropic")
	Vendor() string

	// Invoke performs a single request against the vendor
	Invoke(ctx context.Context, req *Request) (*Response, error)
}

// Request is the vendor-neutral request handed to an adapter
type Request struct {
	// Capability requested by the caller
	Capability Capability `json:"capability"`

	// Prompt is the primary text input
	Prompt string `json:"prompt"`

	// Payload carries capability-specific extras (image size, voice, ...)
	Payload map[string]any `json:"payload,omitempty"`

	// Model overrides the provider's configured model
	Model string `json:"model,omitempty"`

	// MaxTokens limits the response length for token-priced providers
	MaxTokens int `json:"max_tokens,omitempty"`

	// UserID is forwarded to vendors that accept an end-user identifier
	UserID string `json:"user_id,omitempty"`
}

// Response is the vendor-neutral result of a successful invocation
type Response struct {
	// Output is the generated content (text, or base64 for binary media)
	Output string `json:"output"`

	// Model that actually served the request
	Model string `json:"model"`

	// Usage statistics reported by the vendor
	Usage Usage `json:"usage"`

	// FinishReason as reported by the vendor, if any
	FinishReason string `json:"finish_reason,omitempty"`

	// Latency of the vendor call
	Latency time.Duration `json:"latency"`
}

// Usage represents metered work reported by a vendor
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
	Units            int `json:"units,omitempty"` // images, seconds of audio, ...
}

// Pricing is a provider's cost function
type Pricing struct {
	// PerRequest is charged once per successful request
	PerRequest models.Money `json:"per_request"`

	// PerThousandTokens is charged per 1000 total tokens
	PerThousandTokens models.Money `json:"per_thousand_tokens"`

	// PerUnit is charged per reported unit (images, audio seconds)
	PerUnit models.Money `json:"per_unit"`
}

// Estimate returns the expected charge for a request before dispatch
func (p Pricing) Estimate(req *Request) models.Money {
	cost := p.PerRequest
	if req != nil && req.MaxTokens > 0 {
		cost += models.Money(int64(p.PerThousandTokens) * int64(req.MaxTokens) / 1000)
	}
	return cost
}

// Charge returns the actual cost for the usage a vendor reported
func (p Pricing) Charge(u Usage) models.Money {
	total := u.TotalTokens
	if total == 0 {
		total = u.PromptTokens + u.CompletionTokens
	}
	cost := p.PerRequest
	cost += models.Money(int64(p.PerThousandTokens) * int64(total) / 1000)
	cost += models.Money(int64(p.PerUnit) * int64(u.Units))
	return cost
}

// ProviderConfig holds vendor credentials and transport settings
type ProviderConfig struct {
	// APIKey for authentication
	APIKey string

	// BaseURL for the API (optional override)
	BaseURL string

	// Timeout applied by the vendor client itself
	Timeout time.Duration

	// Additional headers
	Headers map[string]string
}

// DefaultProviderConfig returns a sensible default configuration
func DefaultProviderConfig() ProviderConfig {
	return ProviderConfig{
		Timeout: 60 * time.Second,
		Headers: make(map[string]string),
	}
}

// Configured reports whether credentials are present
func (c ProviderConfig) Configured() bool {
	return c.APIKey != ""
}

// PayloadString returns a string payload field, or "" when absent
func (r *Request) PayloadString(key string) string {
	if r.Payload == nil {
		return ""
	}
	if v, ok := r.Payload[key].(string); ok {
		return v
	}
	return ""
}

// TextPrompt renders the prompt sent to text models for the request's capability
func (r *Request) TextPrompt() string {
	switch r.Capability {
	case CapabilityTranslation:
		lang := r.PayloadString("target_language")
		if lang == "" {
			lang = "English"
		}
		return "Translate the following text into " + lang + ". Reply with the translation only.\n\n" + r.Prompt
	case CapabilityCodeGeneration:
		if lang := r.PayloadString("language"); lang != "" {
			return "Write " + lang + " code for the following task. Reply with code only.\n\n" + r.Prompt
		}
		return "Write code for the following task. Reply with code only.\n\n" + r.Prompt
	default:
		return r.Prompt
	}
}
