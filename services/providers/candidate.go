package providers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/upb/ai-integration-platform/models"
)

// LocalFallbackID identifies the local fallback provider in results and audits
const LocalFallbackID = "local_fallback"

// Candidate is one entry of a fallback chain. The set of implementations is
// closed: a candidate is either a *Remote vendor provider or the LocalFallback.
type Candidate interface {
	CandidateID() string
	candidate()
}

// Descriptor is the static configuration of a remote provider
type Descriptor struct {
	ID           string        `json:"id"`
	DisplayName  string        `json:"display_name"`
	Vendor       string        `json:"vendor"`
	Model        string        `json:"model"`
	Models       []string      `json:"models,omitempty"`
	Capabilities CapabilitySet `json:"-"`
	Pricing      Pricing       `json:"pricing"`
	Enabled      bool          `json:"enabled"`
}

// Supports reports whether the provider is enabled and offers capability c
func (d Descriptor) Supports(c Capability) bool {
	return d.Enabled && d.Capabilities.Has(c)
}

// AcceptsModel reports whether a caller's model hint may be sent to this
// provider: the configured model or one of the catalog's alternatives
func (d Descriptor) AcceptsModel(model string) bool {
	if model == d.Model {
		return true
	}
	for _, m := range d.Models {
		if m == model {
			return true
		}
	}
	return false
}

// Remote is a vendor-backed provider: its descriptor plus the adapter that reaches it
type Remote struct {
	Descriptor
	adapter Adapter
}

// NewRemote binds a descriptor to its adapter
func NewRemote(d Descriptor, adapter Adapter) *Remote {
	return &Remote{Descriptor: d, adapter: adapter}
}

func (r *Remote) candidate() {}

// CandidateID returns the provider id
func (r *Remote) CandidateID() string {
	return r.ID
}

// EstimateCost returns the expected charge for req on this provider
func (r *Remote) EstimateCost(req *Request) models.Money {
	return r.Pricing.Estimate(req)
}

// Invoke dispatches req through the adapter and tags any error with the
// provider id. A model hint the provider does not accept is replaced by the
// configured model.
func (r *Remote) Invoke(ctx context.Context, req *Request) (*Response, error) {
	if r.adapter == nil {
		return nil, NewProviderError(r.ID, models.OutcomeServerError, "provider has no adapter", 0, nil)
	}

	call := *req
	if call.Model == "" || !r.AcceptsModel(call.Model) {
		call.Model = r.Model
	}

	start := time.Now()
	resp, err := r.adapter.Invoke(ctx, &call)
	if err != nil {
		var provErr *ProviderError
		if errors.As(err, &provErr) {
			provErr.Provider = r.ID
			return nil, provErr
		}
		return nil, WrapTransport(r.ID, err)
	}
	if resp.Latency == 0 {
		resp.Latency = time.Since(start)
	}
	return resp, nil
}

// LocalFallback is the dependency-free last resort of every chain.
// Serve has no error result: it cannot fail.
type LocalFallback struct{}

func (LocalFallback) candidate() {}

// CandidateID returns LocalFallbackID
func (LocalFallback) CandidateID() string {
	return LocalFallbackID
}

// Serve produces a deterministic degraded-mode response for the capability
func (LocalFallback) Serve(req *Request) *Response {
	var output string
	switch req.Capability {
	case CapabilityTextGeneration, CapabilityCodeGeneration, CapabilityTranslation:
		output = "All AI services are temporarily unavailable. Your request was received and can be retried shortly."
	case CapabilityImageGeneration, CapabilityVideoGeneration, CapabilityVision:
		output = fmt.Sprintf("%s is temporarily unavailable. No media was generated.", req.Capability)
	case CapabilityAudioGeneration, CapabilityTextToSpeech, CapabilitySpeechToText:
		output = fmt.Sprintf("%s is temporarily unavailable. No audio was processed.", req.Capability)
	case CapabilityEmbeddings:
		output = "[]"
	default:
		output = "Service temporarily unavailable."
	}

	return &Response{
		Output:       output,
		Model:        LocalFallbackID,
		FinishReason: "fallback",
	}
}
