package stability

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/services/providers"
)

const (
	defaultBaseURL = "https://api.stability.ai"
	defaultEngine  = "stable-diffusion-xl-1024-v1-0"
)

// StabilityAdapter implements providers.Adapter for Stability AI text-to-image
type StabilityAdapter struct {
	config     providers.ProviderConfig
	httpClient *http.Client
}

// NewStabilityAdapter creates a new Stability adapter
func NewStabilityAdapter(config providers.ProviderConfig) *StabilityAdapter {
	if config.BaseURL == "" {
		config.BaseURL = defaultBaseURL
	}

	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	return &StabilityAdapter{
		config: config,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Factory adapts NewStabilityAdapter to providers.AdapterFactory
func Factory(_ providers.Descriptor, cfg providers.ProviderConfig) (providers.Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("stability API key is required")
	}
	return NewStabilityAdapter(cfg), nil
}

// Vendor returns the vendor name
func (a *StabilityAdapter) Vendor() string {
	return providers.VendorStability
}

// Invoke generates one image for the prompt. The output is the base64 artifact.
func (a *StabilityAdapter) Invoke(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	if req.Capability != providers.CapabilityImageGeneration {
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError,
			fmt.Sprintf("capability %s not supported", req.Capability), 0, providers.ErrUnsupportedCapability)
	}

	startTime := time.Now()

	engine := req.Model
	if engine == "" {
		engine = defaultEngine
	}

	reqBody, err := json.Marshal(a.buildGenerationRequest(req))
	if err != nil {
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError, "failed to marshal request", 0, err)
	}

	url := fmt.Sprintf("%s/v1/generation/%s/text-to-image", a.config.BaseURL, engine)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError, "failed to create request", 0, err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+a.config.APIKey)
	for k, v := range a.config.Headers {
		httpReq.Header.Set(k, v)
	}

	// Single attempt: failover to other providers is the router's job
	httpResp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, providers.WrapTransport(a.Vendor(), err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, providers.WrapTransport(a.Vendor(), err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, a.handleErrorResponse(httpResp.StatusCode, respBody)
	}

	var genResp GenerationResponse
	if err := json.Unmarshal(respBody, &genResp); err != nil {
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError, "failed to unmarshal response", httpResp.StatusCode, err)
	}
	if len(genResp.Artifacts) == 0 {
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError, "no artifacts returned", httpResp.StatusCode, nil)
	}

	artifact := genResp.Artifacts[0]
	return &providers.Response{
		Output:       artifact.Base64,
		Model:        engine,
		Usage:        providers.Usage{Units: len(genResp.Artifacts)},
		FinishReason: artifact.FinishReason,
		Latency:      time.Since(startTime),
	}, nil
}

// buildGenerationRequest converts a unified request to the Stability format
func (a *StabilityAdapter) buildGenerationRequest(req *providers.Request) *GenerationRequest {
	genReq := &GenerationRequest{
		TextPrompts: []TextPrompt{{Text: req.Prompt, Weight: 1}},
		Samples:     1,
		Height:      1024,
		Width:       1024,
	}

	if negative := req.PayloadString("negative_prompt"); negative != "" {
		genReq.TextPrompts = append(genReq.TextPrompts, TextPrompt{Text: negative, Weight: -1})
	}
	if style := req.PayloadString("style_preset"); style != "" {
		genReq.StylePreset = style
	}
	if steps, ok := req.Payload["steps"].(float64); ok && steps > 0 {
		genReq.Steps = int(steps)
	}

	return genReq
}

// handleErrorResponse maps a Stability error body onto a ProviderError
func (a *StabilityAdapter) handleErrorResponse(statusCode int, body []byte) error {
	var errResp ErrorResponse
	if err := json.Unmarshal(body, &errResp); err != nil || errResp.Message == "" {
		return providers.FromStatus(a.Vendor(), statusCode, string(body), nil)
	}

	return providers.FromStatus(a.Vendor(), statusCode, errResp.Message, fmt.Errorf("%s", errResp.Name))
}

// Stability-specific request/response types

type GenerationRequest struct {
	TextPrompts []TextPrompt `json:"text_prompts"`
	Samples     int          `json:"samples"`
	Height      int          `json:"height"`
	Width       int          `json:"width"`
	Steps       int          `json:"steps,omitempty"`
	StylePreset string       `json:"style_preset,omitempty"`
}

type TextPrompt struct {
	Text   string  `json:"text"`
	Weight float64 `json:"weight"`
}

type GenerationResponse struct {
	Artifacts []Artifact `json:"artifacts"`
}

type Artifact struct {
	Base64       string `json:"base64"`
	Seed         int64  `json:"seed"`
	FinishReason string `json:"finishReason"`
}

type ErrorResponse struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Message string `json:"message"`
}
