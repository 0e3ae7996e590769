package google

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/services/providers"
)

const (
	defaultModel     = "gemini-2.0-flash"
	defaultMaxTokens = 1024
)

// Adapter implements providers.Adapter for the Gemini API
type Adapter struct {
	client *genai.Client
	config providers.ProviderConfig
}

// NewAdapter creates a Gemini client bound to the configured API key
func NewAdapter(ctx context.Context, config providers.ProviderConfig) (*Adapter, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("google API key is required")
	}
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	clientCfg := &genai.ClientConfig{
		APIKey:     config.APIKey,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: &http.Client{Timeout: config.Timeout},
	}
	if config.BaseURL != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: config.BaseURL}
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	return &Adapter{client: client, config: config}, nil
}

// Factory adapts NewAdapter to providers.AdapterFactory
func Factory(_ providers.Descriptor, cfg providers.ProviderConfig) (providers.Adapter, error) {
	return NewAdapter(context.Background(), cfg)
}

// Vendor returns the vendor name
func (a *Adapter) Vendor() string {
	return providers.VendorGoogle
}

// Invoke generates content for text-like capabilities
func (a *Adapter) Invoke(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	switch req.Capability {
	case providers.CapabilityTextGeneration,
		providers.CapabilityCodeGeneration,
		providers.CapabilityTranslation:
	default:
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError,
			fmt.Sprintf("capability %s not supported", req.Capability), 0, providers.ErrUnsupportedCapability)
	}

	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	startTime := time.Now()

	resp, err := a.client.Models.GenerateContent(ctx, model, genai.Text(req.TextPrompt()), &genai.GenerateContentConfig{
		MaxOutputTokens: int32(maxTokens),
	})
	if err != nil {
		return nil, a.handleError(err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError, "no candidates returned", 0, nil)
	}

	candidate := resp.Candidates[0]
	var content strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil {
			content.WriteString(part.Text)
		}
	}

	out := &providers.Response{
		Output:       content.String(),
		Model:        model,
		FinishReason: string(candidate.FinishReason),
		Latency:      time.Since(startTime),
	}
	if resp.UsageMetadata != nil {
		out.Usage = providers.Usage{
			PromptTokens:     int(resp.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(resp.UsageMetadata.CandidatesTokenCount),
			TotalTokens:      int(resp.UsageMetadata.TotalTokenCount),
		}
	}
	return out, nil
}

// handleError maps genai errors onto the routing taxonomy
func (a *Adapter) handleError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return providers.FromStatus(a.Vendor(), apiErr.Code, apiErr.Message, err)
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) {
		return providers.FromStatus(a.Vendor(), apiErrPtr.Code, apiErrPtr.Message, err)
	}
	return providers.WrapTransport(a.Vendor(), err)
}
