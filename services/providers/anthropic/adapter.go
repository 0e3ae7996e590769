package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	anthropicsdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/services/providers"
)

const (
	defaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 1024
)

// Adapter implements providers.Adapter for the Anthropic Messages API
type Adapter struct {
	client anthropicsdk.Client
	config providers.ProviderConfig
}

// NewAdapter creates a new Anthropic adapter with SDK retries disabled
func NewAdapter(config providers.ProviderConfig) *Adapter {
	if config.Timeout == 0 {
		config.Timeout = 60 * time.Second
	}

	opts := []option.RequestOption{
		option.WithAPIKey(config.APIKey),
		option.WithMaxRetries(0),
		option.WithHTTPClient(&http.Client{Timeout: config.Timeout}),
	}
	if config.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(config.BaseURL))
	}

	return &Adapter{
		client: anthropicsdk.NewClient(opts...),
		config: config,
	}
}

// Factory adapts NewAdapter to providers.AdapterFactory
func Factory(_ providers.Descriptor, cfg providers.ProviderConfig) (providers.Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("anthropic API key is required")
	}
	return NewAdapter(cfg), nil
}

// Vendor returns the vendor name
func (a *Adapter) Vendor() string {
	return providers.VendorAnthropic
}

// Invoke sends a single-turn message and concatenates the text blocks of the reply
func (a *Adapter) Invoke(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	switch req.Capability {
	case providers.CapabilityTextGeneration,
		providers.CapabilityCodeGeneration,
		providers.CapabilityTranslation,
		providers.CapabilityVision:
	default:
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError,
			fmt.Sprintf("capability %s not supported", req.Capability), 0, providers.ErrUnsupportedCapability)
	}

	startTime := time.Now()

	resp, err := a.client.Messages.New(ctx, buildMessageParams(req))
	if err != nil {
		var apiErr *anthropicsdk.Error
		if errors.As(err, &apiErr) {
			return nil, providers.FromStatus(a.Vendor(), apiErr.StatusCode, http.StatusText(apiErr.StatusCode), err)
		}
		return nil, providers.WrapTransport(a.Vendor(), err)
	}

	var content strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}

	return &providers.Response{
		Output: content.String(),
		Model:  string(resp.Model),
		Usage: providers.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
			TotalTokens:      int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		},
		FinishReason: string(resp.StopReason),
		Latency:      time.Since(startTime),
	}, nil
}

// buildMessageParams converts a unified request to SDK parameters
func buildMessageParams(req *providers.Request) anthropicsdk.MessageNewParams {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	blocks := []anthropicsdk.ContentBlockParamUnion{anthropicsdk.NewTextBlock(req.TextPrompt())}
	if req.Capability == providers.CapabilityVision {
		data := req.PayloadString("image_base64")
		mediaType := req.PayloadString("media_type")
		if data != "" {
			if mediaType == "" {
				mediaType = "image/png"
			}
			blocks = append([]anthropicsdk.ContentBlockParamUnion{
				anthropicsdk.NewImageBlockBase64(mediaType, data),
			}, blocks...)
		}
	}

	return anthropicsdk.MessageNewParams{
		Model:     anthropicsdk.Model(model),
		MaxTokens: int64(maxTokens),
		Messages: []anthropicsdk.MessageParam{
			anthropicsdk.NewUserMessage(blocks...),
		},
	}
}
