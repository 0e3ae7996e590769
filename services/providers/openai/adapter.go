package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	openaisdk "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/upb/ai-integration-platform/models"
	"github.com/upb/ai-integration-platform/services/providers"
)

const (
	defaultModel          = "gpt-4o-mini"
	defaultEmbeddingModel = "text-embedding-3-small"
	defaultMaxTokens      = 1024
)

// OpenAIAdapter implements providers.Adapter using the official OpenAI SDK
type OpenAIAdapter struct {
	client openaisdk.Client
	config providers.ProviderConfig
}

// NewOpenAIAdapter creates a new OpenAI adapter. SDK retries are disabled:
// a failed attempt moves the chain to the next provider instead.
func NewOpenAIAdapter(config providers.ProviderConfig) *OpenAIAdapter {
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
	for k, v := range config.Headers {
		opts = append(opts, option.WithHeader(k, v))
	}

	return &OpenAIAdapter{
		client: openaisdk.NewClient(opts...),
		config: config,
	}
}

// Factory adapts NewOpenAIAdapter to providers.AdapterFactory
func Factory(_ providers.Descriptor, cfg providers.ProviderConfig) (providers.Adapter, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("openai API key is required")
	}
	return NewOpenAIAdapter(cfg), nil
}

// Vendor returns the vendor name
func (a *OpenAIAdapter) Vendor() string {
	return providers.VendorOpenAI
}

// Invoke dispatches the request to the chat or embeddings endpoint
func (a *OpenAIAdapter) Invoke(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	switch req.Capability {
	case providers.CapabilityTextGeneration,
		providers.CapabilityCodeGeneration,
		providers.CapabilityTranslation,
		providers.CapabilityVision:
		return a.chatCompletion(ctx, req)
	case providers.CapabilityEmbeddings:
		return a.embedding(ctx, req)
	default:
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError,
			fmt.Sprintf("capability %s not supported", req.Capability), 0, providers.ErrUnsupportedCapability)
	}
}

func (a *OpenAIAdapter) chatCompletion(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	startTime := time.Now()

	resp, err := a.client.Chat.Completions.New(ctx, buildChatParams(req))
	if err != nil {
		return nil, a.handleError(err)
	}

	if len(resp.Choices) == 0 {
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError, "no choices returned", 0, nil)
	}

	choice := resp.Choices[0]
	return &providers.Response{
		Output: choice.Message.Content,
		Model:  string(resp.Model),
		Usage: providers.Usage{
			PromptTokens:     int(resp.Usage.PromptTokens),
			CompletionTokens: int(resp.Usage.CompletionTokens),
			TotalTokens:      int(resp.Usage.TotalTokens),
		},
		FinishReason: string(choice.FinishReason),
		Latency:      time.Since(startTime),
	}, nil
}

func (a *OpenAIAdapter) embedding(ctx context.Context, req *providers.Request) (*providers.Response, error) {
	startTime := time.Now()

	model := req.Model
	if model == "" || model == defaultModel {
		model = defaultEmbeddingModel
	}

	resp, err := a.client.Embeddings.New(ctx, openaisdk.EmbeddingNewParams{
		Model: openaisdk.EmbeddingModel(model),
		Input: openaisdk.EmbeddingNewParamsInputUnion{OfString: openaisdk.String(req.Prompt)},
	})
	if err != nil {
		return nil, a.handleError(err)
	}

	if len(resp.Data) == 0 {
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError, "no embedding returned", 0, nil)
	}

	vector, err := json.Marshal(resp.Data[0].Embedding)
	if err != nil {
		return nil, providers.NewProviderError(a.Vendor(), models.OutcomeServerError, "failed to encode embedding", 0, err)
	}

	return &providers.Response{
		Output: string(vector),
		Model:  string(resp.Model),
		Usage: providers.Usage{
			PromptTokens: int(resp.Usage.PromptTokens),
			TotalTokens:  int(resp.Usage.TotalTokens),
		},
		Latency: time.Since(startTime),
	}, nil
}

// buildChatParams converts a unified request to SDK parameters
func buildChatParams(req *providers.Request) openaisdk.ChatCompletionNewParams {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}

	var message openaisdk.ChatCompletionMessageParamUnion
	if imageURL := req.PayloadString("image_url"); req.Capability == providers.CapabilityVision && imageURL != "" {
		message = openaisdk.UserMessage([]openaisdk.ChatCompletionContentPartUnionParam{
			openaisdk.TextContentPart(req.TextPrompt()),
			openaisdk.ImageContentPart(openaisdk.ChatCompletionContentPartImageImageURLParam{URL: imageURL}),
		})
	} else {
		message = openaisdk.UserMessage(req.TextPrompt())
	}

	params := openaisdk.ChatCompletionNewParams{
		Model:               openaisdk.ChatModel(model),
		Messages:            []openaisdk.ChatCompletionMessageParamUnion{message},
		MaxCompletionTokens: openaisdk.Int(int64(maxTokens)),
	}
	if req.UserID != "" {
		params.User = openaisdk.String(req.UserID)
	}
	return params
}

// handleError maps SDK errors onto the routing taxonomy
func (a *OpenAIAdapter) handleError(err error) error {
	var apiErr *openaisdk.Error
	if errors.As(err, &apiErr) {
		return providers.FromStatus(a.Vendor(), apiErr.StatusCode, apiErr.Message, err)
	}
	return providers.WrapTransport(a.Vendor(), err)
}
