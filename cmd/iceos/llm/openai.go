package llm

import (
	"context"
	"errors"

	openai "github.com/sashabaranov/go-openai"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// modelCost is per-1K-token pricing in USD.
type modelCost struct {
	prompt     float64
	completion float64
}

// costTable covers the models the provider registers by default. Unknown
// models bill at the gpt-4o rate so cost accounting never silently reads
// zero.
var costTable = map[string]modelCost{
	"gpt-4o":        {prompt: 0.0025, completion: 0.01},
	"gpt-4o-mini":   {prompt: 0.00015, completion: 0.0006},
	"gpt-4-turbo":   {prompt: 0.01, completion: 0.03},
	"gpt-3.5-turbo": {prompt: 0.0005, completion: 0.0015},
}

// OpenAIProvider dispatches completions through the OpenAI chat API.
type OpenAIProvider struct {
	client *openai.Client
	model  string
}

// NewOpenAIProvider creates a provider for one model id.
func NewOpenAIProvider(apiKey, model string) *OpenAIProvider {
	return &OpenAIProvider{client: openai.NewClient(apiKey), model: model}
}

func (p *OpenAIProvider) Model() string { return p.model }

func (p *OpenAIProvider) Complete(ctx context.Context, req *sdk.LLMRequest) (*sdk.LLMResponse, error) {
	messages := make([]openai.ChatCompletionMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: req.Prompt,
	})

	chatReq := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    messages,
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	}
	if req.ResponseFormat == "json" {
		chatReq.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	resp, err := p.client.CreateChatCompletion(ctx, chatReq)
	if err != nil {
		return nil, classify(err)
	}
	if len(resp.Choices) == 0 {
		return nil, sdk.NewError(sdk.ErrTransient, "provider returned no choices")
	}

	usage := sdk.Usage{
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
	}
	return &sdk.LLMResponse{
		Text:    resp.Choices[0].Message.Content,
		Usage:   usage,
		CostUSD: cost(p.model, usage),
	}, nil
}

// classify maps provider errors onto the retryable taxonomy.
func classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429:
			return sdk.WrapError(sdk.ErrRateLimited, err, "provider rate limited")
		case apiErr.HTTPStatusCode >= 500:
			return sdk.WrapError(sdk.ErrTransient, err, "provider unavailable")
		default:
			return sdk.WrapError(sdk.ErrValidation, err, "provider rejected request")
		}
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	return sdk.WrapError(sdk.ErrTransient, err, "provider call failed")
}

// cost computes USD cost from usage against the pricing table.
func cost(model string, usage sdk.Usage) float64 {
	pricing, ok := costTable[model]
	if !ok {
		pricing = costTable["gpt-4o"]
	}
	return float64(usage.PromptTokens)/1000*pricing.prompt +
		float64(usage.CompletionTokens)/1000*pricing.completion
}
