// Package llm holds the built-in LLM providers: a deterministic echo
// provider for development and tests, and the OpenAI-backed provider with
// per-model cost tables.
package llm

import (
	"context"
	"encoding/json"

	"github.com/iceos-ai/iceos/cmd/iceos/sdk"
)

// EchoProvider returns the rendered prompt as the completion. Zero cost,
// deterministic, registered in development mode.
type EchoProvider struct {
	model string
}

// NewEchoProvider creates an echo provider under the given model id.
func NewEchoProvider(model string) *EchoProvider {
	return &EchoProvider{model: model}
}

func (p *EchoProvider) Model() string { return p.model }

func (p *EchoProvider) Complete(_ context.Context, req *sdk.LLMRequest) (*sdk.LLMResponse, error) {
	text := req.Prompt
	if req.ResponseFormat == "json" {
		data, err := json.Marshal(map[string]interface{}{"echo": req.Prompt})
		if err != nil {
			return nil, sdk.WrapError(sdk.ErrInternal, err, "echo provider marshal")
		}
		text = string(data)
	}
	promptTokens := len(req.Prompt) / 4
	return &sdk.LLMResponse{
		Text: text,
		Usage: sdk.Usage{
			PromptTokens:     promptTokens,
			CompletionTokens: len(text) / 4,
			TotalTokens:      promptTokens + len(text)/4,
		},
	}, nil
}
