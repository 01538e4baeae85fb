package llm

import "github.com/iceos-ai/iceos/cmd/iceos/sdk"

// Catalog returns provider factories keyed by model id. The echo model is
// always present; OpenAI models are included when an API key is supplied.
func Catalog(openAIKey string) map[string]sdk.LLMFactory {
	catalog := map[string]sdk.LLMFactory{
		"echo-1": func() (sdk.LLMProvider, error) { return NewEchoProvider("echo-1"), nil },
	}
	if openAIKey == "" {
		return catalog
	}
	for model := range costTable {
		model := model
		catalog[model] = func() (sdk.LLMProvider, error) {
			return NewOpenAIProvider(openAIKey, model), nil
		}
	}
	return catalog
}
