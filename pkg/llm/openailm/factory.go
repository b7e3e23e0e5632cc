package openailm

import (
	"fmt"
	"os"

	"studychat/pkg/llm"
)

// Factory handles creation of OpenAI-compatible clients.
type Factory struct{}

// Create implements llm.ProviderFactory.
func (f *Factory) Create(cfg llm.ProviderGroupConfig) (llm.Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("openai: missing api_key (config or OPENAI_API_KEY)")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	return NewClient("openai", apiKey, model, cfg.BaseURL)
}

func init() {
	llm.RegisterProvider("openai", &Factory{})
}
