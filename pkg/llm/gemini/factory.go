package gemini

import (
	"context"
	"fmt"
	"os"

	"studychat/pkg/llm"
)

// Factory handles creation of Gemini clients.
type Factory struct{}

// Create implements llm.ProviderFactory.
func (f *Factory) Create(cfg llm.ProviderGroupConfig) (llm.Client, error) {
	apiKey := cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("GEMINI_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("gemini: missing api_key (config or GEMINI_API_KEY)")
	}

	model := cfg.Model
	if model == "" {
		model = "gemini-2.5-flash"
	}

	return NewClient(context.Background(), apiKey, model)
}

func init() {
	llm.RegisterProvider("gemini", &Factory{})
}
