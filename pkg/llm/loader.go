package llm

import (
	"fmt"
	"log/slog"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// NewFromConfig parses the raw 'llm' config section and builds a Router
// mapping model profiles to provider clients. Unknown provider types
// and failed groups are skipped with a warning; the load only fails
// when no client at all could be initialized.
func NewFromConfig(rawLLM jsoniter.RawMessage) (*Router, error) {
	if rawLLM == nil {
		return nil, fmt.Errorf("missing 'llm' config")
	}

	var groups []ProviderGroupConfig
	if err := json.Unmarshal(rawLLM, &groups); err != nil {
		return nil, fmt.Errorf("failed to parse 'llm' config: %w", err)
	}

	clients := make(map[string]Client)
	for _, group := range groups {
		profile := group.Profile
		if profile == "" {
			profile = ProfileFast
		}

		factory, ok := GetProviderFactory(group.Type)
		if !ok {
			slog.Warn("Unknown provider type", "type", group.Type)
			continue
		}

		client, err := factory.Create(group)
		if err != nil {
			slog.Warn("Failed to create client", "type", group.Type, "model", group.Model, "error", err)
			continue
		}

		if _, dup := clients[profile]; dup {
			slog.Warn("Duplicate profile in 'llm' config, keeping first", "profile", profile)
			continue
		}
		clients[profile] = client
		slog.Info("LLM client ready", "provider", group.Type, "profile", profile, "model", group.Model)
	}

	if len(clients) == 0 {
		return nil, fmt.Errorf("no LLM clients could be initialized")
	}

	return NewRouter(clients)
}
