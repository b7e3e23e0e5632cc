package llm

// ProviderGroupConfig defines the configuration of one provider group.
// It is the standard input of every ProviderFactory.
type ProviderGroupConfig struct {
	Type    string         `json:"type"`
	Profile string         `json:"profile"`
	APIKey  string         `json:"api_key,omitempty"`
	Model   string         `json:"model"`
	BaseURL string         `json:"base_url,omitempty"`
	Options map[string]any `json:"options,omitempty"`
}

// ProviderFactory builds a Client from a provider group configuration.
type ProviderFactory interface {
	Create(groupConfig ProviderGroupConfig) (Client, error)
}

// Global provider registry
var providerRegistry = make(map[string]ProviderFactory)

// RegisterProvider registers a Provider Factory
func RegisterProvider(name string, factory ProviderFactory) {
	providerRegistry[name] = factory
}

// GetProviderFactory returns the Provider Factory registered under name.
func GetProviderFactory(name string) (ProviderFactory, bool) {
	f, ok := providerRegistry[name]
	return f, ok
}
