package config

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

// Config defines the global application configuration structure.
// This structure maps directly to the config.json file and holds
// business-level settings: provider credentials, storage backends,
// and the reference material handed to the prompt composer.
type Config struct {
	// LLM holds the provider group configuration in raw JSON. The llm
	// package parses it through the provider registry.
	LLM jsoniter.RawMessage `json:"llm"`
	// Web contains the web channel configuration payload in raw JSON.
	Web jsoniter.RawMessage `json:"web"`
	// Store selects and configures the conversation store backend.
	Store StoreConfig `json:"store"`
	// Upload configures the blob upload service for image attachments.
	Upload UploadConfig `json:"upload"`
	// Books lists reference titles available to every conversation,
	// merged with per-owner titles read from the store.
	Books []string `json:"books"`
	// ReferenceText is contextual study material appended verbatim to
	// the system prompt.
	ReferenceText string `json:"reference_text"`
}

// StoreConfig selects the persistence backend for conversations.
type StoreConfig struct {
	// Backend is "memory" or "firestore".
	Backend string `json:"backend"`
	// ProjectID is the GCP project used by the Firestore backend.
	ProjectID string `json:"project_id"`
}

// UploadConfig configures the blob upload service.
type UploadConfig struct {
	// Bucket is the Cloud Storage bucket for uploaded images.
	// Empty disables uploads; attachments then stay inline.
	Bucket string `json:"bucket"`
}

// Validate ensures the configuration structure contains all mandatory fields.
// It acts as a primary guard before the system proceeds to initialization.
func (c *Config) Validate() error {
	if len(c.LLM) == 0 {
		return fmt.Errorf("mandatory 'llm' configuration is missing or empty")
	}
	if c.Store.Backend == "firestore" && c.Store.ProjectID == "" {
		return fmt.Errorf("'store.project_id' is required for the firestore backend")
	}
	return nil
}

// SystemConfig defines engine-level technical parameters.
// These settings are stored in system.json and control the technical
// behavior of the dispatch pipeline rather than its business content.
type SystemConfig struct {
	// HistoryWindow is the maximum number of prior turns sent to the
	// model with each request. Older turns are discarded first.
	HistoryWindow int `json:"history_window"`
	// LLMTimeoutMs is the hard cutoff time (in milliseconds) for a
	// model request. The context is cancelled when exceeded.
	LLMTimeoutMs int `json:"llm_timeout_ms"`
	// ImageMaxDim is the maximum pixel dimension of an uploaded image.
	// Larger images are downscaled before upload.
	ImageMaxDim int `json:"image_max_dim"`
	// ImageQuality is the JPEG quality (1-100) used when re-encoding
	// an image for upload.
	ImageQuality int `json:"image_quality"`
	// TitleLimit is the maximum length of a conversation title derived
	// from the first question.
	TitleLimit int `json:"title_limit"`
	// PreviewLimit is the maximum length of the conversation preview
	// maintained on every appended turn.
	PreviewLimit int `json:"preview_limit"`
	// InternalChannelBuffer defines the size of the internal Go channels
	// used for buffering turn snapshots toward subscribers.
	InternalChannelBuffer int `json:"internal_channel_buffer"`
	// LogLevel sets the minimum severity for log output.
	// Accepted values: "debug", "info", "warn", "error". Default: "info".
	LogLevel string `json:"log_level"`
}

// DefaultSystemConfig returns a SystemConfig pointer initialized with hardcoded
// safe default values. This is used as a fallback when the system.json file
// is missing or corrupt, ensuring the engine can always start.
func DefaultSystemConfig() *SystemConfig {
	return &SystemConfig{
		HistoryWindow:         10,
		LLMTimeoutMs:          600000,
		ImageMaxDim:           1200,
		ImageQuality:          80,
		TitleLimit:            50,
		PreviewLimit:          80,
		InternalChannelBuffer: 16,
		LogLevel:              "info",
	}
}

// Load reads and parses the JSON configuration files from the current working directory.
// It first attempts to load 'config.json' (app config). If this file is missing, it returns an error.
// Then it calls LoadSystemConfig to load 'system.json'.
// Returns pointers to the loaded Config and SystemConfig, or an error if the mandatory app config fails.
func Load() (*Config, *SystemConfig, error) {
	appPath := "config.json"
	if _, err := os.Stat(appPath); os.IsNotExist(err) {
		return nil, nil, fmt.Errorf("config file '%s' not found. please create one", appPath)
	}

	appFile, err := os.ReadFile(appPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(appFile, &cfg); err != nil {
		return nil, nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	sysCfg := LoadSystemConfig("system.json")

	return &cfg, sysCfg, nil
}

// LoadFile loads the application config from an explicit path.
// Used by the reload path triggered by the config watcher.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	var cfg Config
	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadSystemConfig attempts to load system settings, returns defaults if it fails
func LoadSystemConfig(path string) *SystemConfig {
	cfg := DefaultSystemConfig()

	file, err := os.ReadFile(path)
	if err != nil {
		return cfg // File not found, use defaults
	}

	if err := jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal(file, cfg); err != nil {
		return cfg // Parse failed, use defaults
	}

	return cfg
}
