// Package settings persists the AI provider configuration.
package settings

import (
	"encoding/json"
	"log/slog"

	"github.com/zombor/bill-analyzer/internal/storage"
)

// Provider selects the scanner variant
type Provider string

const (
	// ProviderGemini is the hosted Google Gemini model
	ProviderGemini Provider = "gemini"
	// ProviderOllama is a local Ollama server (OpenAI-compatible API)
	ProviderOllama Provider = "ollama"
)

const (
	DefaultGeminiModel = "gemini-2.5-flash"
	DefaultOllamaURL   = "http://localhost:11434"
	DefaultOllamaModel = "llava"
)

// AiSettings selects the active provider and holds its credentials
type AiSettings struct {
	Provider     Provider `json:"provider"`
	GeminiAPIKey string   `json:"geminiApiKey"`
	GeminiModel  string   `json:"geminiModel,omitempty"`
	OllamaURL    string   `json:"ollamaUrl"`
	OllamaModel  string   `json:"ollamaModel"`
}

// IsConfigured reports whether the selected provider has everything it
// needs to attempt an analysis.
func IsConfigured(s AiSettings) bool {
	switch s.Provider {
	case ProviderGemini:
		return s.GeminiAPIKey != ""
	case ProviderOllama:
		return s.OllamaURL != "" && s.OllamaModel != ""
	default:
		return false
	}
}

// Store loads and saves AiSettings
type Store struct {
	kv         storage.KV
	defaultKey string
}

// NewStore creates a Store. defaultKey is the Gemini API key supplied at
// build or launch time; it is used whenever no key has been saved.
func NewStore(kv storage.KV, defaultKey string) *Store {
	return &Store{kv: kv, defaultKey: defaultKey}
}

// Defaults returns the settings used when nothing has been saved
func (s *Store) Defaults() AiSettings {
	return AiSettings{
		Provider:     ProviderGemini,
		GeminiAPIKey: s.defaultKey,
		GeminiModel:  DefaultGeminiModel,
		OllamaURL:    DefaultOllamaURL,
		OllamaModel:  DefaultOllamaModel,
	}
}

// Load returns the saved settings layered over the defaults. Read errors
// are logged and the defaults returned.
func (s *Store) Load() AiSettings {
	settings := s.Defaults()

	data, err := s.kv.Get(storage.KeySettings)
	if err != nil {
		slog.Error("Failed to load AI settings", "error", err)
		return settings
	}
	if data == nil {
		return settings
	}

	// Unmarshal over the defaults so fields missing from older saves keep
	// their default values.
	if err := json.Unmarshal(data, &settings); err != nil {
		slog.Error("Failed to load AI settings", "error", err)
		return s.Defaults()
	}
	if settings.GeminiAPIKey == "" && s.defaultKey != "" {
		settings.GeminiAPIKey = s.defaultKey
	}
	if settings.GeminiModel == "" {
		settings.GeminiModel = DefaultGeminiModel
	}
	return settings
}

// Save persists the settings. Write errors are logged, not returned.
func (s *Store) Save(settings AiSettings) {
	data, err := json.Marshal(settings)
	if err != nil {
		slog.Error("Failed to save AI settings", "error", err)
		return
	}
	if err := s.kv.Put(storage.KeySettings, data); err != nil {
		slog.Error("Failed to save AI settings", "error", err)
	}
}
