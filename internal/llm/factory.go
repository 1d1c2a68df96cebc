package llm

import (
	"fmt"
	"time"
)

// ProviderConfig holds all configuration needed to create any model provider.
type ProviderConfig struct {
	Provider   string // "gemini", "openai", "ollama", "custom"
	APIKey     string
	Model      string
	BaseURL    string // Override for self-hosted / custom endpoints
	EmbedModel string // Embedding model (OpenAI-compatible providers only)

	// Timeout and retry configuration for the completion boundary.
	Timeout    time.Duration // Per-attempt timeout (default: 1 minute)
	MaxRetries int           // Max retry attempts (default: 2)
	RetryDelay time.Duration // Initial retry delay for exponential backoff (default: 1s)
}

// ProviderFactory creates Provider instances from config.
type ProviderFactory struct {
	constructors map[string]ProviderConstructor
}

// ProviderConstructor builds a Provider from config.
type ProviderConstructor func(cfg ProviderConfig) (Provider, error)

// NewFactory creates an empty factory. Callers register constructors for the
// backends they link in.
func NewFactory() *ProviderFactory {
	return &ProviderFactory{
		constructors: make(map[string]ProviderConstructor),
	}
}

// Register adds a provider constructor under the given name.
func (f *ProviderFactory) Register(name string, ctor ProviderConstructor) {
	f.constructors[name] = ctor
}

// Create builds a Provider from config. Returns nil (no error) when provider is
// empty or "none", allowing model-free operation in tests and dry runs.
// The returned provider is wrapped with retry logic if configured.
func (f *ProviderFactory) Create(cfg ProviderConfig) (Provider, error) {
	if cfg.Provider == "" || cfg.Provider == "none" {
		return nil, nil
	}

	ctor, ok := f.constructors[cfg.Provider]
	if !ok {
		return nil, fmt.Errorf("unknown model provider %q (registered: %v)", cfg.Provider, f.names())
	}

	provider, err := ctor(cfg)
	if err != nil {
		return nil, err
	}

	if cfg.Timeout > 0 || cfg.MaxRetries > 0 {
		return WrapWithRetry(provider, cfg), nil
	}

	return provider, nil
}

func (f *ProviderFactory) names() []string {
	var out []string
	for k := range f.constructors {
		out = append(out, k)
	}
	return out
}

// KnownProviders documents the built-in provider presets.
// For OpenAI-compatible APIs (vLLM, Ollama, text-embeddings-inference, etc.)
// use "openai" provider with a custom base_url.
var KnownProviders = map[string]string{
	"gemini": "https://generativelanguage.googleapis.com/v1beta",
	"openai": "https://api.openai.com/v1",
	"ollama": "http://localhost:11434/v1",
}
