package ai

import (
	"fmt"
	"sort"
	"time"
)

// RuntimeFactory builds a Runtime from the generic config below.
type RuntimeFactory func(RuntimeConfig) Runtime

// RuntimeConfig carries common knobs used by runtimes.
type RuntimeConfig struct {
	HTTPTimeout time.Duration
	RetryMax    int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	APIKey      string
	// BaseURL overrides the provider endpoint; Host is the Ollama address.
	BaseURL string
	Host    string
}

var registry = map[string]RuntimeFactory{}

// RegisterRuntime registers a provider name with its factory.
func RegisterRuntime(name string, f RuntimeFactory) { registry[name] = f }

// GetRuntime creates a Runtime for the given provider if registered.
func GetRuntime(name string, cfg RuntimeConfig) (Runtime, bool) {
	if f, ok := registry[name]; ok {
		return f(cfg), true
	}
	return nil, false
}

// NewRuntime is GetRuntime with an error for unknown providers.
func NewRuntime(name string, cfg RuntimeConfig) (Runtime, error) {
	rt, ok := GetRuntime(name, cfg)
	if !ok {
		return nil, fmt.Errorf("unsupported provider %q (registered: %v)", name, RegisteredRuntimes())
	}
	return rt, nil
}

// RegisteredRuntimes lists registered provider names in sorted order.
func RegisteredRuntimes() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func init() {
	RegisterRuntime(ProviderOpenRouter, func(c RuntimeConfig) Runtime {
		return NewClientWithBaseURL(c.APIKey, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay, c.BaseURL)
	})
	RegisterRuntime(ProviderOllama, func(c RuntimeConfig) Runtime {
		host := c.Host
		if host == "" {
			host = c.BaseURL
		}
		return NewOllamaClient(host, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
	RegisterRuntime(ProviderAnthropic, func(c RuntimeConfig) Runtime {
		return NewAnthropicClient(c.APIKey, c.BaseURL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
	})
	RegisterRuntime(ProviderGemini, func(c RuntimeConfig) Runtime {
		return NewGeminiClient(c.APIKey, c.BaseURL, c.HTTPTimeout)
	})
	for _, p := range []string{ProviderOpenAI, ProviderGroq, ProviderMistral, ProviderHuggingFace} {
		provider := p
		RegisterRuntime(provider, func(c RuntimeConfig) Runtime {
			return NewOpenAICompatClient(provider, c.APIKey, c.BaseURL, c.HTTPTimeout, c.RetryMax, c.BaseDelay, c.MaxDelay)
		})
	}
}
