package ai

import "sort"

// Preset describes how to reach a provider and which model to use when none
// is configured.
type Preset struct {
	Provider     string
	DefaultModel string
	// KeyEnv is the conventional credential variable; empty for local runtimes.
	KeyEnv  string
	BaseURL string
	Models  []string
}

var presets = map[string]Preset{
	ProviderGroq: {
		Provider:     ProviderGroq,
		DefaultModel: "llama-3.3-70b-versatile",
		KeyEnv:       "GROQ_API_KEY",
		BaseURL:      "https://api.groq.com/openai/v1",
		Models:       []string{"llama-3.3-70b-versatile", "llama-3.1-8b-instant", "mixtral-8x7b-32768"},
	},
	ProviderOpenAI: {
		Provider:     ProviderOpenAI,
		DefaultModel: "gpt-4o-mini",
		KeyEnv:       "OPENAI_API_KEY",
		BaseURL:      "https://api.openai.com/v1",
		Models:       []string{"gpt-4o-mini", "gpt-4o", "gpt-4.1-mini"},
	},
	ProviderOllama: {
		Provider:     ProviderOllama,
		DefaultModel: "llama3",
		BaseURL:      "http://localhost:11434",
		Models:       []string{"llama3", "llama3.1:8b-instruct", "mistral:7b-instruct", "phi3:mini-4k-instruct"},
	},
	ProviderAnthropic: {
		Provider:     ProviderAnthropic,
		DefaultModel: "claude-3-5-sonnet-20241022",
		KeyEnv:       "ANTHROPIC_API_KEY",
		BaseURL:      anthropicBaseURL,
		Models:       []string{"claude-3-5-sonnet-20241022", "claude-3-haiku-20240307"},
	},
	ProviderHuggingFace: {
		Provider:     ProviderHuggingFace,
		DefaultModel: "HuggingFaceH4/zephyr-7b-beta",
		KeyEnv:       "HUGGINGFACE_API_KEY",
		BaseURL:      "https://router.huggingface.co/v1",
		Models:       []string{"HuggingFaceH4/zephyr-7b-beta", "mistralai/Mistral-7B-Instruct-v0.3"},
	},
	ProviderMistral: {
		Provider:     ProviderMistral,
		DefaultModel: "mistral-tiny",
		KeyEnv:       "MISTRAL_API_KEY",
		BaseURL:      "https://api.mistral.ai/v1",
		Models:       []string{"mistral-tiny", "mistral-small-latest", "mistral-large-latest"},
	},
	ProviderGemini: {
		Provider:     ProviderGemini,
		DefaultModel: "gemini-pro",
		KeyEnv:       "GEMINI_API_KEY",
		Models:       []string{"gemini-pro", "gemini-1.5-flash", "gemini-1.5-pro"},
	},
	ProviderOpenRouter: {
		Provider:     ProviderOpenRouter,
		DefaultModel: "openai/gpt-4o-mini",
		KeyEnv:       "OPENROUTER_API_KEY",
		BaseURL:      "https://openrouter.ai/api/v1",
		Models:       []string{"openai/gpt-4o-mini", "anthropic/claude-3.5-sonnet", "deepseek/deepseek-r1:free"},
	},
}

// LookupPreset returns the preset for provider.
func LookupPreset(provider string) (Preset, bool) {
	p, ok := presets[provider]
	return p, ok
}

// Presets returns all presets ordered by provider name.
func Presets() []Preset {
	out := make([]Preset, 0, len(presets))
	for _, p := range presets {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Provider < out[j].Provider })
	return out
}

// DefaultModel returns the model used for provider when none is configured.
func DefaultModel(provider string) string {
	return presets[provider].DefaultModel
}

// ResolveModel returns model, or the provider default when model is empty.
func ResolveModel(provider, model string) string {
	if model != "" {
		return model
	}
	return DefaultModel(provider)
}
