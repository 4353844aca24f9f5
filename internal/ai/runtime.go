package ai

import "context"

// Runtime is implemented by every language-model backend. One call is one
// complete, non-streaming chat exchange.
type Runtime interface {
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)
}

// Provider identifiers used across the CLI for selection.
const (
	ProviderOpenRouter  = "openrouter"
	ProviderOpenAI      = "openai"
	ProviderGroq        = "groq"
	ProviderAnthropic   = "anthropic"
	ProviderGemini      = "gemini"
	ProviderMistral     = "mistral"
	ProviderHuggingFace = "huggingface"
	ProviderOllama      = "ollama"
)

// RuntimeFunc adapts a function to the Runtime interface.
type RuntimeFunc func(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

func (f RuntimeFunc) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	return f(ctx, req)
}
