package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAICompatClient serves every provider that exposes the OpenAI chat
// completions surface (OpenAI itself, Groq, Mistral, Hugging Face router).
type OpenAICompatClient struct {
	client    *openai.Client
	provider  string
	baseURL   string
	hasKey    bool
	retryMax  int
	baseDelay time.Duration
	maxDelay  time.Duration
}

// NewOpenAICompatClient builds a client for provider. An empty baseURL
// selects the provider's public endpoint.
func NewOpenAICompatClient(provider, apiKey, baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *OpenAICompatClient {
	if baseURL == "" {
		if p, ok := LookupPreset(provider); ok {
			baseURL = p.BaseURL
		}
	}
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	if retryMax <= 0 {
		retryMax = 3
	}
	if baseDelay <= 0 {
		baseDelay = 500 * time.Millisecond
	}
	if maxDelay <= 0 {
		maxDelay = 4 * time.Second
	}
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = strings.TrimRight(baseURL, "/")
	}
	cfg.HTTPClient = &http.Client{Timeout: httpTimeout}
	return &OpenAICompatClient{
		client:    openai.NewClientWithConfig(cfg),
		provider:  provider,
		baseURL:   cfg.BaseURL,
		hasKey:    apiKey != "",
		retryMax:  retryMax,
		baseDelay: baseDelay,
		maxDelay:  maxDelay,
	}
}

func (c *OpenAICompatClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if !c.hasKey {
		env := strings.ToUpper(c.provider) + "_API_KEY"
		if p, ok := LookupPreset(c.provider); ok && p.KeyEnv != "" {
			env = p.KeyEnv
		}
		return nil, fmt.Errorf("%s is missing", env)
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	creq := openai.ChatCompletionRequest{
		Model:       req.Model,
		MaxTokens:   req.MaxTokens,
		Temperature: float32(req.Temperature),
		Messages:    make([]openai.ChatCompletionMessage, len(req.Messages)),
	}
	for i, m := range req.Messages {
		creq.Messages[i] = openai.ChatCompletionMessage{Role: m.Role, Content: m.Content}
	}

	backoff := c.baseDelay
	for attempt := 1; ; attempt++ {
		resp, err := c.client.CreateChatCompletion(ctx, creq)
		if err == nil {
			out := &GenerateResponse{
				ID: resp.ID,
				Usage: Usage{
					PromptTokens:     resp.Usage.PromptTokens,
					CompletionTokens: resp.Usage.CompletionTokens,
					TotalTokens:      resp.Usage.TotalTokens,
				},
			}
			for _, ch := range resp.Choices {
				out.Choices = append(out.Choices, Choice{Message: Message{Role: ch.Message.Role, Content: ch.Message.Content}})
			}
			return out, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		classified := c.classify(err)
		sc := StatusCode(classified)
		transient := sc == http.StatusTooManyRequests || sc >= 500 || (sc == 0 && isRetryableNetErr(err))
		if !transient || attempt >= c.retryMax {
			return nil, classified
		}
		sleep := withJitter(backoff)
		if sleep > c.maxDelay {
			sleep = c.maxDelay
		}
		if err := sleepCtx(ctx, sleep); err != nil {
			return nil, err
		}
		backoff *= 2
	}
}

// classify maps go-openai errors onto this package's typed errors.
func (c *OpenAICompatClient) classify(err error) error {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := &APIError{StatusCode: apiErr.HTTPStatusCode, Message: apiErr.Message}
		if code, ok := apiErr.Code.(string); ok {
			e.Code = code
		} else if apiErr.Type != "" {
			e.Code = apiErr.Type
		}
		return classifyAPIError(e, nil)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		e := &APIError{StatusCode: reqErr.HTTPStatusCode, Message: reqErr.Error()}
		return classifyAPIError(e, nil)
	}
	return &UnreachableError{Host: hostOf(c.baseURL), Err: err}
}
