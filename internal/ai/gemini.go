package ai

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"google.golang.org/genai"
)

// GeminiClient calls Google Gemini through the genai SDK. The SDK client is
// created on first use because construction needs a context.
type GeminiClient struct {
	apiKey      string
	baseURL     string
	httpTimeout time.Duration

	once    sync.Once
	client  *genai.Client
	initErr error
}

// NewGeminiClient builds a client; an empty baseURL selects the public API.
func NewGeminiClient(apiKey, baseURL string, httpTimeout time.Duration) *GeminiClient {
	if httpTimeout <= 0 {
		httpTimeout = 60 * time.Second
	}
	return &GeminiClient{apiKey: apiKey, baseURL: baseURL, httpTimeout: httpTimeout}
}

func (c *GeminiClient) init(ctx context.Context) error {
	c.once.Do(func() {
		cfg := &genai.ClientConfig{
			APIKey:     c.apiKey,
			Backend:    genai.BackendGeminiAPI,
			HTTPClient: &http.Client{Timeout: c.httpTimeout},
		}
		if c.baseURL != "" {
			cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
		}
		c.client, c.initErr = genai.NewClient(ctx, cfg)
		if c.initErr != nil {
			c.initErr = fmt.Errorf("create gemini client: %w", c.initErr)
		}
	})
	return c.initErr
}

func (c *GeminiClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("GEMINI_API_KEY is missing")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if err := c.init(ctx); err != nil {
		return nil, err
	}

	var system []string
	var contents []*genai.Content
	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			system = append(system, m.Content)
		case RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	if len(contents) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(req.Temperature)),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if len(system) > 0 {
		cfg.SystemInstruction = genai.NewContentFromText(strings.Join(system, "\n\n"), genai.RoleUser)
	}

	resp, err := c.client.Models.GenerateContent(ctx, req.Model, contents, cfg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if IsTransport(err) {
			return nil, &UnreachableError{Host: "generativelanguage.googleapis.com", Err: err}
		}
		return nil, &APIError{Message: err.Error()}
	}
	out := &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: RoleAssistant, Content: resp.Text()}}},
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}
