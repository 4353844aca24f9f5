package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
)

const (
	anthropicBaseURL    = "https://api.anthropic.com"
	anthropicAPIVersion = "2023-06-01"
	anthropicMaxTokens  = 4096
)

// AnthropicClient calls the Anthropic Messages API.
type AnthropicClient struct {
	transport
	apiKey  string
	baseURL string
}

// NewAnthropicClient builds a client; an empty baseURL selects the public API.
func NewAnthropicClient(apiKey, baseURL string, httpTimeout time.Duration, retryMax int, baseDelay, maxDelay time.Duration) *AnthropicClient {
	if baseURL == "" {
		baseURL = anthropicBaseURL
	}
	return &AnthropicClient{
		transport: newTransport(httpTimeout, retryMax, baseDelay, maxDelay),
		apiKey:    apiKey,
		baseURL:   strings.TrimRight(baseURL, "/"),
	}
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	MaxTokens   int                `json:"max_tokens"`
	Temperature float64            `json:"temperature,omitempty"`
}

type anthropicResponse struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Generate maps system messages to the top-level system prompt and
// concatenates the text blocks of the reply.
func (c *AnthropicClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if c.apiKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY is missing")
	}
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	areq := anthropicRequest{Model: req.Model, MaxTokens: req.MaxTokens, Temperature: req.Temperature}
	if areq.MaxTokens <= 0 {
		areq.MaxTokens = anthropicMaxTokens
	}
	var system []string
	for _, m := range req.Messages {
		if m.Role == RoleSystem {
			system = append(system, m.Content)
			continue
		}
		areq.Messages = append(areq.Messages, anthropicMessage(m))
	}
	areq.System = strings.Join(system, "\n\n")
	if len(areq.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	payload, err := json.Marshal(areq)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	header := http.Header{}
	header.Set("X-API-Key", c.apiKey)
	header.Set("Anthropic-Version", anthropicAPIVersion)

	var aresp anthropicResponse
	reqID, err := c.postJSON(ctx, c.baseURL+"/v1/messages", header, payload, &aresp)
	if err != nil {
		return nil, err
	}
	var text strings.Builder
	for _, block := range aresp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return &GenerateResponse{
		ID:      aresp.ID,
		Choices: []Choice{{Message: Message{Role: RoleAssistant, Content: text.String()}}},
		Usage: Usage{
			PromptTokens:     aresp.Usage.InputTokens,
			CompletionTokens: aresp.Usage.OutputTokens,
			TotalTokens:      aresp.Usage.InputTokens + aresp.Usage.OutputTokens,
		},
		RequestID: reqID,
	}, nil
}
