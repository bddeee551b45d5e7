// Package anthropic is a focused client for the Messages API, including
// extended thinking.
package anthropic

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/provider/httpjson"
)

const (
	DefaultBaseURL = "https://api.anthropic.com/v1"
	DefaultModel   = "claude-sonnet-4-20250514"
	apiVersion     = "2023-06-01"
	defaultMax     = 1024
)

type messagesRequest struct {
	Model       string    `json:"model"`
	MaxTokens   int       `json:"max_tokens"`
	System      string    `json:"system,omitempty"`
	Messages    []message `json:"messages"`
	Temperature *float64  `json:"temperature,omitempty"`
	Thinking    *thinking `json:"thinking,omitempty"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type thinking struct {
	Type         string `json:"type"`
	BudgetTokens int    `json:"budget_tokens"`
}

type messagesResponse struct {
	Model   string `json:"model"`
	Content []struct {
		Type     string `json:"type"`
		Text     string `json:"text"`
		Thinking string `json:"thinking"`
	} `json:"content"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// Client implements llm.Completer against Anthropic.
type Client struct {
	base httpjson.Base
	key  *httpjson.Key
}

var _ llm.Completer = (*Client)(nil)

func NewClient(key *httpjson.Key, opts ...httpjson.Option) *Client {
	return &Client{
		base: httpjson.NewBase("anthropic", DefaultBaseURL, opts...),
		key:  key,
	}
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	apiKey, err := c.key.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}

	body := messagesRequest{
		Model:       req.Model,
		MaxTokens:   req.Options.MaxTokens,
		System:      req.System,
		Temperature: req.Options.Temperature,
	}
	if body.Model == "" {
		body.Model = DefaultModel
	}
	if body.MaxTokens == 0 {
		body.MaxTokens = defaultMax
	}
	if req.Options.ThinkingBudget > 0 {
		body.Thinking = &thinking{Type: "enabled", BudgetTokens: req.Options.ThinkingBudget}
	}

	for _, m := range req.Messages {
		// The Messages API takes the system prompt out of band.
		if m.Role == llm.RoleSystem {
			if body.System == "" {
				body.System = m.Content
			}
			continue
		}
		body.Messages = append(body.Messages, message{Role: m.Role, Content: m.Content})
	}

	header := http.Header{}
	header.Set("x-api-key", apiKey)
	header.Set("anthropic-version", apiVersion)

	var payload messagesResponse
	if err := c.base.DoJSON(ctx, http.MethodPost, "messages", header, body, &payload); err != nil {
		return nil, err
	}

	var text, thought strings.Builder
	for _, block := range payload.Content {
		switch block.Type {
		case "text":
			text.WriteString(block.Text)
		case "thinking":
			thought.WriteString(block.Thinking)
		}
	}
	if text.Len() == 0 && thought.Len() == 0 {
		return nil, fmt.Errorf("anthropic: %w", llm.ErrEmptyResponse)
	}

	return &llm.Response{
		Model:    payload.Model,
		Content:  text.String(),
		Thinking: thought.String(),
		Usage: llm.Usage{
			PromptTokens:     payload.Usage.InputTokens,
			CompletionTokens: payload.Usage.OutputTokens,
		},
	}, nil
}
