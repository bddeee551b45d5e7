// Package openai is a focused client for the Chat Completions endpoint,
// covering plain chat, JSON mode and image inputs.
package openai

import (
	"context"
	"fmt"
	"net/http"

	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/provider/httpjson"
)

const (
	DefaultBaseURL = "https://api.openai.com/v1"
	DefaultModel   = "gpt-4-turbo-preview"
)

// chatRequest is the minimal request shape for the Chat Completions endpoint.
type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    *float64        `json:"temperature,omitempty"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

// chatMessage carries either a plain string or a list of content parts.
type chatMessage struct {
	Role    string `json:"role"`
	Content any    `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type responseFormat struct {
	Type string `json:"type"`
}

// chatResponse is the minimal response shape returned by the Chat Completions endpoint.
type chatResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

// Client implements llm.Completer against OpenAI.
type Client struct {
	base httpjson.Base
	key  *httpjson.Key
}

var _ llm.Completer = (*Client)(nil)

func NewClient(key *httpjson.Key, opts ...httpjson.Option) *Client {
	return &Client{
		base: httpjson.NewBase("openai", DefaultBaseURL, opts...),
		key:  key,
	}
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	apiKey, err := c.key.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	body := chatRequest{
		Model:       model,
		Messages:    toChatMessages(req),
		Temperature: req.Options.Temperature,
		MaxTokens:   req.Options.MaxTokens,
	}
	if req.Options.JSONMode {
		body.ResponseFormat = &responseFormat{Type: "json_object"}
	}

	var payload chatResponse
	if err := c.base.DoJSON(ctx, http.MethodPost, "chat/completions", httpjson.Bearer(apiKey), body, &payload); err != nil {
		return nil, err
	}
	if len(payload.Choices) == 0 {
		return nil, fmt.Errorf("openai: %w", llm.ErrEmptyResponse)
	}

	return &llm.Response{
		Model:   payload.Model,
		Content: payload.Choices[0].Message.Content,
		Usage: llm.Usage{
			PromptTokens:     payload.Usage.PromptTokens,
			CompletionTokens: payload.Usage.CompletionTokens,
			TotalTokens:      payload.Usage.TotalTokens,
		},
	}, nil
}

func toChatMessages(req llm.Request) []chatMessage {
	msgs := make([]chatMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		msgs = append(msgs, chatMessage{Role: llm.RoleSystem, Content: req.System})
	}

	for _, m := range req.Messages {
		if len(m.Images) == 0 {
			msgs = append(msgs, chatMessage{Role: m.Role, Content: m.Content})
			continue
		}

		parts := make([]contentPart, 0, len(m.Images)+1)
		for _, img := range m.Images {
			parts = append(parts, contentPart{Type: "image_url", ImageURL: &imageURL{URL: img}})
		}
		if m.Content != "" {
			parts = append(parts, contentPart{Type: "text", Text: m.Content})
		}
		msgs = append(msgs, chatMessage{Role: m.Role, Content: parts})
	}
	return msgs
}
