// Package gemini adapts the Google Gen AI SDK to llm.Completer. It runs the
// strategy analysis and its extended reasoning when Anthropic is not configured.
package gemini

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"google.golang.org/genai"

	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/provider/httpjson"
)

const DefaultModel = "gemini-2.5-flash"

// Client creates the SDK client on first use, once the key is resolved. A
// failed attempt is retried on the next call.
type Client struct {
	key     *httpjson.Key
	baseURL string

	mu     sync.Mutex
	client *genai.Client
}

var _ llm.Completer = (*Client)(nil)

// NewClient returns a Client. baseURL may be empty for the public endpoint.
func NewClient(key *httpjson.Key, baseURL string) *Client {
	return &Client{key: key, baseURL: strings.TrimSpace(baseURL)}
}

func (c *Client) sdk(ctx context.Context) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return c.client, nil
	}

	apiKey, err := c.key.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}

	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}

	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("gemini: create client: %w", err)
	}
	c.client = client
	return client, nil
}

func (c *Client) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	client, err := c.sdk(ctx)
	if err != nil {
		return nil, err
	}

	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	config := &genai.GenerateContentConfig{}
	if req.System != "" {
		config.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	if req.Options.Temperature != nil {
		t := float32(*req.Options.Temperature)
		config.Temperature = &t
	}
	if req.Options.MaxTokens > 0 {
		config.MaxOutputTokens = int32(req.Options.MaxTokens)
	}
	if req.Options.JSONMode {
		config.ResponseMIMEType = "application/json"
	}
	if req.Options.ThinkingBudget > 0 {
		budget := int32(req.Options.ThinkingBudget)
		config.ThinkingConfig = &genai.ThinkingConfig{
			IncludeThoughts: true,
			ThinkingBudget:  &budget,
		}
	}

	contents := make([]*genai.Content, 0, len(req.Messages))
	for _, m := range req.Messages {
		switch m.Role {
		case llm.RoleSystem:
			if config.SystemInstruction == nil {
				config.SystemInstruction = genai.NewContentFromText(m.Content, genai.RoleUser)
			}
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}

	resp, err := client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return nil, fmt.Errorf("gemini: generate content: %w", err)
	}

	out := &llm.Response{Model: model}
	var text, thought strings.Builder
	if len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part == nil {
				continue
			}
			if part.Thought {
				thought.WriteString(part.Text)
			} else {
				text.WriteString(part.Text)
			}
		}
	}
	out.Content = text.String()
	out.Thinking = thought.String()
	if out.Content == "" && out.Thinking == "" {
		return nil, fmt.Errorf("gemini: %w", llm.ErrEmptyResponse)
	}

	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}
