// Package perplexity calls the Perplexity chat completions endpoint with
// citations enabled.
package perplexity

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/provider/httpjson"
)

const (
	DefaultBaseURL = "https://api.perplexity.ai"
	Model          = "sonar-pro"
)

// Query is one research question.
type Query struct {
	System       string
	Prompt       string
	Temperature  float64
	MaxTokens    int
	DomainFilter []string
}

// Citation is a source returned alongside an answer.
type Citation struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// Answer is the model text plus its citations.
type Answer struct {
	Content   string
	Citations []Citation
}

type request struct {
	Model              string        `json:"model"`
	Messages           []llm.Message `json:"messages"`
	Temperature        float64       `json:"temperature"`
	MaxTokens          int           `json:"max_tokens,omitempty"`
	ReturnCitations    bool          `json:"return_citations"`
	SearchDomainFilter []string      `json:"search_domain_filter,omitempty"`
}

type response struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Citations []json.RawMessage `json:"citations"`
}

type Client struct {
	base httpjson.Base
	key  *httpjson.Key
}

func NewClient(key *httpjson.Key, opts ...httpjson.Option) *Client {
	return &Client{
		base: httpjson.NewBase("perplexity", DefaultBaseURL, opts...),
		key:  key,
	}
}

// Ask runs q and returns the first choice with its citations.
func (c *Client) Ask(ctx context.Context, q Query) (*Answer, error) {
	apiKey, err := c.key.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("perplexity: %w", err)
	}

	body := request{
		Model:              Model,
		Temperature:        q.Temperature,
		MaxTokens:          q.MaxTokens,
		ReturnCitations:    true,
		SearchDomainFilter: q.DomainFilter,
	}
	if q.System != "" {
		body.Messages = append(body.Messages, llm.Message{Role: llm.RoleSystem, Content: q.System})
	}
	body.Messages = append(body.Messages, llm.Message{Role: llm.RoleUser, Content: q.Prompt})

	var payload response
	if err := c.base.DoJSON(ctx, http.MethodPost, "chat/completions", httpjson.Bearer(apiKey), body, &payload); err != nil {
		return nil, err
	}

	answer := &Answer{Citations: decodeCitations(payload.Citations)}
	if len(payload.Choices) > 0 {
		answer.Content = payload.Choices[0].Message.Content
	}
	return answer, nil
}

// decodeCitations accepts both bare URL strings and {url,title} objects.
// Missing titles become "Source <n>".
func decodeCitations(raw []json.RawMessage) []Citation {
	out := make([]Citation, 0, len(raw))
	for i, r := range raw {
		var c Citation
		var url string
		if err := json.Unmarshal(r, &url); err == nil {
			c.URL = url
		} else if err := json.Unmarshal(r, &c); err != nil {
			continue
		}
		if c.Title == "" {
			c.Title = fmt.Sprintf("Source %d", i+1)
		}
		out = append(out, c)
	}
	return out
}

// Confidence is 0.9 for a cited answer and 0.6 otherwise.
func (a *Answer) Confidence() float64 {
	if len(a.Citations) > 0 {
		return 0.9
	}
	return 0.6
}

// URLs lists the citation URLs.
func (a *Answer) URLs() []string {
	urls := make([]string, 0, len(a.Citations))
	for _, c := range a.Citations {
		urls = append(urls, c.URL)
	}
	return urls
}
