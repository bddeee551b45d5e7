// Package decagon wraps the Decagon conversational API: conversations,
// messages and bot analytics.
package decagon

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/finvisor/finvisor/pkg/provider/httpjson"
)

const DefaultBaseURL = "https://api.decagon.ai/v1"

type Conversation struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Status string `json:"status"`
}

type Message struct {
	ID      string `json:"id"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

type Intent struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Entities   []struct {
		Name       string  `json:"name"`
		Value      string  `json:"value"`
		Confidence float64 `json:"confidence"`
	} `json:"entities,omitempty"`
}

type SuggestedAction struct {
	Label  string `json:"label"`
	Action string `json:"action"`
}

// Reply is the bot's answer to a sent message.
type Reply struct {
	Message          Message           `json:"message"`
	Intent           Intent            `json:"intent"`
	SuggestedActions []SuggestedAction `json:"suggested_actions"`
}

type Analytics struct {
	TotalConversations    int           `json:"totalConversations"`
	ResolvedCount         int           `json:"resolvedCount"`
	EscalatedCount        int           `json:"escalatedCount"`
	AverageResolutionTime float64       `json:"averageResolutionTime"`
	TopIntents            []IntentCount `json:"topIntents"`
	SatisfactionScore     float64       `json:"satisfactionScore"`
}

type IntentCount struct {
	Intent string `json:"intent"`
	Count  int    `json:"count"`
}

type settings struct {
	Tone           string `json:"tone"`
	Language       string `json:"language"`
	IncludeSources bool   `json:"include_sources"`
	EnableHandoff  bool   `json:"enable_handoff"`
}

type startRequest struct {
	BotID    string         `json:"bot_id"`
	UserID   string         `json:"user_id"`
	Context  map[string]any `json:"context,omitempty"`
	Settings settings       `json:"settings"`
}

type sendRequest struct {
	Content string         `json:"content"`
	Context map[string]any `json:"context,omitempty"`
}

type Client struct {
	base  httpjson.Base
	key   *httpjson.Key
	botID string
}

func NewClient(key *httpjson.Key, botID string, opts ...httpjson.Option) *Client {
	return &Client{
		base:  httpjson.NewBase("decagon", DefaultBaseURL, opts...),
		key:   key,
		botID: botID,
	}
}

func (c *Client) auth(ctx context.Context) (http.Header, error) {
	apiKey, err := c.key.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("decagon: %w", err)
	}
	return httpjson.Bearer(apiKey), nil
}

// StartConversation opens a conversation for userID with the empathetic
// advisor settings.
func (c *Client) StartConversation(ctx context.Context, userID string, initial map[string]any) (*Conversation, error) {
	header, err := c.auth(ctx)
	if err != nil {
		return nil, err
	}

	body := startRequest{
		BotID:   c.botID,
		UserID:  userID,
		Context: initial,
		Settings: settings{
			Tone:           "empathetic",
			Language:       "en",
			IncludeSources: true,
			EnableHandoff:  true,
		},
	}

	var conv Conversation
	if err := c.base.DoJSON(ctx, http.MethodPost, "conversations", header, body, &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

// SendMessage posts content to a conversation and returns the bot's reply.
func (c *Client) SendMessage(ctx context.Context, conversationID, content string) (*Reply, error) {
	header, err := c.auth(ctx)
	if err != nil {
		return nil, err
	}

	var reply Reply
	path := "conversations/" + url.PathEscape(conversationID) + "/messages"
	if err := c.base.DoJSON(ctx, http.MethodPost, path, header, sendRequest{Content: content}, &reply); err != nil {
		return nil, err
	}
	return &reply, nil
}

// Analytics returns bot conversation statistics for [start, end].
func (c *Client) Analytics(ctx context.Context, start, end string) (*Analytics, error) {
	header, err := c.auth(ctx)
	if err != nil {
		return nil, err
	}

	q := url.Values{}
	q.Set("bot_id", c.botID)
	q.Set("start", start)
	q.Set("end", end)

	var out Analytics
	if err := c.base.DoJSON(ctx, http.MethodGet, "analytics?"+q.Encode(), header, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
