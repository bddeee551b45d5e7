// Package browserbase drives hosted browser sessions: it creates a session
// over the REST API and runs a step plan against it over CDP.
package browserbase

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/finvisor/finvisor/pkg/provider/httpjson"
)

const (
	DefaultBaseURL = "https://api.browserbase.com/v1"

	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"
)

// Session is a hosted browser. ConnectURL is the CDP websocket endpoint.
type Session struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	CreatedAt  string `json:"createdAt"`
	ProjectID  string `json:"projectId"`
	ConnectURL string `json:"connectUrl"`
}

// SubmissionStatus is the caller-facing view of a session's status.
type SubmissionStatus struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

// StatusOf maps a session status to a submission status.
func StatusOf(s *Session) SubmissionStatus {
	switch s.Status {
	case "completed":
		return SubmissionStatus{Status: "confirmed", Message: "Submission completed successfully"}
	case "failed":
		return SubmissionStatus{Status: "error", Message: "Submission failed"}
	default:
		return SubmissionStatus{Status: "pending", Message: "Submission in progress"}
	}
}

type Client struct {
	base      httpjson.Base
	key       *httpjson.Key
	projectID string
}

func NewClient(key *httpjson.Key, projectID string, opts ...httpjson.Option) *Client {
	return &Client{
		base:      httpjson.NewBase("browserbase", DefaultBaseURL, opts...),
		key:       key,
		projectID: projectID,
	}
}

func (c *Client) header(ctx context.Context) (http.Header, error) {
	token, err := c.key.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("browserbase: %w", err)
	}
	return httpjson.Bearer(token), nil
}

// CreateSession starts a 1280x720 browser session in the configured project.
func (c *Client) CreateSession(ctx context.Context) (*Session, error) {
	header, err := c.header(ctx)
	if err != nil {
		return nil, err
	}

	body := map[string]any{
		"projectId": c.projectID,
		"browserSettings": map[string]any{
			"viewport":  map[string]int{"width": 1280, "height": 720},
			"userAgent": userAgent,
		},
	}

	var s Session
	if err := c.base.DoJSON(ctx, http.MethodPost, "sessions", header, body, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (c *Client) Session(ctx context.Context, id string) (*Session, error) {
	header, err := c.header(ctx)
	if err != nil {
		return nil, err
	}

	var s Session
	if err := c.base.DoJSON(ctx, http.MethodGet, "sessions/"+url.PathEscape(id), header, nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
