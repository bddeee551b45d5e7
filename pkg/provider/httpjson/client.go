// Package httpjson is the small JSON-over-HTTP core shared by the provider
// clients: base URL handling, bounded body reads, status errors and lazy API
// key resolution.
package httpjson

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	maxErrorBody   = 4096
	maxSuccessBody = 1 << 20
)

// StatusError captures non-2xx upstream responses with status-aware context.
type StatusError struct {
	Provider   string
	StatusCode int
	URL        string
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d from %s: %s", e.Provider, e.StatusCode, e.URL, e.Body)
}

func (e *StatusError) HTTPStatusCode() int {
	return e.StatusCode
}

// Base holds what every provider client needs to issue JSON requests.
type Base struct {
	Provider   string
	BaseURL    string
	HTTPClient *http.Client
}

type Option func(*Base)

func WithBaseURL(baseURL string) Option {
	return func(b *Base) {
		b.BaseURL = strings.TrimSpace(baseURL)
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(b *Base) {
		b.HTTPClient = httpClient
	}
}

// WithTimeout replaces the HTTP client with one using the given timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Base) {
		b.HTTPClient = &http.Client{Timeout: d}
	}
}

// NewBase builds a Base for provider with defaultURL, then applies opts.
func NewBase(provider, defaultURL string, opts ...Option) Base {
	b := Base{
		Provider:   provider,
		BaseURL:    defaultURL,
		HTTPClient: &http.Client{Timeout: 60 * time.Second},
	}
	for _, opt := range opts {
		opt(&b)
	}
	return b
}

// URL joins path onto the base URL.
func (b Base) URL(path string) string {
	return strings.TrimRight(b.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

func (b Base) client() *http.Client {
	if b.HTTPClient != nil {
		return b.HTTPClient
	}
	return &http.Client{Timeout: 60 * time.Second}
}

// DoJSON sends in (if non-nil) as a JSON body and decodes the response into
// out (if non-nil). Non-2xx responses come back as *StatusError.
func (b Base) DoJSON(ctx context.Context, method, path string, header http.Header, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("%s: marshal request: %w", b.Provider, err)
		}
		body = bytes.NewReader(raw)
	}

	url := b.URL(path)
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("%s: create request: %w", b.Provider, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	raw, err := b.do(req, url)
	if err != nil {
		return err
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s: decode response: %w", b.Provider, err)
	}
	return nil
}

func (b Base) do(req *http.Request, url string) ([]byte, error) {
	res, err := b.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: request failed: %w", b.Provider, err)
	}
	defer func() { _ = res.Body.Close() }()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		buf, _ := io.ReadAll(io.LimitReader(res.Body, maxErrorBody))
		return nil, &StatusError{
			Provider:   b.Provider,
			StatusCode: res.StatusCode,
			URL:        url,
			Body:       string(buf),
		}
	}

	buf, err := io.ReadAll(io.LimitReader(res.Body, maxSuccessBody))
	if err != nil {
		return nil, fmt.Errorf("%s: read response body: %w", b.Provider, err)
	}
	return buf, nil
}

// Bearer returns an Authorization header for token.
func Bearer(token string) http.Header {
	return http.Header{"Authorization": []string{"Bearer " + token}}
}
