package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/provider/httpjson"
)

func TestComplete(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"model":"gpt-4-turbo-preview","choices":[{"message":{"role":"assistant","content":"Hey! I'm Finnie"}}],"usage":{"total_tokens":42}}`))
	}))
	defer srv.Close()

	c := NewClient(httpjson.StaticKey("sk-test"), httpjson.WithBaseURL(srv.URL+"/v1"))
	resp, err := c.Complete(context.Background(), llm.Request{
		System:   "You are Finnie",
		Messages: []llm.Message{{Role: "user", Content: "hi"}},
		Options:  llm.Options{Temperature: llm.Temperature(0.7), MaxTokens: 1000},
	})
	require.NoError(t, err)

	assert.Equal(t, "Hey! I'm Finnie", resp.Content)
	assert.Equal(t, 42, resp.Usage.Total())

	assert.Equal(t, DefaultModel, got["model"])
	assert.Equal(t, 0.7, got["temperature"])
	assert.Equal(t, float64(1000), got["max_tokens"])
	msgs := got["messages"].([]any)
	require.Len(t, msgs, 2)
	assert.Equal(t, "system", msgs[0].(map[string]any)["role"])
	assert.Nil(t, got["response_format"])
}

func TestCompleteVisionJSONMode(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"content":"{\"fields\":[]}"}}]}`))
	}))
	defer srv.Close()

	c := NewClient(httpjson.StaticKey("sk"), httpjson.WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), llm.Request{
		Messages: []llm.Message{{Role: "user", Content: "Parse this w2", Images: []string{"data:image/jpeg;base64,AAA"}}},
		Options:  llm.Options{JSONMode: true},
	})
	require.NoError(t, err)

	assert.Equal(t, map[string]any{"type": "json_object"}, got["response_format"])
	parts := got["messages"].([]any)[0].(map[string]any)["content"].([]any)
	require.Len(t, parts, 2)
	assert.Equal(t, "image_url", parts[0].(map[string]any)["type"])
	assert.Equal(t, "text", parts[1].(map[string]any)["type"])
}

func TestCompleteErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(httpjson.StaticKey("sk"), httpjson.WithBaseURL(srv.URL))
	_, err := c.Complete(context.Background(), llm.Request{Messages: []llm.Message{{Role: "user", Content: "x"}}})
	var se *httpjson.StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusTooManyRequests, se.StatusCode)

	_, err = NewClient(httpjson.StaticKey("")).Complete(context.Background(), llm.Request{})
	assert.ErrorContains(t, err, "api key is empty")
}
