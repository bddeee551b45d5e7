package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/advisor"
	"github.com/finvisor/finvisor/pkg/analytics"
	"github.com/finvisor/finvisor/pkg/appeal"
	"github.com/finvisor/finvisor/pkg/chat"
	"github.com/finvisor/finvisor/pkg/documents"
	"github.com/finvisor/finvisor/pkg/ledger"
	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/merkle"
	"github.com/finvisor/finvisor/pkg/payment"
	"github.com/finvisor/finvisor/pkg/research"
	"github.com/finvisor/finvisor/pkg/sealed"
	"github.com/finvisor/finvisor/pkg/strategy"
	"github.com/finvisor/finvisor/pkg/submit"
	"github.com/finvisor/finvisor/pkg/wizard"
)

// testServices wires every service without providers except the given
// completers, which may be nil.
func testServices(t *testing.T, chatModel, writer llm.Completer) Services {
	t.Helper()
	logger := zap.NewNop()

	recorder := ledger.NewRecorder(merkle.NewMemoryStorer(), logger)
	sealer, err := sealed.New("test passphrase")
	require.NoError(t, err)
	scripts := wizard.MustLoad()

	return Services{
		Chat:      chat.NewService(chatModel, nil, recorder, logger),
		Documents: documents.NewService(chatModel, nil, logger),
		Strategy:  strategy.NewService(writer, writer, nil, logger),
		Research:  research.NewService(nil, logger),
		Appeal:    appeal.NewService(writer, nil, logger),
		Submit:    submit.NewService(nil, nil, sealer, recorder, logger),
		Payment:   payment.NewService(nil, logger),
		Advisor:   advisor.Demo{},
		Analytics: analytics.NewService(nil, nil, nil, logger),
		Ledger:    recorder,
		Sessions:  wizard.NewStore(scripts, recorder, wizard.DefaultSessionTTL, logger),
		Scripts:   scripts,
	}
}

func testServer(t *testing.T, svc Services) *Server {
	t.Helper()
	return New(Config{ListenAddr: ":0", WordPause: -1, Sleeper: wizard.NoSleep}, svc, zap.NewNop())
}

func do(t *testing.T, s *Server, method, target, body string) (*http.Response, []byte) {
	t.Helper()

	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func envelope(t *testing.T, raw []byte) Envelope {
	t.Helper()
	var env Envelope
	require.NoError(t, json.Unmarshal(raw, &env), string(raw))
	return env
}

func TestHealthEndpoint(t *testing.T) {
	s := testServer(t, testServices(t, nil, nil))

	resp, body := do(t, s, "GET", "/health", "")
	assert.Equal(t, 200, resp.StatusCode)

	var result map[string]string
	require.NoError(t, json.Unmarshal(body, &result))
	assert.Equal(t, "ok", result["status"])
	assert.NotEmpty(t, resp.Header.Get(HeaderCorrelationID))
}

func TestCorrelationIDIsEchoed(t *testing.T) {
	s := testServer(t, testServices(t, nil, nil))

	req := httptest.NewRequest("GET", "/health", nil)
	req.Header.Set(HeaderCorrelationID, "corr-123")
	resp, err := s.App().Test(req)
	require.NoError(t, err)
	assert.Equal(t, "corr-123", resp.Header.Get(HeaderCorrelationID))
}

func TestRequiredFieldsMissing(t *testing.T) {
	s := testServer(t, testServices(t, nil, nil))

	cases := []struct {
		method, target, body, want string
	}{
		{"POST", "/api/chat", `{"messages":[]}`, "Messages are required"},
		{"GET", "/api/chat", "", "Conversation ID required"},
		{"POST", "/api/documents", `{"documents":[]}`, "Documents are required"},
		{"POST", "/api/strategy", `{}`, "Student profile with school is required"},
		{"POST", "/api/research", `{}`, "Queries or school required"},
		{"POST", "/api/research", `{"type":"policy","school":"Yale"}`, "School and topic required for policy research"},
		{"POST", "/api/research", `{"type":"comparison"}`, "School required for comparison"},
		{"POST", "/api/research", `{"type":"fact_check"}`, "Claim required for fact checking"},
		{"GET", "/api/research", "", "Query parameter required"},
		{"POST", "/api/appeal", `{"studentProfile":{"school":"Yale"}}`, "Student profile with name and school required"},
		{"PUT", "/api/appeal", `{}`, "Student profile with name and school required"},
		{"POST", "/api/submit", `{"portalUrl":"https://x.edu"}`, "Portal URL, credentials, and appeal letter required"},
		{"GET", "/api/submit", "", "Session ID required"},
		{"POST", "/api/payment", `{"userId":"u1"}`, "User ID and service required"},
		{"POST", "/api/payment", `{"userId":"u1","service":"gold"}`, "Invalid service type"},
		{"GET", "/api/payment", "", "Payment ID required"},
		{"POST", "/api/chat", `not json`, "Invalid request body"},
	}

	for _, tc := range cases {
		t.Run(tc.method+" "+tc.target+" "+tc.want, func(t *testing.T) {
			resp, body := do(t, s, tc.method, tc.target, tc.body)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

			env := envelope(t, body)
			assert.False(t, env.Success)
			assert.Equal(t, tc.want, env.Error)
		})
	}
}

func TestUnconfiguredProviders(t *testing.T) {
	s := testServer(t, testServices(t, nil, nil))
	profile := `{"studentProfile":{"name":"Sarah Chen","school":"Stanford University"}}`

	cases := []struct {
		method, target, body, want string
	}{
		{"POST", "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`, "OpenAI not configured"},
		{"PUT", "/api/documents", `{"documents":[]}`, "Modal not configured"},
		{"POST", "/api/strategy", profile, "Anthropic not configured"},
		{"POST", "/api/appeal", profile, "Anthropic not configured"},
		{"POST", "/api/research", `{"queries":["q"]}`, "Perplexity not configured"},
		{"GET", "/api/research?query=q", "", "Perplexity not configured"},
		{"POST", "/api/payment", `{"userId":"u1","service":"pro_appeal"}`, "Fetch.ai not configured"},
		{"POST", "/api/submit", `{"portalUrl":"https://x.edu","credentials":{"username":"u","password":"p"},"appealData":{"letterContent":"Dear"}}`, "Browserbase not configured"},
	}

	for _, tc := range cases {
		t.Run(tc.target+" "+tc.want, func(t *testing.T) {
			resp, body := do(t, s, tc.method, tc.target, tc.body)
			assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

			env := envelope(t, body)
			assert.False(t, env.Success)
			assert.Equal(t, tc.want, env.Error)
		})
	}
}

func TestProviderFailure(t *testing.T) {
	failing := llm.CompleterFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return nil, errors.New("connection reset")
	})
	s := testServer(t, testServices(t, failing, failing))

	resp, body := do(t, s, "POST", "/api/chat", `{"messages":[{"role":"user","content":"hi"}]}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	env := envelope(t, body)
	assert.False(t, env.Success)
	assert.Equal(t, "Chat completion failed", env.Error)

	resp, body = do(t, s, "POST", "/api/appeal", `{"studentProfile":{"name":"Sarah Chen","school":"Stanford"}}`)
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.NotEmpty(t, envelope(t, body).Error)
}

func TestChatRecordsConversation(t *testing.T) {
	model := llm.CompleterFunc(func(_ context.Context, req llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "Great choice!", Usage: llm.Usage{TotalTokens: 12}}, nil
	})
	s := testServer(t, testServices(t, model, nil))

	resp, body := do(t, s, "POST", "/api/chat", `{"messages":[{"role":"user","content":"Stanford University"}]}`)
	require.Equal(t, 200, resp.StatusCode, string(body))

	var env struct {
		Success bool       `json:"success"`
		Data    chat.Reply `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	assert.True(t, env.Success)
	assert.Equal(t, "Great choice!", env.Data.Content)
	assert.Equal(t, "openai", env.Data.Provider)
	require.NotEmpty(t, env.Data.ConversationID)

	resp, body = do(t, s, "GET", "/api/chat?conversationId="+env.Data.ConversationID, "")
	require.Equal(t, 200, resp.StatusCode)

	var history struct {
		Data struct {
			ConversationID string        `json:"conversationId"`
			Messages       []llm.Message `json:"messages"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &history))
	require.Len(t, history.Data.Messages, 2)
	assert.Equal(t, "Stanford University", history.Data.Messages[0].Content)
	assert.Equal(t, "Great choice!", history.Data.Messages[1].Content)

	// unknown conversations read as empty
	_, body = do(t, s, "GET", "/api/chat?conversationId=unknown", "")
	require.NoError(t, json.Unmarshal(body, &history))
	assert.Empty(t, history.Data.Messages)
}

func TestAppealStream(t *testing.T) {
	writer := llm.CompleterFunc(func(context.Context, llm.Request) (*llm.Response, error) {
		return &llm.Response{Content: "Dear Committee, please reconsider."}, nil
	})
	s := testServer(t, testServices(t, nil, writer))

	resp, body := do(t, s, "PUT", "/api/appeal", `{"studentProfile":{"name":"Sarah Chen","school":"Stanford"}}`)
	require.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "text/plain; charset=utf-8", resp.Header.Get("Content-Type"))
	assert.Equal(t, "Dear Committee, please reconsider. ", string(body))
}

func TestAnalyticsWithoutProviders(t *testing.T) {
	s := testServer(t, testServices(t, nil, nil))

	resp, body := do(t, s, "GET", "/api/analytics", "")
	require.Equal(t, 200, resp.StatusCode)

	var env struct {
		Success  bool               `json:"success"`
		Data     analytics.Report   `json:"data"`
		Metadata analytics.Metadata `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	assert.True(t, env.Success)
	assert.Nil(t, env.Data.Payments)
	assert.Nil(t, env.Data.Infrastructure)
	assert.Nil(t, env.Data.Conversations)
	assert.Equal(t, 68.0, env.Data.Overview.SuccessRate)
	assert.Equal(t, "inactive", env.Data.Sponsors["modal"].Status)
	assert.NotEmpty(t, env.Metadata.TimeRange.Start)

	resp, _ = do(t, s, "HEAD", "/api/analytics", "")
	assert.Equal(t, 200, resp.StatusCode)
	assert.Equal(t, "healthy", resp.Header.Get("X-Status"))
	assert.Equal(t, analytics.Version, resp.Header.Get("X-Version"))
}

func TestZoomDemo(t *testing.T) {
	s := testServer(t, testServices(t, nil, nil))

	resp, body := do(t, s, "POST", "/api/zoom", `{broken`)
	require.Equal(t, 200, resp.StatusCode)
	var sched struct {
		Data advisor.Session `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &sched))
	assert.Equal(t, "demo-12345", sched.Data.MeetingID)
	assert.Equal(t, advisor.DefaultTopic, sched.Data.Topic)
	assert.Equal(t, advisor.DefaultDuration, sched.Data.Duration)

	resp, body = do(t, s, "PUT", "/api/zoom", `{"transcript":"héllo"}`)
	require.Equal(t, 200, resp.StatusCode)
	var insights struct {
		Data advisor.Insights `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &insights))
	assert.Equal(t, 5, insights.Data.TranscriptLength)
	assert.Len(t, insights.Data.Insights, 2)

	resp, body = do(t, s, "PUT", "/api/zoom", `{not json`)
	require.Equal(t, 200, resp.StatusCode, string(body))
	require.NoError(t, json.Unmarshal(body, &insights))
	assert.Equal(t, 0, insights.Data.TranscriptLength)

	resp, body = do(t, s, "PATCH", "/api/zoom", `{"event":"meeting.started"}`)
	require.Equal(t, 200, resp.StatusCode)
	assert.JSONEq(t, `{"success":true,"received":"demo.webhook"}`, string(body))
}

func TestSubmitDryRun(t *testing.T) {
	s := testServer(t, testServices(t, nil, nil))

	resp, body := do(t, s, "POST", "/api/submit", `{
		"portalUrl":"https://financialaid.stanford.edu/portal",
		"credentials":{"username":"sarah","password":"secret"},
		"appealData":{"letterContent":"Dear Committee"},
		"options":{"dryRun":true}}`)
	require.Equal(t, 200, resp.StatusCode)

	var env struct {
		Data submit.DryRun `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	assert.Equal(t, submit.ModeDryRun, env.Data.Mode)
	assert.Equal(t, "stanford", env.Data.PortalType)
	assert.Positive(t, env.Data.EstimatedSteps)
	assert.NotContains(t, string(body), "secret")
}

func TestPaymentPricing(t *testing.T) {
	s := testServer(t, testServices(t, nil, nil))

	resp, body := do(t, s, "GET", "/api/payment?action=pricing", "")
	require.Equal(t, 200, resp.StatusCode)

	var env struct {
		Data payment.Pricing `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	require.Len(t, env.Data.Services, 3)
	assert.Equal(t, "basic_appeal", env.Data.Services[0].ID)
}

func TestBodyLimit(t *testing.T) {
	svc := testServices(t, nil, nil)
	s := New(Config{BodyLimit: 256, WordPause: -1}, svc, zap.NewNop())

	small := `{"messages":[]}`
	resp, _ := do(t, s, "POST", "/api/chat", small)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	large := `{"messages":[{"role":"user","content":"` + strings.Repeat("a", 1024) + `"}]}`
	resp, _ = do(t, s, "POST", "/api/chat", large)
	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	svc := testServices(t, nil, nil)
	s := New(Config{RequestsPerSecond: 0.001, Burst: 1}, svc, zap.NewNop())

	resp, _ := do(t, s, "GET", "/api/wizard/steps", "")
	assert.Equal(t, 200, resp.StatusCode)

	resp, body := do(t, s, "GET", "/api/wizard/steps", "")
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.Equal(t, "Too many requests", envelope(t, body).Error)

	// outside /api is never limited
	resp, _ = do(t, s, "GET", "/health", "")
	assert.Equal(t, 200, resp.StatusCode)
}
