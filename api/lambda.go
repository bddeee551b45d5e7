package api

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-lambda-go/events"
	"github.com/gofiber/adaptor/v2"
	"github.com/gofiber/fiber/v2"
)

// LambdaHandler serves API Gateway proxy events with the same Fiber app the
// standalone server runs. Streamed responses are buffered whole, since a
// proxy integration returns one body.
type LambdaHandler struct {
	handler http.Handler
}

func NewLambdaHandler(app *fiber.App) *LambdaHandler {
	return &LambdaHandler{handler: adaptor.FiberApp(app)}
}

func (h *LambdaHandler) Handle(ctx context.Context, ev events.APIGatewayProxyRequest) (events.APIGatewayProxyResponse, error) {
	body := ev.Body
	if ev.IsBase64Encoded {
		raw, err := base64.StdEncoding.DecodeString(body)
		if err != nil {
			return events.APIGatewayProxyResponse{
				StatusCode: http.StatusBadRequest,
				Headers:    map[string]string{"Content-Type": "application/json"},
				Body:       `{"success":false,"error":"Invalid request body"}`,
			}, nil
		}
		body = string(raw)
	}

	req, err := http.NewRequestWithContext(ctx, ev.HTTPMethod, requestURL(ev), strings.NewReader(body))
	if err != nil {
		return events.APIGatewayProxyResponse{}, err
	}
	for k, vs := range ev.MultiValueHeaders {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	for k, v := range ev.Headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	if ip := ev.RequestContext.Identity.SourceIP; ip != "" {
		req.RemoteAddr = ip + ":0"
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	resp := events.APIGatewayProxyResponse{
		StatusCode:        rec.Code,
		Headers:           make(map[string]string, len(rec.Header())),
		MultiValueHeaders: rec.Header(),
	}
	for k := range rec.Header() {
		resp.Headers[k] = rec.Header().Get(k)
	}

	out := rec.Body.Bytes()
	if utf8.Valid(out) {
		resp.Body = string(out)
	} else {
		resp.Body = base64.StdEncoding.EncodeToString(out)
		resp.IsBase64Encoded = true
	}
	return resp, nil
}

func requestURL(ev events.APIGatewayProxyRequest) string {
	q := url.Values{}
	for k, vs := range ev.MultiValueQueryStringParameters {
		for _, v := range vs {
			q.Add(k, v)
		}
	}
	for k, v := range ev.QueryStringParameters {
		if !q.Has(k) {
			q.Set(k, v)
		}
	}

	u := url.URL{Path: ev.Path, RawQuery: q.Encode()}
	return u.String()
}
