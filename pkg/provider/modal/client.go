// Package modal invokes finvisor's hosted Modal functions: batch document
// parsing, appeal-success prediction and letter enhancement.
package modal

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/finvisor/finvisor/pkg/provider/httpjson"
)

const (
	DefaultBaseURL = "https://api.modal.com/v1"

	FnDocumentParser  = "finvisor-document-parser"
	FnAppealPredictor = "finvisor-appeal-predictor"
	FnLetterEnhancer  = "finvisor-letter-enhancer"
)

// Invocation is the raw result of a function call.
type Invocation struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Result json.RawMessage `json:"result"`
}

// Status is the platform health summary.
type Status struct {
	Healthy         bool    `json:"healthy"`
	ActiveFunctions int     `json:"active_functions"`
	GPUUtilization  float64 `json:"gpu_utilization"`
	QueueDepth      int     `json:"queue_depth"`
}

// Features are the predictor inputs.
type Features struct {
	SchoolTier          int     `json:"school_tier"`
	CurrentAid          float64 `json:"current_aid"`
	GapAmount           float64 `json:"gap_amount"`
	IncomeChangePercent float64 `json:"income_change_percent"`
	HasMedicalHardship  bool    `json:"has_medical_hardship"`
	HasJobLoss          bool    `json:"has_job_loss"`
	HasCompetingOffers  bool    `json:"has_competing_offers"`
	GPA                 float64 `json:"gpa"`
	DocumentCount       int     `json:"document_count"`
}

type KeyFactor struct {
	Factor string  `json:"factor"`
	Impact float64 `json:"impact"`
}

type Prediction struct {
	SuccessProbability float64     `json:"success_probability"`
	ConfidenceInterval [2]float64  `json:"confidence_interval"`
	KeyFactors         []KeyFactor `json:"key_factors"`
}

type Enhancement struct {
	EnhancedLetter  string   `json:"enhanced_letter"`
	Improvements    []string `json:"improvements"`
	ToneScore       float64  `json:"tone_score"`
	PersuasionScore float64  `json:"persuasion_score"`
}

// Client talks to Modal. The key resolves to "<token id>:<token secret>".
type Client struct {
	base httpjson.Base
	key  *httpjson.Key
}

func NewClient(key *httpjson.Key, opts ...httpjson.Option) *Client {
	return &Client{
		base: httpjson.NewBase("modal", DefaultBaseURL, opts...),
		key:  key,
	}
}

func (c *Client) auth(ctx context.Context) (http.Header, error) {
	token, err := c.key.Resolve(ctx)
	if err != nil {
		return nil, fmt.Errorf("modal: %w", err)
	}
	return http.Header{"Authorization": []string{"Token " + token}}, nil
}

// Invoke calls function fn with args and returns the raw invocation.
func (c *Client) Invoke(ctx context.Context, fn string, args any) (*Invocation, error) {
	header, err := c.auth(ctx)
	if err != nil {
		return nil, err
	}

	var inv Invocation
	path := "functions/" + url.PathEscape(fn) + "/invoke"
	if err := c.base.DoJSON(ctx, http.MethodPost, path, header, map[string]any{"args": args}, &inv); err != nil {
		return nil, err
	}
	if inv.Status == "failed" {
		return nil, fmt.Errorf("modal: function %s failed (invocation %s)", fn, inv.ID)
	}
	return &inv, nil
}

func invokeInto[T any](ctx context.Context, c *Client, fn string, args any) (*T, error) {
	inv, err := c.Invoke(ctx, fn, args)
	if err != nil {
		return nil, err
	}
	var out T
	if len(inv.Result) == 0 {
		return &out, nil
	}
	if err := json.Unmarshal(inv.Result, &out); err != nil {
		return nil, fmt.Errorf("modal: decode %s result: %w", fn, err)
	}
	return &out, nil
}

// ParseDocuments runs the OCR parser over a batch and returns its result verbatim.
func (c *Client) ParseDocuments(ctx context.Context, documents any) (json.RawMessage, error) {
	inv, err := c.Invoke(ctx, FnDocumentParser, map[string]any{
		"documents": documents,
		"options": map[string]any{
			"ocr_engine":     "tesseract",
			"extract_tables": true,
			"detect_forms":   true,
		},
	})
	if err != nil {
		return nil, err
	}
	return inv.Result, nil
}

func (c *Client) PredictAppealSuccess(ctx context.Context, f Features) (*Prediction, error) {
	return invokeInto[Prediction](ctx, c, FnAppealPredictor, map[string]any{
		"features":            f,
		"return_explanations": true,
	})
}

func (c *Client) EnhanceLetter(ctx context.Context, draft string, profile any) (*Enhancement, error) {
	return invokeInto[Enhancement](ctx, c, FnLetterEnhancer, map[string]any{
		"draft":   draft,
		"profile": profile,
		"style":   "professional_empathetic",
	})
}

// Status reads the platform status.
func (c *Client) Status(ctx context.Context) (*Status, error) {
	header, err := c.auth(ctx)
	if err != nil {
		return nil, err
	}
	var st Status
	if err := c.base.DoJSON(ctx, http.MethodGet, "status", header, nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}
