// Package documents parses uploaded aid documents: images through a vision
// model, text through schema-guided extraction, batches through Modal.
package documents

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/provider/openai"
)

// Content types.
const (
	Image = "image"
	Text  = "text"
	PDF   = "pdf"
)

type Upload struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Content     string `json:"content"`
	ContentType string `json:"contentType"`
}

type Field struct {
	Key        string  `json:"key"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
	Flag       bool    `json:"flag"`
}

type ParsedData struct {
	Type       string  `json:"type"`
	Fields     []Field `json:"fields"`
	Confidence float64 `json:"confidence"`
}

// Result is the outcome for one upload. Exactly one of ParsedData and Error
// is set.
type Result struct {
	ID         string      `json:"id"`
	Type       string      `json:"type"`
	Status     string      `json:"status"`
	ParsedData *ParsedData `json:"parsedData,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// BatchParser runs the hosted OCR parser.
type BatchParser interface {
	ParseDocuments(ctx context.Context, documents any) (json.RawMessage, error)
}

type Service struct {
	completer llm.Completer
	batch     BatchParser
	logger    *zap.Logger
}

func NewService(completer llm.Completer, batch BatchParser, logger *zap.Logger) *Service {
	return &Service{completer: completer, batch: batch, logger: logger}
}

// Parse parses every upload concurrently. A failed upload becomes an error
// result and never fails the batch.
func (s *Service) Parse(ctx context.Context, uploads []Upload) ([]Result, error) {
	if len(uploads) == 0 {
		return nil, apperr.Invalid("Documents are required")
	}

	results := make([]Result, len(uploads))
	g, gctx := errgroup.WithContext(ctx)
	for i, up := range uploads {
		g.Go(func() error {
			results[i] = s.parseOne(gctx, up)
			return nil
		})
	}
	_ = g.Wait()

	return results, nil
}

func (s *Service) parseOne(ctx context.Context, up Upload) Result {
	fields, err := s.extract(ctx, up)
	if err != nil {
		s.logger.Error("error parsing document", zap.String("id", up.ID), zap.Error(err))
		return Result{ID: up.ID, Type: up.Type, Status: "error", Error: err.Error()}
	}

	fields = Flag(fields, up.Type)
	return Result{
		ID:     up.ID,
		Type:   up.Type,
		Status: "parsed",
		ParsedData: &ParsedData{
			Type:       TypeName(up.Type),
			Fields:     fields,
			Confidence: Confidence(fields),
		},
	}
}

func (s *Service) extract(ctx context.Context, up Upload) ([]Field, error) {
	switch up.ContentType {
	case Image:
		return s.vision(ctx, up)
	case Text:
		return s.structured(ctx, up)
	default:
		return []Field{}, nil
	}
}

func (s *Service) vision(ctx context.Context, up Upload) ([]Field, error) {
	if s.completer == nil {
		return nil, fmt.Errorf("OpenAI not configured")
	}

	res, err := s.completer.Complete(ctx, llm.Request{
		Model: openai.DefaultModel,
		System: fmt.Sprintf(`You are a document parsing expert. Extract structured data from financial documents.
Return a JSON object with "fields" array containing objects with "key", "value", and "confidence" (0-1).
Also include "rawText" with the full text content.
For %s, focus on relevant financial fields.`, up.Type),
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Parse this %s document and extract all relevant financial information as structured JSON.", up.Type),
			Images:  []string{"data:image/jpeg;base64," + up.Content},
		}},
		Options: llm.Options{MaxTokens: 2000, JSONMode: true},
	})
	if err != nil {
		return nil, err
	}

	// Models answer values as strings, numbers or nulls alike.
	var parsed struct {
		Fields []struct {
			Key        string          `json:"key"`
			Value      json.RawMessage `json:"value"`
			Confidence float64         `json:"confidence"`
		} `json:"fields"`
	}
	if err := json.Unmarshal([]byte(orEmptyObject(res.Content)), &parsed); err != nil {
		return nil, fmt.Errorf("decode vision result: %w", err)
	}

	fields := make([]Field, 0, len(parsed.Fields))
	for _, f := range parsed.Fields {
		value := ""
		if len(f.Value) > 0 {
			value = valueString(f.Value)
		}
		fields = append(fields, Field{Key: f.Key, Value: value, Confidence: f.Confidence})
	}
	return fields, nil
}

func (s *Service) structured(ctx context.Context, up Upload) ([]Field, error) {
	if s.completer == nil {
		return nil, fmt.Errorf("OpenAI not configured")
	}

	schema, err := json.Marshal(Schema(up.Type))
	if err != nil {
		return nil, err
	}

	res, err := s.completer.Complete(ctx, llm.Request{
		Model: openai.DefaultModel,
		System: fmt.Sprintf(`Extract structured data from the text according to this schema: %s
Return valid JSON matching the schema.`, schema),
		Messages: []llm.Message{{Role: llm.RoleUser, Content: up.Content}},
		Options:  llm.Options{MaxTokens: 1000, JSONMode: true},
	})
	if err != nil {
		return nil, err
	}

	return objectFields(orEmptyObject(res.Content), 0.9)
}

// Batch hands the uploads to the hosted parser and returns its result as-is.
func (s *Service) Batch(ctx context.Context, uploads []Upload) (json.RawMessage, error) {
	if s.batch == nil {
		return nil, apperr.Unconfigured("Modal not configured")
	}

	docs := make([]map[string]string, 0, len(uploads))
	for _, up := range uploads {
		docs = append(docs, map[string]string{"id": up.ID, "content": up.Content, "type": up.Type})
	}

	out, err := s.batch.ParseDocuments(ctx, docs)
	if err != nil {
		return nil, apperr.UpstreamErr("Batch processing failed", err)
	}
	return out, nil
}

func orEmptyObject(s string) string {
	if strings.TrimSpace(s) == "" {
		return "{}"
	}
	return s
}

// objectFields turns a JSON object into fields in document order. Strings are
// kept verbatim, other values as compact JSON.
func objectFields(raw string, confidence float64) ([]Field, error) {
	dec := json.NewDecoder(strings.NewReader(raw))
	dec.UseNumber()

	if tok, err := dec.Token(); err != nil || tok != json.Delim('{') {
		return nil, fmt.Errorf("extracted data is not a JSON object")
	}

	fields := make([]Field, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("decode extracted data: %w", err)
		}
		key, _ := tok.(string)

		var value json.RawMessage
		if err := dec.Decode(&value); err != nil {
			return nil, fmt.Errorf("decode extracted %s: %w", key, err)
		}
		fields = append(fields, Field{Key: key, Value: valueString(value), Confidence: confidence})
	}
	return fields, nil
}

func valueString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return string(raw)
	}
	return buf.String()
}

var schemas = map[string]map[string]string{
	"w2": {
		"gross_income":         "number",
		"federal_tax_withheld": "number",
		"employer_name":        "string",
		"employment_dates":     "string",
		"state_wages":          "number",
		"state_tax":            "number",
	},
	"fafsa": {
		"efc":                   "number",
		"family_size":           "number",
		"number_in_college":     "number",
		"adjusted_gross_income": "number",
		"assets":                "number",
	},
	"aid_letter": {
		"total_cost":   "number",
		"grants":       "number",
		"scholarships": "number",
		"loans":        "number",
		"work_study":   "number",
		"total_aid":    "number",
		"unmet_need":   "number",
	},
	"tax_return": {
		"adjusted_gross_income": "number",
		"taxable_income":        "number",
		"total_tax":             "number",
		"filing_status":         "string",
	},
}

// Schema returns the extraction schema for a document type; unknown types
// get an empty schema.
func Schema(docType string) map[string]string {
	if s, ok := schemas[docType]; ok {
		return s
	}
	return map[string]string{}
}

var flaggable = map[string][]string{
	"w2":         {"gross_income", "employment_dates"},
	"fafsa":      {"efc", "adjusted_gross_income"},
	"aid_letter": {"unmet_need", "total_aid"},
	"tax_return": {"adjusted_gross_income"},
}

// Flag marks fields whose key contains one of the type's flaggable keys.
func Flag(fields []Field, docType string) []Field {
	keys := flaggable[docType]
	out := make([]Field, len(fields))
	for i, f := range fields {
		lower := strings.ToLower(f.Key)
		f.Flag = false
		for _, k := range keys {
			if strings.Contains(lower, k) {
				f.Flag = true
				break
			}
		}
		out[i] = f
	}
	return out
}

// Confidence is the mean field confidence to two decimals, 0 without fields.
func Confidence(fields []Field) float64 {
	if len(fields) == 0 {
		return 0
	}
	var sum float64
	for _, f := range fields {
		sum += f.Confidence
	}
	return math.Round(sum/float64(len(fields))*100) / 100
}

var typeNames = map[string]string{
	"w2":         "W-2 Form",
	"fafsa":      "FAFSA Application",
	"aid_letter": "Financial Aid Letter",
	"tax_return": "Tax Return",
}

func TypeName(docType string) string {
	if n, ok := typeNames[docType]; ok {
		return n
	}
	return "Document"
}
