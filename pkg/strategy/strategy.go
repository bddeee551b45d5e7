// Package strategy builds the gap strategy for an appeal: a seven-angle
// analysis, an optional success prediction and optional extended reasoning.
package strategy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/aid"
	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/provider/anthropic"
	"github.com/finvisor/finvisor/pkg/provider/modal"
)

const systemPrompt = `You are an expert financial aid strategist. Analyze the student's situation 
and develop a comprehensive gap strategy. Think step by step through each potential angle:
1. Income changes/documentation
2. Medical expenses
3. Competing offers
4. Merit/academic leverage
5. Dependency status
6. Housing hardship
7. Family circumstances

For each, determine if it's a viable appeal vector. Be specific and actionable.
Return a JSON object with:
- steps: array of {label, result, status} where status is 'positive', 'neutral', or 'skip'
- negotiationPlan: array of prioritized strategies
- confidence: 0-1 score for appeal success likelihood`

// Model is the analysis model reported in response metadata.
const Model = anthropic.DefaultModel

const extendedQuestion = "What are the most effective negotiation strategies for this specific case?"

// Predictor scores an appeal's chance of success.
type Predictor interface {
	PredictAppealSuccess(ctx context.Context, f modal.Features) (*modal.Prediction, error)
}

type Options struct {
	IncludeExtendedThinking bool `json:"includeExtendedThinking,omitempty"`
	IncludePrediction       bool `json:"includePrediction,omitempty"`
}

type Request struct {
	StudentProfile *aid.StudentProfile `json:"studentProfile"`
	Options        Options             `json:"options"`
}

type Prediction struct {
	SuccessProbability float64           `json:"successProbability"`
	ConfidenceInterval [2]float64        `json:"confidenceInterval"`
	KeyFactors         []modal.KeyFactor `json:"keyFactors"`
}

type ExtendedAnalysis struct {
	Analysis string `json:"analysis"`
	Thinking string `json:"thinking"`
}

type Result struct {
	Steps            []aid.StrategyStep `json:"steps"`
	NegotiationPlan  []string           `json:"negotiationPlan"`
	Confidence       float64            `json:"confidence"`
	Prediction       *Prediction        `json:"prediction"`
	ExtendedAnalysis *ExtendedAnalysis  `json:"extendedAnalysis"`

	// Model is the model that ran the main analysis.
	Model string `json:"-"`
}

// Angle is one appeal vector as the model reports it. Status is positive,
// neutral or skip.
type Angle struct {
	Label  string `json:"label"`
	Result string `json:"result"`
	Status string `json:"status"`
}

// analysis is the JSON the model is asked for.
type analysis struct {
	Steps           []Angle  `json:"steps"`
	NegotiationPlan []string `json:"negotiationPlan"`
	Confidence      float64  `json:"confidence"`
}

var fallback = analysis{
	Steps:           []Angle{{Label: "Income analysis", Result: "Analysis complete", Status: "positive"}},
	NegotiationPlan: []string{"Document income changes", "Present hardship case"},
	Confidence:      0.7,
}

type Service struct {
	analyst   llm.Completer
	thinker   llm.Completer
	predictor Predictor
	logger    *zap.Logger
}

// NewService wires the strategy. analyst runs the main analysis; thinker runs
// the extended reasoning and may be a different provider. Any may be nil. With
// no analyst the thinker runs the main analysis too.
func NewService(analyst, thinker llm.Completer, predictor Predictor, logger *zap.Logger) *Service {
	return &Service{analyst: analyst, thinker: thinker, predictor: predictor, logger: logger}
}

func (s *Service) Analyze(ctx context.Context, req Request) (*Result, error) {
	p := req.StudentProfile
	if p == nil || p.School == "" {
		return nil, apperr.Invalid("Student profile with school is required")
	}
	analyst := s.analyst
	if analyst == nil {
		analyst = s.thinker
	}
	if analyst == nil {
		return nil, apperr.Unconfigured("Anthropic not configured")
	}

	res, err := analyst.Complete(ctx, llm.Request{
		System:   systemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: userPrompt(p)}},
		Options:  llm.Options{MaxTokens: 2000},
	})
	if err != nil {
		return nil, apperr.UpstreamErr("Strategy analysis failed", err)
	}

	var a analysis
	if err := llm.ExtractJSON(res.Content, &a); err != nil {
		s.logger.Warn("strategy analysis was not JSON, using fallback", zap.Error(err))
		a = fallback
	}

	out := &Result{
		Steps:           FormatSteps(a.Steps),
		NegotiationPlan: a.NegotiationPlan,
		Confidence:      a.Confidence,
		Model:           res.Model,
	}
	if out.Model == "" {
		out.Model = Model
	}
	if out.NegotiationPlan == nil {
		out.NegotiationPlan = []string{}
	}

	if req.Options.IncludePrediction && s.predictor != nil {
		pred, err := s.predictor.PredictAppealSuccess(ctx, Features(p))
		if err != nil {
			return nil, apperr.UpstreamErr("Appeal prediction failed", err)
		}
		out.Prediction = &Prediction{
			SuccessProbability: pred.SuccessProbability,
			ConfidenceInterval: pred.ConfidenceInterval,
			KeyFactors:         pred.KeyFactors,
		}
	}

	if req.Options.IncludeExtendedThinking {
		ext, err := s.extended(ctx, p)
		if err != nil {
			return nil, err
		}
		out.ExtendedAnalysis = ext
	}

	return out, nil
}

func (s *Service) extended(ctx context.Context, p *aid.StudentProfile) (*ExtendedAnalysis, error) {
	if s.thinker == nil {
		return nil, apperr.Unconfigured("No provider configured for extended thinking")
	}

	descs := make([]string, 0, len(p.Circumstances))
	for _, c := range p.Circumstances {
		descs = append(descs, c.Description)
	}
	caseContext := fmt.Sprintf("Student applying to %s with a $%s gap. \nCircumstances: %s",
		p.School, number(p.Gap), strings.Join(descs, "; "))

	res, err := s.thinker.Complete(ctx, llm.Request{
		Messages: []llm.Message{{Role: llm.RoleUser, Content: "Context: " + caseContext + "\n\nAnalyze: " + extendedQuestion}},
		Options:  llm.Options{MaxTokens: 16000, ThinkingBudget: 10000},
	})
	if err != nil {
		return nil, apperr.UpstreamErr("Extended analysis failed", err)
	}
	return &ExtendedAnalysis{Analysis: res.Content, Thinking: res.Thinking}, nil
}

func userPrompt(p *aid.StudentProfile) string {
	var b strings.Builder
	b.WriteString("Analyze this student's financial aid situation and create a strategy:\n\n")
	fmt.Fprintf(&b, "School: %s\n", p.School)
	fmt.Fprintf(&b, "Current Aid: %s\n", aid.Money(p.CurrentAid))
	fmt.Fprintf(&b, "Total Cost: %s\n", aid.Money(p.TotalCost))
	fmt.Fprintf(&b, "Gap: %s\n\n", aid.Money(p.Gap))

	b.WriteString("Circumstances:\n")
	lines := make([]string, 0, len(p.Circumstances))
	for _, c := range p.Circumstances {
		line := "- " + c.Type + ": " + c.Description
		if c.Impact != 0 {
			line += " (Impact: $" + number(c.Impact) + ")"
		}
		lines = append(lines, line)
	}
	b.WriteString(strings.Join(lines, "\n"))

	b.WriteString("\n\nDocuments Available:\n")
	lines = lines[:0]
	for _, d := range p.Documents {
		lines = append(lines, "- "+d.Type+": "+d.Summary)
	}
	b.WriteString(strings.Join(lines, "\n"))

	b.WriteString("\n\nProvide detailed step-by-step analysis and negotiation recommendations.")
	return b.String()
}

func number(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

// FormatSteps gives each analysed angle an id, a display status and a color.
func FormatSteps(angles []Angle) []aid.StrategyStep {
	steps := make([]aid.StrategyStep, 0, len(angles))
	for i, st := range angles {
		status, color := "done", "#fbbf24"
		switch st.Status {
		case "positive":
			color = "#34d399"
		case "skip":
			status, color = "skipped", "rgba(255,255,255,0.45)"
		}
		steps = append(steps, aid.StrategyStep{
			ID:     fmt.Sprintf("step-%d", i),
			Label:  st.Label,
			Result: st.Result,
			Status: status,
			Color:  color,
		})
	}
	return steps
}

// Features derives the predictor inputs from a profile.
func Features(p *aid.StudentProfile) modal.Features {
	var incomeChange float64
	for _, c := range p.Circumstances {
		if c.Type == aid.JobLoss || c.Type == aid.IncomeChange {
			if c.Impact != 0 && p.CurrentAid != 0 {
				incomeChange = c.Impact / p.CurrentAid * 100
			}
			break
		}
	}

	gpa := p.GPA
	if gpa == 0 {
		gpa = 3.5
	}

	return modal.Features{
		SchoolTier:          SchoolTier(p.School),
		CurrentAid:          p.CurrentAid,
		GapAmount:           p.Gap,
		IncomeChangePercent: incomeChange,
		HasMedicalHardship:  p.Has(aid.Medical),
		HasJobLoss:          p.Has(aid.JobLoss),
		HasCompetingOffers:  p.Has(aid.CompetingOffer),
		GPA:                 gpa,
		DocumentCount:       len(p.Documents),
	}
}

type tierKey struct {
	key  string
	tier int
}

// tiers is checked in order; the first key contained in the normalised name wins.
var tiers = []tierKey{
	{"harvard", 1}, {"yale", 1}, {"princeton", 1}, {"stanford", 1}, {"mit", 1},
	{"columbia", 1}, {"penn", 1}, {"duke", 1}, {"caltech", 1},
	{"northwestern", 2}, {"uchicago", 2}, {"johns_hopkins", 2}, {"dartmouth", 2},
	{"brown", 2}, {"cornell", 2}, {"vanderbilt", 2}, {"rice", 2}, {"notre_dame", 2},
	{"emory", 3}, {"georgetown", 3}, {"carnegie_mellon", 3}, {"usc", 3}, {"ucla", 3},
	{"berkeley", 3},
}

// SchoolTier ranks a school from 1 (most selective) to 4.
func SchoolTier(school string) int {
	normalised := strings.Map(func(r rune) rune {
		if r >= 'a' && r <= 'z' {
			return r
		}
		return '_'
	}, strings.ToLower(school))

	for _, t := range tiers {
		if strings.Contains(normalised, t.key) {
			return t.tier
		}
	}
	return 4
}
