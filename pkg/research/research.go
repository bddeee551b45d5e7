// Package research answers aid questions with cited web research: batches of
// queries, school policy lookups, peer comparisons and fact checks.
package research

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/finvisor/finvisor/pkg/aid"
	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/provider/perplexity"
)

// Request types.
const (
	General    = "general"
	Policy     = "policy"
	Comparison = "comparison"
	FactCheck  = "fact_check"
)

// Focus values for a single query.
const (
	Academic = "academic"
	News     = "news"
)

const researchPrompt = `You are a research assistant specializing in higher education finance and financial aid.
Provide accurate, well-sourced information with specific data points when available.
Focus on: financial aid statistics, university policies, appeal success rates, and comparable data.
Always cite your sources.`

// Asker runs one research query.
type Asker interface {
	Ask(ctx context.Context, q perplexity.Query) (*perplexity.Answer, error)
}

type Request struct {
	Type        string   `json:"type,omitempty"`
	Queries     []string `json:"queries,omitempty"`
	School      string   `json:"school,omitempty"`
	Topic       string   `json:"topic,omitempty"`
	Comparisons []string `json:"comparisons,omitempty"`
	Claim       string   `json:"claim,omitempty"`
}

type Answer struct {
	Query      string         `json:"query"`
	Answer     string         `json:"answer"`
	Citations  []aid.Citation `json:"citations"`
	Confidence float64        `json:"confidence"`
}

type PolicyResult struct {
	Type           string   `json:"type"`
	School         string   `json:"school"`
	Topic          string   `json:"topic"`
	Policy         string   `json:"policy"`
	KeyPoints      []string `json:"keyPoints"`
	LastUpdated    string   `json:"lastUpdated,omitempty"`
	OfficialSource string   `json:"officialSource,omitempty"`
}

type SchoolData struct {
	Name             string  `json:"name,omitempty"`
	AvgAid           float64 `json:"avgAid"`
	AcceptanceRate   float64 `json:"acceptanceRate"`
	CostOfAttendance float64 `json:"costOfAttendance"`
}

type ComparisonResult struct {
	Type         string       `json:"type"`
	TargetSchool string       `json:"targetSchool"`
	TargetData   SchoolData   `json:"targetData"`
	Comparisons  []SchoolData `json:"comparisons"`
}

type FactCheckResult struct {
	Type        string   `json:"type"`
	Claim       string   `json:"claim"`
	Verified    bool     `json:"verified"`
	Explanation string   `json:"explanation"`
	Sources     []string `json:"sources"`
}

type Service struct {
	asker  Asker
	logger *zap.Logger
}

func NewService(asker Asker, logger *zap.Logger) *Service {
	return &Service{asker: asker, logger: logger}
}

func (s *Service) ready() error {
	if s.asker == nil {
		return apperr.Unconfigured("Perplexity not configured")
	}
	return nil
}

// Run dispatches a POST research request by type. General results are a
// slice of research items; the other types return their own result struct.
func (s *Service) Run(ctx context.Context, req Request) (any, error) {
	switch req.Type {
	case Policy:
		return s.Policy(ctx, req.School, req.Topic)
	case Comparison:
		return s.Compare(ctx, req.School, req.Comparisons)
	case FactCheck:
		return s.FactCheck(ctx, req.Claim)
	default:
		queries := req.Queries
		if len(queries) == 0 {
			queries = DefaultQueries(req.School)
		}
		if len(queries) == 0 {
			return nil, apperr.Invalid("Queries or school required")
		}
		return s.Batch(ctx, queries)
	}
}

// DefaultQueries are the research questions asked for a school when the
// caller gives none.
func DefaultQueries(school string) []string {
	if school == "" {
		return nil
	}
	return []string{
		school + " average financial aid package 2025",
		"Financial aid appeal success rate top universities",
		school + " financial aid appeal policy",
		"COBRA insurance average cost 2025",
		"Peer institution financial aid comparison Ivy+ schools",
	}
}

// Query researches a single question. focus defaults to academic, which
// limits sources to edu, gov and org domains.
func (s *Service) Query(ctx context.Context, query, focus string) (*Answer, error) {
	if query == "" {
		return nil, apperr.Invalid("Query parameter required")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	ans, err := s.ask(ctx, query, focus)
	if err != nil {
		return nil, apperr.UpstreamErr("Research failed", err)
	}

	citations := make([]aid.Citation, 0, len(ans.Citations))
	for _, c := range ans.Citations {
		citations = append(citations, aid.Citation{URL: c.URL, Title: c.Title})
	}
	return &Answer{Query: query, Answer: ans.Content, Citations: citations, Confidence: ans.Confidence()}, nil
}

func (s *Service) ask(ctx context.Context, query, focus string) (*perplexity.Answer, error) {
	if focus == "" {
		focus = Academic
	}
	q := perplexity.Query{System: researchPrompt, Prompt: query, Temperature: 0.2, MaxTokens: 1000}
	if focus == Academic {
		q.DomainFilter = []string{"edu", "gov", "org"}
	}
	return s.asker.Ask(ctx, q)
}

// Batch researches every query concurrently. A failed query becomes an error
// item and never fails the batch.
func (s *Service) Batch(ctx context.Context, queries []string) ([]aid.ResearchItem, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}

	items := make([]aid.ResearchItem, len(queries))
	g, gctx := errgroup.WithContext(ctx)
	for i, q := range queries {
		g.Go(func() error {
			items[i] = s.item(gctx, q)
			return nil
		})
	}
	_ = g.Wait()

	return items, nil
}

func (s *Service) item(ctx context.Context, query string) aid.ResearchItem {
	ans, err := s.ask(ctx, query, Academic)
	if err != nil {
		s.logger.Error("research error", zap.String("query", query), zap.Error(err))
		return aid.ResearchItem{
			Query:  query,
			Result: "Research failed - please try again",
			Source: "Error",
			Status: aid.Error,
		}
	}

	source := "Perplexity Research"
	if len(ans.Citations) > 0 && ans.Citations[0].Title != "" {
		source = ans.Citations[0].Title
	}
	return aid.ResearchItem{Query: query, Result: ans.Content, Source: source, Status: aid.Found}
}

var topics = map[string]string{
	"appeal_process":        "financial aid appeal process and procedures",
	"special_circumstances": "special circumstances review and SAR policy",
	"deadlines":             "financial aid deadlines and important dates",
	"requirements":          "financial aid requirements and eligibility criteria",
}

func (s *Service) Policy(ctx context.Context, school, topic string) (*PolicyResult, error) {
	if school == "" || topic == "" {
		return nil, apperr.Invalid("School and topic required for policy research")
	}
	desc, ok := topics[topic]
	if !ok {
		return nil, apperr.Invalid("Unknown policy topic: " + topic)
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	ans, err := s.asker.Ask(ctx, perplexity.Query{
		System: "Research university financial aid policies. Provide specific, actionable information.",
		Prompt: fmt.Sprintf(`Research %s's %s. 
What are the specific requirements, procedures, and any tips for students?
Return JSON with: policy (summary), keyPoints (array of strings), officialSource (url if available).`, school, desc),
		Temperature:  0.2,
		DomainFilter: []string{"edu"},
	})
	if err != nil {
		return nil, apperr.UpstreamErr("Policy research failed", err)
	}

	res := &PolicyResult{Type: Policy, School: school, Topic: topic, Policy: ans.Content, KeyPoints: []string{}}

	var parsed struct {
		Policy         string   `json:"policy"`
		KeyPoints      []string `json:"keyPoints"`
		LastUpdated    string   `json:"lastUpdated"`
		OfficialSource string   `json:"officialSource"`
	}
	if err := llm.ExtractJSON(ans.Content, &parsed); err == nil {
		if parsed.Policy != "" {
			res.Policy = parsed.Policy
		}
		if parsed.KeyPoints != nil {
			res.KeyPoints = parsed.KeyPoints
		}
		res.LastUpdated = parsed.LastUpdated
		res.OfficialSource = parsed.OfficialSource
	}
	if res.OfficialSource == "" && len(ans.Citations) > 0 {
		res.OfficialSource = ans.Citations[0].URL
	}
	return res, nil
}

var defaultTarget = SchoolData{AvgAid: 50000, AcceptanceRate: 10, CostOfAttendance: 80000}

// Compare fetches aid statistics for school and its peers. Peers default to
// Harvard, Yale and Princeton.
func (s *Service) Compare(ctx context.Context, school string, peers []string) (*ComparisonResult, error) {
	if school == "" {
		return nil, apperr.Invalid("School required for comparison")
	}
	if len(peers) == 0 {
		peers = []string{"Harvard", "Yale", "Princeton"}
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	schools := strings.Join(append([]string{school}, peers...), ", ")
	ans, err := s.asker.Ask(ctx, perplexity.Query{
		System: `You are a college financial data analyst. Provide accurate financial aid statistics.
Return JSON with school financial data including average need-based aid, acceptance rate, and cost of attendance.`,
		Prompt: fmt.Sprintf(`Get the latest financial aid statistics for these schools: %s. 
Include average need-based grant, acceptance rate, and total cost of attendance.
Return as JSON with "schools" array containing objects with: name, avgAid (number), acceptanceRate (number 0-100), costOfAttendance (number).`, schools),
		Temperature: 0.2,
	})
	if err != nil {
		return nil, apperr.UpstreamErr("Comparison research failed", err)
	}

	res := &ComparisonResult{Type: Comparison, TargetSchool: school, TargetData: defaultTarget, Comparisons: []SchoolData{}}

	var parsed struct {
		Schools []SchoolData `json:"schools"`
	}
	if err := llm.ExtractJSON(ans.Content, &parsed); err != nil {
		return res, nil
	}

	res.TargetData, res.Comparisons = splitTarget(school, parsed.Schools)
	return res, nil
}

// splitTarget picks the first school whose name contains target (or the
// first school) and returns the non-matching rest as peers. Missing or zero
// target figures fall back to defaults.
func splitTarget(target string, schools []SchoolData) (SchoolData, []SchoolData) {
	lower := strings.ToLower(target)

	var picked *SchoolData
	peers := make([]SchoolData, 0, len(schools))
	for i := range schools {
		if strings.Contains(strings.ToLower(schools[i].Name), lower) {
			if picked == nil {
				picked = &schools[i]
			}
			continue
		}
		peers = append(peers, schools[i])
	}
	if picked == nil && len(schools) > 0 {
		picked = &schools[0]
	}

	data := defaultTarget
	if picked != nil {
		if picked.AvgAid != 0 {
			data.AvgAid = picked.AvgAid
		}
		if picked.AcceptanceRate != 0 {
			data.AcceptanceRate = picked.AcceptanceRate
		}
		if picked.CostOfAttendance != 0 {
			data.CostOfAttendance = picked.CostOfAttendance
		}
	}
	return data, peers
}

func (s *Service) FactCheck(ctx context.Context, claim string) (*FactCheckResult, error) {
	if claim == "" {
		return nil, apperr.Invalid("Claim required for fact checking")
	}
	if err := s.ready(); err != nil {
		return nil, err
	}

	ans, err := s.asker.Ask(ctx, perplexity.Query{
		System:      "You are a fact-checker. Verify claims with current data. Return JSON with: verified (boolean), explanation (string), sources (array of strings).",
		Prompt:      fmt.Sprintf("Verify this claim: %q", claim),
		Temperature: 0.1,
	})
	if err != nil {
		return nil, apperr.UpstreamErr("Fact check failed", err)
	}

	res := &FactCheckResult{Type: FactCheck, Claim: claim}
	var parsed struct {
		Verified    bool     `json:"verified"`
		Explanation string   `json:"explanation"`
		Sources     []string `json:"sources"`
	}
	if err := llm.ExtractJSON(ans.Content, &parsed); err == nil {
		res.Verified, res.Explanation, res.Sources = parsed.Verified, parsed.Explanation, parsed.Sources
	} else {
		res.Explanation, res.Sources = ans.Content, ans.URLs()
	}
	if res.Sources == nil {
		res.Sources = []string{}
	}
	return res, nil
}
