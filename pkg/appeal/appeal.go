// Package appeal drafts financial aid appeal letters and optionally polishes
// them with the letter enhancer.
package appeal

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/finvisor/finvisor/pkg/aid"
	"github.com/finvisor/finvisor/pkg/apperr"
	"github.com/finvisor/finvisor/pkg/llm"
	"github.com/finvisor/finvisor/pkg/provider/modal"
)

const systemPrompt = `You are an expert at writing compelling, professional financial aid appeal letters.
Write letters that are:
- Empathetic but not overly emotional
- Data-driven with specific numbers and citations
- Professional in tone
- Structured clearly (intro, circumstances, data support, request, closing)
- Persuasive without being demanding

Include relevant citations from the research data provided.
Do not use placeholders - write a complete, ready-to-send letter.`

const (
	Tone = "Professional & empathetic"

	// WordPause is the delay between streamed words.
	WordPause = 50 * time.Millisecond
)

// Output formats.
const (
	Plain    = "plain"
	Markdown = "markdown"
	PDF      = "pdf"
)

// Enhancer rewrites a draft letter.
type Enhancer interface {
	EnhanceLetter(ctx context.Context, draft string, profile any) (*modal.Enhancement, error)
}

type Options struct {
	Enhance bool   `json:"enhance,omitempty"`
	Format  string `json:"format,omitempty"`
}

type Request struct {
	StudentProfile *aid.StudentProfile `json:"studentProfile"`
	ResearchData   []aid.ResearchItem  `json:"researchData"`
	Strategy       []string            `json:"strategy"`
	Options        Options             `json:"options"`
}

type Metadata struct {
	WordCount      int    `json:"wordCount"`
	CitationsCount int    `json:"citationsCount"`
	Tone           string `json:"tone"`
	GeneratedBy    string `json:"generatedBy"`
}

type Enhancement struct {
	Improvements    []string `json:"improvements"`
	ToneScore       float64  `json:"toneScore"`
	PersuasionScore float64  `json:"persuasionScore"`
}

type Letter struct {
	Letter      string       `json:"letter"`
	Metadata    Metadata     `json:"metadata"`
	Enhancement *Enhancement `json:"enhancement"`
}

type Service struct {
	writer   llm.Completer
	enhancer Enhancer
	logger   *zap.Logger
}

// NewService wires the letter writer. enhancer may be nil.
func NewService(writer llm.Completer, enhancer Enhancer, logger *zap.Logger) *Service {
	return &Service{writer: writer, enhancer: enhancer, logger: logger}
}

func validate(req Request) error {
	if req.StudentProfile == nil || req.StudentProfile.Name == "" || req.StudentProfile.School == "" {
		return apperr.Invalid("Student profile with name and school required")
	}
	return nil
}

// Draft writes the letter text only. It backs the streaming endpoint.
func (s *Service) Draft(ctx context.Context, req Request) (string, error) {
	if err := validate(req); err != nil {
		return "", err
	}
	if s.writer == nil {
		return "", apperr.Unconfigured("Anthropic not configured")
	}

	res, err := s.writer.Complete(ctx, llm.Request{
		System:   systemPrompt,
		Messages: []llm.Message{{Role: llm.RoleUser, Content: userPrompt(req)}},
		Options:  llm.Options{MaxTokens: 3000},
	})
	if err != nil {
		return "", apperr.UpstreamErr("Letter generation failed", err)
	}
	return res.Content, nil
}

// Generate drafts the letter, enhances it when asked and formats it.
func (s *Service) Generate(ctx context.Context, req Request) (*Letter, error) {
	draft, err := s.Draft(ctx, req)
	if err != nil {
		return nil, err
	}

	out := &Letter{
		Letter: draft,
		Metadata: Metadata{
			WordCount:      len(strings.Fields(draft)),
			CitationsCount: CitationsUsed(draft, req.ResearchData),
			Tone:           Tone,
			GeneratedBy:    "anthropic",
		},
	}

	if req.Options.Enhance && s.enhancer != nil {
		enh, err := s.enhancer.EnhanceLetter(ctx, draft, req.StudentProfile)
		if err != nil {
			s.logger.Warn("letter enhancement failed, keeping original", zap.Error(err))
		} else {
			out.Letter = enh.EnhancedLetter
			out.Enhancement = &Enhancement{
				Improvements:    enh.Improvements,
				ToneScore:       enh.ToneScore,
				PersuasionScore: enh.PersuasionScore,
			}
		}
	}

	if req.Options.Format == Markdown {
		out.Letter = FormatMarkdown(out.Letter)
	}
	return out, nil
}

// CitationsUsed counts research items whose source's first word appears in
// the letter.
func CitationsUsed(letter string, research []aid.ResearchItem) int {
	lower := strings.ToLower(letter)
	n := 0
	for _, r := range research {
		first, _, _ := strings.Cut(strings.ToLower(r.Source), " ")
		if strings.Contains(lower, first) {
			n++
		}
	}
	return n
}

var numbered = regexp.MustCompile(`^\d+\.`)

// FormatMarkdown bolds the salutation, rules off the closing and turns
// numbered lines into bullets.
func FormatMarkdown(letter string) string {
	lines := strings.Split(letter, "\n")
	for i, line := range lines {
		switch {
		case strings.HasPrefix(line, "Dear "):
			lines[i] = "**" + line + "**\n"
		case strings.HasPrefix(line, "Sincerely,"):
			lines[i] = "\n---\n\n*" + line + "*"
		case numbered.MatchString(line):
			_, rest, _ := strings.Cut(line, ".")
			lines[i] = "- " + strings.TrimSpace(rest)
		}
	}
	return strings.Join(lines, "\n")
}

func userPrompt(req Request) string {
	p := req.StudentProfile

	var b strings.Builder
	b.WriteString("Write a financial aid appeal letter with these details:\n\n")
	fmt.Fprintf(&b, "Student: %s\n", p.Name)
	fmt.Fprintf(&b, "School: %s\n", p.School)
	fmt.Fprintf(&b, "Current Aid: %s\n", aid.Money(p.CurrentAid))
	fmt.Fprintf(&b, "Total Cost: %s\n", aid.Money(p.TotalCost))
	fmt.Fprintf(&b, "Gap: %s\n", aid.Money(p.Gap))
	if p.GPA != 0 {
		fmt.Fprintf(&b, "GPA: %s", strconv.FormatFloat(p.GPA, 'f', -1, 64))
	}

	b.WriteString("\n\nCircumstances:\n")
	lines := make([]string, 0, len(p.Circumstances))
	for _, c := range p.Circumstances {
		line := "- " + c.Type + ": " + c.Description
		if c.Impact != 0 {
			line += " (Financial Impact: $" + strconv.FormatFloat(c.Impact, 'f', -1, 64) + ")"
		}
		lines = append(lines, line)
	}
	b.WriteString(strings.Join(lines, "\n"))

	b.WriteString("\n\nResearch Data to Cite:\n")
	lines = lines[:0]
	for _, r := range req.ResearchData {
		lines = append(lines, fmt.Sprintf("- %q (Source: %s)", r.Result, r.Source))
	}
	b.WriteString(strings.Join(lines, "\n"))

	b.WriteString("\n\nKey Strategy Points:\n")
	lines = lines[:0]
	for i, st := range req.Strategy {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, st))
	}
	b.WriteString(strings.Join(lines, "\n"))

	b.WriteString("\n\nWrite the complete letter now.")
	return b.String()
}
