// Package aid holds the request and response shapes shared by the appeal
// services.
package aid

import (
	"math"
	"strconv"
	"strings"
)

// Circumstance types that carry meaning for prediction features.
const (
	JobLoss        = "job_loss"
	IncomeChange   = "income_change"
	Medical        = "medical"
	Housing        = "housing"
	CompetingOffer = "competing_offer"
)

type Circumstance struct {
	Type        string  `json:"type"`
	Description string  `json:"description"`
	Impact      float64 `json:"impact,omitempty"`
}

type DocumentSummary struct {
	Type    string `json:"type"`
	Summary string `json:"summary"`
}

type StudentProfile struct {
	Name          string            `json:"name"`
	School        string            `json:"school"`
	CurrentAid    float64           `json:"currentAid"`
	TotalCost     float64           `json:"totalCost"`
	Gap           float64           `json:"gap"`
	GPA           float64           `json:"gpa,omitempty"`
	Circumstances []Circumstance    `json:"circumstances"`
	Documents     []DocumentSummary `json:"documents"`
}

// Has reports whether any circumstance is of type typ.
func (p *StudentProfile) Has(typ string) bool {
	for _, c := range p.Circumstances {
		if c.Type == typ {
			return true
		}
	}
	return false
}

// Research item statuses.
const (
	Found = "found"
	Error = "error"
)

type ResearchItem struct {
	Query  string `json:"query"`
	Result string `json:"result"`
	Source string `json:"source"`
	Status string `json:"status"`
}

type StrategyStep struct {
	ID     string `json:"id"`
	Label  string `json:"label"`
	Result string `json:"result"`
	Status string `json:"status"`
	Color  string `json:"color"`
}

type Citation struct {
	URL     string `json:"url"`
	Title   string `json:"title"`
	Snippet string `json:"snippet,omitempty"`
}

// Money renders an amount the way the prompts quote it, e.g. "$12,500".
func Money(v float64) string {
	n := int64(math.Round(v))
	sign := ""
	if n < 0 {
		sign, n = "-", -n
	}

	digits := strconv.FormatInt(n, 10)
	var b strings.Builder
	b.WriteString(sign + "$")
	for i, d := range digits {
		if i > 0 && (len(digits)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(d)
	}
	return b.String()
}
