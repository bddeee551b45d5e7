// Package wizard plays the scripted eight-step appeal walkthrough: a Finnie
// chat, document parsing, strategy, research, the letter, auto-submit, a live
// advisor call and the dashboard.
package wizard

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Steps in wizard order.
const (
	Finnie = iota
	Upload
	Strategy
	Research
	Appeal
	Submit
	Zoom
	Dashboard

	NumSteps
)

//go:embed scripts.yaml
var scriptsYAML []byte

// ChatLine is one Finnie conversation entry; exactly one of Bot and User is
// set.
type ChatLine struct {
	Bot  string `yaml:"bot,omitempty" json:"bot,omitempty"`
	User string `yaml:"user,omitempty" json:"user,omitempty"`
}

type Field struct {
	Key   string `yaml:"key" json:"key"`
	Value string `yaml:"value" json:"value"`
	Flag  bool   `yaml:"flag" json:"flag"`
}

type ParsedDocument struct {
	Type   string  `yaml:"type" json:"type"`
	Fields []Field `yaml:"fields" json:"fields"`
}

type ReasoningItem struct {
	Label  string `yaml:"label" json:"label"`
	Result string `yaml:"result" json:"result"`
	Color  string `yaml:"color" json:"color"`
}

type ResearchItem struct {
	Query  string `yaml:"query" json:"query"`
	Result string `yaml:"result" json:"result"`
	Source string `yaml:"source" json:"source"`
}

type Action struct {
	Icon string `yaml:"icon" json:"icon"`
	Text string `yaml:"text" json:"text"`
}

type TranscriptLine struct {
	Speaker string `yaml:"speaker" json:"speaker"`
	Text    string `yaml:"text" json:"text"`
}

type Stat struct {
	Label string `yaml:"label" json:"label"`
	Value string `yaml:"value" json:"value"`
}

type Tier struct {
	Name     string   `yaml:"name" json:"name"`
	Price    string   `yaml:"price" json:"price"`
	Popular  bool     `yaml:"popular" json:"popular"`
	Features []string `yaml:"features" json:"features"`
}

type Sponsor struct {
	Name string `yaml:"name" json:"name"`
	Tag  string `yaml:"tag" json:"tag"`
}

// Scripts is the whole demo case.
type Scripts struct {
	Labels []string                  `yaml:"labels"`
	Finnie []ChatLine                `yaml:"finnie"`
	Upload map[string]ParsedDocument `yaml:"upload"`

	Strategy struct {
		Reasoning []ReasoningItem `yaml:"reasoning"`
		Plan      []string        `yaml:"plan"`
	} `yaml:"strategy"`

	Research []ResearchItem `yaml:"research"`
	Appeal   []string       `yaml:"appeal"`

	Submit struct {
		Confirmation string   `yaml:"confirmation"`
		Estimate     string   `yaml:"estimate"`
		Actions      []Action `yaml:"actions"`
	} `yaml:"submit"`

	Zoom struct {
		Transcript []TranscriptLine `yaml:"transcript"`
		Insights   []string         `yaml:"insights"`
	} `yaml:"zoom"`

	Dashboard struct {
		Stats    []Stat    `yaml:"stats"`
		Tiers    []Tier    `yaml:"tiers"`
		Sponsors []Sponsor `yaml:"sponsors"`
	} `yaml:"dashboard"`
}

// Load parses the embedded demo case.
func Load() (*Scripts, error) {
	return Parse(scriptsYAML)
}

// MustLoad is Load for package-level wiring; the embedded file is fixed at
// build time.
func MustLoad() *Scripts {
	s, err := Load()
	if err != nil {
		panic(err)
	}
	return s
}

func Parse(data []byte) (*Scripts, error) {
	var s Scripts
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse wizard scripts: %w", err)
	}
	if len(s.Labels) != NumSteps {
		return nil, fmt.Errorf("wizard scripts: want %d step labels, got %d", NumSteps, len(s.Labels))
	}
	for i, line := range s.Finnie {
		if (line.Bot == "") == (line.User == "") {
			return nil, fmt.Errorf("wizard scripts: finnie entry %d needs exactly one of bot or user", i)
		}
	}
	return &s, nil
}

// Label names step, or "" when out of range.
func (s *Scripts) Label(step int) string {
	if step < 0 || step >= len(s.Labels) {
		return ""
	}
	return s.Labels[step]
}
