package llm

// Options contains model inference parameters. Zero values mean "provider default".
type Options struct {
	Temperature *float64 `json:"temperature,omitempty"`
	MaxTokens   int      `json:"max_tokens,omitempty"`

	// JSONMode asks the provider for a JSON object response where supported.
	JSONMode bool `json:"json_mode,omitempty"`

	// ThinkingBudget enables extended reasoning with the given token budget.
	ThinkingBudget int `json:"thinking_budget,omitempty"`
}

// Temperature returns a pointer to t, for use in Options literals.
func Temperature(t float64) *float64 {
	return &t
}
