package llm

// Request is a provider-neutral completion request.
type Request struct {
	Model    string    `json:"model"`
	System   string    `json:"system,omitempty"`
	Messages []Message `json:"messages"`
	Options  Options   `json:"options"`
}
