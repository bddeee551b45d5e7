package llm

// Response is a provider-neutral completion result.
type Response struct {
	Model    string `json:"model"`
	Content  string `json:"content"`
	Thinking string `json:"thinking,omitempty"`
	Usage    Usage  `json:"usage"`
}

// Usage reports token counts where the provider returns them.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Total returns TotalTokens, or the sum of the parts when the provider left it unset.
func (u Usage) Total() int {
	if u.TotalTokens > 0 {
		return u.TotalTokens
	}
	return u.PromptTokens + u.CompletionTokens
}
