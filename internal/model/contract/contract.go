package contract

// Message is one chat turn in a completion request.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionRequest is the provider-agnostic chat-completions shape. All
// providers are reached with this request; only Model differs.
type CompletionRequest struct {
	Model       string    `json:"model"`
	Messages    []Message `json:"messages"`
	Temperature float64   `json:"temperature"`
	MaxTokens   int       `json:"max_tokens"`
}

// Usage reports token accounting for one completion.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// CompletionResponse is the provider-agnostic response.
type CompletionResponse struct {
	Content   string `json:"content"`
	Usage     Usage  `json:"usage"`
	Model     string `json:"model"`
	LatencyMs int64  `json:"latency_ms"`
}

// SystemAndUser builds the two-message prompt used by pipeline stages.
func SystemAndUser(systemPrompt, userContent string) []Message {
	return []Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: userContent},
	}
}
