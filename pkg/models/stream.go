package models

// StreamChunk is one element of a streamed model response. Chunks are
// delivered over a channel; the terminal chunk has Done set and carries
// usage metadata.
type StreamChunk struct {
	// Text contains partial response text.
	Text string `json:"text,omitempty"`

	// Done is true on the final chunk of the stream.
	Done bool `json:"done,omitempty"`

	// Error terminates the stream when non-nil.
	Error error `json:"-"`

	// Usage is populated on the final chunk.
	Usage *TokenUsage `json:"usage,omitempty"`
}

// TokenUsage summarizes token accounting for one model call.
type TokenUsage struct {
	Model            string `json:"model,omitempty"`
	PromptTokens     int    `json:"prompt_tokens"`
	CompletionTokens int    `json:"completion_tokens"`
	TotalTokens      int    `json:"total_tokens"`
	FinishReason     string `json:"finish_reason,omitempty"`
}
