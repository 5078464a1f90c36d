// Package providers implements the model backends the gateway selects
// among: OpenAI-compatible chat completions, Google generative content,
// Anthropic messages, and local ollama generate.
package providers

import (
	"context"

	"github.com/JanDamek/jervis-sub011/pkg/models"
)

// Request is a fully assembled prompt for one model call. The gateway
// builds it from a prompt template and interpolation map; providers only
// translate it to their wire format.
type Request struct {
	// Model is the provider-side model name.
	Model string

	// System is the system prompt, already carrying the response-schema
	// directive when one was declared.
	System string

	// Prompt is the user prompt.
	Prompt string

	// MaxTokens caps generation; zero uses the provider default.
	MaxTokens int

	// Temperature is the sampling temperature.
	Temperature float64

	// JSONMode requests structured output where the backend supports it.
	JSONMode bool
}

// Provider is one model backend. Stream returns a channel of chunks; the
// terminal chunk carries Done plus usage. Cancelling ctx aborts the
// underlying request and closes the channel promptly.
//
// Implementations must be safe for concurrent use; the gateway issues
// calls from many goroutines under the provider's concurrency cap.
type Provider interface {
	// Name returns the stable lowercase provider tag.
	Name() string

	// Stream sends the request and streams the response.
	Stream(ctx context.Context, req *Request) (<-chan *models.StreamChunk, error)
}

// send delivers chunk unless ctx is cancelled first. A false return means
// the consumer is gone; the producer must stop and release its resources
// rather than block on the channel.
func send(ctx context.Context, out chan<- *models.StreamChunk, chunk *models.StreamChunk) bool {
	select {
	case out <- chunk:
		return true
	case <-ctx.Done():
		return false
	}
}
