package domain

import "context"

// Message is a single chat message sent to the LLM.
type Message struct {
	Role    string
	Content string
}

// LLMResponse carries the LLM output and whether the generation finished.
type LLMResponse struct {
	Text string
	Done bool
}

// StreamDelta is one streamed token from the provider. Thinking carries
// reasoning tokens the provider emits separately from answer content; they
// are never part of the persisted answer text.
type StreamDelta struct {
	Content  string
	Thinking string
	Done     bool
}

// LLMClient defines the capability to send chat messages to a model and
// receive textual responses. The model identifier is passed per call so the
// generator can switch to a fallback model without a second client.
type LLMClient interface {
	Complete(ctx context.Context, model string, messages []Message, maxTokens int) (*LLMResponse, error)
	CompleteStream(ctx context.Context, model string, messages []Message, maxTokens int) (<-chan StreamDelta, <-chan error, error)
}
