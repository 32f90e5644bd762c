// Package llm defines the Provider interface for text-generation backends.
//
// The transcription workflow uses text generation for exactly two
// presentation transforms — formatting a raw transcript into structured
// markdown and summarising a stored transcript — so the contract is a
// single non-streaming completion call.
//
// Implementations must be safe for concurrent use and must propagate
// context cancellation promptly.
package llm

import "context"

// CompletionRequest carries everything the model needs to produce a
// response.
type CompletionRequest struct {
	// SystemPrompt is a high-priority instruction injected before the user
	// content (e.g. OpenAI's "system" role).
	SystemPrompt string

	// Prompt is the user content driving the response.
	Prompt string

	// Temperature controls output randomness in [0.0, 2.0]. Zero requests
	// the provider default.
	Temperature float64

	// MaxTokens caps the completion length. Zero means provider default.
	MaxTokens int
}

// Provider is the abstraction over any text-generation backend.
type Provider interface {
	// Complete sends req to the model and waits for the full response
	// text. Returns an error if the request fails or ctx is cancelled
	// before the completion arrives.
	Complete(ctx context.Context, req CompletionRequest) (string, error)
}
