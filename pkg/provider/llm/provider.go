// Package llm defines the provider interface for text-generation backends
// used to title, estimate, and enrich transcript entries.
package llm

import "context"

// Request is a single-turn completion request.
type Request struct {
	// SystemPrompt frames the task for the model. Optional.
	SystemPrompt string

	// Prompt is the user-facing content to complete.
	Prompt string

	// Temperature steers sampling randomness. Zero means provider default.
	Temperature float64

	// MaxTokens caps the generated output. Zero means provider default.
	MaxTokens int
}

// Usage reports token accounting for a completion.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}

// Response is the result of a completion request.
type Response struct {
	Content string
	Usage   Usage
}

// Capabilities describes static limits of the configured model.
type Capabilities struct {
	ContextWindow   int
	MaxOutputTokens int
}

// Provider is a text-generation backend.
//
// Implementations must be safe for concurrent use.
type Provider interface {
	// Complete performs one completion round-trip.
	Complete(ctx context.Context, req Request) (*Response, error)

	// CountTokens estimates the token cost of a prompt. Estimates may be
	// approximate; callers use them for budgeting, not billing.
	CountTokens(text string) (int, error)

	// Capabilities returns the static limits of the underlying model.
	Capabilities() Capabilities

	// Name identifies the provider for logs.
	Name() string
}
