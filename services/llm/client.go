// Package llm defines the narrow contract the assistant uses to consume a
// language model: text in, text out. Classification, extraction, reference
// resolution and ranking all go through this single interface so tests can
// substitute a scripted fake.
package llm

import "context"

// GenerationParams are optional sampling controls. Nil fields leave the
// backend default in place.
type GenerationParams struct {
	Temperature *float32 `json:"temperature"`
	TopP        *float32 `json:"top_p"`
	MaxTokens   *int     `json:"max_tokens"`
	Stop        []string `json:"stop"`
}

// Client is the standard interface for any LLM backend.
//
// Implementations must be safe for concurrent use. Callers must tolerate
// differing outputs for identical input across calls: the capability is
// nondeterministic even at low temperature.
type Client interface {
	Generate(ctx context.Context, prompt string, params GenerationParams) (string, error)
}
