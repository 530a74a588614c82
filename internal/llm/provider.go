// Package llm talks to hosted language models that adjudicate finding
// normalization. Every backend is asked for schema-constrained JSON at
// temperature zero, and every reply is validated before it is returned.
package llm

import (
	"context"
	"encoding/json"
)

// Provider completes single-turn structured prompts.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Completion, error)
	ModelID() string
}

// Request is one prompt. There is no conversation history; the grading
// pipeline never needs more than one turn.
type Request struct {
	// Purpose labels the call in the model event log.
	Purpose string
	System  string
	Prompt  string
	// Schema, when set, is passed to the backend's native structured
	// output mode and enforced on the reply.
	Schema    *Schema
	MaxTokens int
}

// Schema is a named JSON Schema document.
type Schema struct {
	Name        string
	Description string
	Definition  map[string]any
}

// Completion is a validated reply.
type Completion struct {
	Content json.RawMessage
	Usage   Usage
	// Model is the model id reported by the backend, which may be more
	// specific than the configured alias.
	Model string
}

// Usage counts tokens for one call.
type Usage struct {
	InputTokens  int
	OutputTokens int
}

func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }
