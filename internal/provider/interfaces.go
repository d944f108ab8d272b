// Package provider contains the model provider clients: embedding and
// chat completion over OpenAI-compatible HTTP APIs or a local Ollama
// instance. All outbound calls go through a circuit breaker; embedding
// calls are additionally rate limited client-side.
package provider

import (
	"context"
	"errors"
)

// ErrEmbedding wraps every embedding provider failure so callers can
// detect the class without knowing the provider.
var ErrEmbedding = errors.New("embedding provider failure")

// Embedder generates vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	GetModel() string
}

// ChatModel is the interface for LLM text completion.
// Synthesis prompts use single-string completion style (not chat).
type ChatModel interface {
	Complete(ctx context.Context, prompt string) (string, error)
	GetModel() string
}
