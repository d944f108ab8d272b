package provider

import "fmt"

// Settings selects and configures the provider clients. It is filled
// from the process configuration by the caller.
type Settings struct {
	// Provider is the backend name: "openai" or "ollama" (default).
	Provider string

	APIKey  string
	BaseURL string

	// ChatModel and EmbedModel override the per-provider defaults.
	ChatModel  string
	EmbedModel string

	// EmbedRequestsPerSecond caps outbound embedding calls.
	// Zero disables client-side rate limiting.
	EmbedRequestsPerSecond float64
}

// NewChatModel creates the appropriate ChatModel based on settings.
func NewChatModel(s Settings) (ChatModel, error) {
	switch s.Provider {
	case "openai":
		return NewOpenAIClient(OpenAIConfig{APIKey: s.APIKey, Model: s.ChatModel, BaseURL: s.BaseURL}), nil
	case "ollama", "":
		model := s.ChatModel
		if model == "" {
			model = "qwen2.5:7b"
		}
		return NewOllamaClient(OllamaConfig{BaseURL: s.BaseURL, Model: model}), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q", s.Provider)
	}
}

// NewEmbedder creates the appropriate Embedder based on settings.
func NewEmbedder(s Settings) (Embedder, error) {
	switch s.Provider {
	case "openai":
		return NewOpenAIEmbeddingClient(OpenAIEmbeddingConfig{
			APIKey:            s.APIKey,
			Model:             s.EmbedModel,
			BaseURL:           s.BaseURL,
			RequestsPerSecond: s.EmbedRequestsPerSecond,
		}), nil
	case "ollama", "":
		model := s.EmbedModel
		if model == "" {
			model = "nomic-embed-text"
		}
		return NewOllamaClient(OllamaConfig{BaseURL: s.BaseURL, Model: model}), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %q", s.Provider)
	}
}
