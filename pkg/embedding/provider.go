// Package embedding provides the vector embedding capability boundary.
// The core only depends on the Provider interface; concrete providers
// call an external backend over HTTP.
package embedding

import (
	"context"
	"errors"
	"fmt"
)

// ErrUnavailable reports that the embedding backend could not be
// reached or refused the request. Callers may retry; indexing state is
// left untouched when this is returned.
var ErrUnavailable = errors.New("embedding backend unavailable")

// Provider generates vector embeddings from text.
type Provider interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
}

// Options configures provider construction.
type Options struct {
	APIKey    string
	BaseURL   string
	Dimension int // overrides the model default when > 0
}

// Backend identifiers accepted by NewProvider.
const (
	BackendOpenAI = "openai"
	BackendOllama = "ollama"
)

// NewProvider builds a Provider for the configured backend and model.
func NewProvider(backend, model string, opts Options) (Provider, error) {
	switch backend {
	case BackendOpenAI:
		if opts.APIKey == "" {
			return nil, errors.New("openai backend requires an API key")
		}
		return NewOpenAIProvider(opts.APIKey, model, opts), nil
	case BackendOllama:
		return NewOllamaProvider(model, opts), nil
	default:
		return nil, fmt.Errorf("unknown embedding backend: %q (supported: openai, ollama)", backend)
	}
}
