package embedding

import (
	"context"
	"sync"
)

// Mock is a deterministic in-process provider used in tests. It counts
// backend calls so tests can assert that unchanged content is never
// re-embedded.
type Mock struct {
	dimension int

	mu    sync.Mutex
	calls int
	fail  error
}

// NewMock creates a mock provider with the given dimensionality.
func NewMock(dimension int) *Mock {
	return &Mock{dimension: dimension}
}

func (p *Mock) Dimension() int {
	return p.dimension
}

// Calls returns how many embedding requests were issued.
func (p *Mock) Calls() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

// FailWith makes every subsequent call return err (nil to reset).
func (p *Mock) FailWith(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fail = err
}

func (p *Mock) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	embeddings, err := p.GenerateEmbeddings(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

func (p *Mock) GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error) {
	p.mu.Lock()
	p.calls++
	fail := p.fail
	p.mu.Unlock()

	if fail != nil {
		return nil, fail
	}

	embeddings := make([][]float32, len(texts))
	for i, text := range texts {
		embeddings[i] = p.vectorFor(text)
	}
	return embeddings, nil
}

// vectorFor derives a deterministic embedding from the text hash.
func (p *Mock) vectorFor(text string) []float32 {
	embedding := make([]float32, p.dimension)
	hash := 0
	for _, c := range text {
		hash = hash*31 + int(c)
	}
	for i := 0; i < p.dimension; i++ {
		embedding[i] = float32((hash+i)%100) / 100.0
	}
	return embedding
}
