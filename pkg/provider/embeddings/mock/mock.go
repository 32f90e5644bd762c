// Package mock provides a test double for the embeddings.Provider
// interface. Vectors are deterministic functions of the input text so
// tests can assert similarity orderings without a live backend.
package mock

import (
	"context"
	"sync"

	"github.com/voxnote/voxnote/pkg/provider/embeddings"
)

// Provider is a mock implementation of embeddings.Provider.
type Provider struct {
	mu sync.Mutex

	// Dim is the vector dimension reported and produced. Defaults to 8
	// when zero.
	Dim int

	// Err, if non-nil, is returned by Embed and EmbedBatch.
	Err error

	// Embedded records every text passed to Embed or EmbedBatch.
	Embedded []string
}

// Compile-time interface check.
var _ embeddings.Provider = (*Provider)(nil)

func (p *Provider) dim() int {
	if p.Dim == 0 {
		return 8
	}
	return p.Dim
}

// Embed implements embeddings.Provider. The vector is a byte histogram of
// the text, so identical texts map to identical vectors.
func (p *Provider) Embed(ctx context.Context, text string) ([]float32, error) {
	p.mu.Lock()
	p.Embedded = append(p.Embedded, text)
	p.mu.Unlock()

	if p.Err != nil {
		return nil, p.Err
	}
	return hashVector(text, p.dim()), nil
}

// EmbedBatch implements embeddings.Provider.
func (p *Provider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for _, t := range texts {
		v, err := p.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// Dimensions implements embeddings.Provider.
func (p *Provider) Dimensions() int {
	return p.dim()
}

// ModelID implements embeddings.Provider.
func (p *Provider) ModelID() string {
	return "mock"
}

func hashVector(text string, dim int) []float32 {
	v := make([]float32, dim)
	for i := 0; i < len(text); i++ {
		v[int(text[i])%dim]++
	}
	return v
}
