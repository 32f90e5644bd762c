// Package embeddings defines the Provider interface for text embedding
// backends used by the transcript search index.
//
// Implementations must be safe for concurrent use.
package embeddings

import "context"

// Provider is the abstraction over any embeddings backend.
type Provider interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns one embedding per input text, in input order.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimensions returns the vector dimension produced by this provider's
	// model. Constant for the provider's lifetime; must match the search
	// index's column dimension.
	Dimensions() int

	// ModelID returns the provider-specific model identifier, recorded
	// alongside indexed vectors so stale embeddings can be detected.
	ModelID() string
}
