// Package embeddings defines the embedding provider contract shared by the
// gateway, the retrieval subsystem, and the ingestion indexers.
package embeddings

import (
	"context"
)

// Provider computes embedding vectors for text.
type Provider interface {
	// Embed generates an embedding for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch generates embeddings for multiple texts.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Name returns the provider tag.
	Name() string

	// Dimension returns the embedding dimension.
	Dimension() int
}
