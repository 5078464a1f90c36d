package gateway

import (
	"context"
	"errors"
	"fmt"

	"github.com/JanDamek/jervis-sub011/internal/config"
	"github.com/JanDamek/jervis-sub011/internal/embeddings"
)

// RegisterEmbedder attaches an embedding provider for a provider tag.
// Embedding candidates referencing an unregistered tag are skipped during
// fallback.
func (g *Gateway) RegisterEmbedder(providerTag string, provider embeddings.Provider) {
	if g.embedders == nil {
		g.embedders = make(map[string]embeddings.Provider)
	}
	g.embedders[providerTag] = provider
}

// Embed derives an embedding vector using the embedding usage tag's
// candidate order, with the same permit and fallback discipline as text
// calls.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	candidates := g.pool.selectCandidates(config.UsageEmbedding, false, 0)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoCandidates, config.UsageEmbedding)
	}

	var lastErr error
	for _, candidate := range candidates {
		embedder, ok := g.embedders[candidate.Provider]
		if !ok {
			lastErr = fmt.Errorf("no embedder registered for provider %q", candidate.Provider)
			continue
		}
		release, err := g.limiter.Acquire(ctx, candidate.Provider)
		if err != nil {
			return nil, err
		}
		vector, err := embedder.Embed(ctx, text)
		release()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			lastErr = err
			g.recordFailure(ctx, candidate, err)
			continue
		}
		return vector, nil
	}
	return nil, fmt.Errorf("all embedding candidates failed: %w", lastErr)
}

// EmbedBatch embeds multiple texts with the same candidate discipline.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	candidates := g.pool.selectCandidates(config.UsageEmbedding, false, 0)
	if len(candidates) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoCandidates, config.UsageEmbedding)
	}

	var lastErr error
	for _, candidate := range candidates {
		embedder, ok := g.embedders[candidate.Provider]
		if !ok {
			lastErr = fmt.Errorf("no embedder registered for provider %q", candidate.Provider)
			continue
		}
		release, err := g.limiter.Acquire(ctx, candidate.Provider)
		if err != nil {
			return nil, err
		}
		vectors, err := embedder.EmbedBatch(ctx, texts)
		release()
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			lastErr = err
			g.recordFailure(ctx, candidate, err)
			continue
		}
		return vectors, nil
	}
	return nil, fmt.Errorf("all embedding candidates failed: %w", lastErr)
}
