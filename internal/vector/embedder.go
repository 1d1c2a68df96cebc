package vector

import (
	"context"
	"fmt"
	"math"

	"github.com/planify-ai/ragserver/internal/llm"
)

// Embedder wraps a model provider to produce fixed-dimension unit vectors.
// Large inputs are sent in batches to bound peak memory against the remote
// service; batching never changes the numeric result.
type Embedder struct {
	provider  llm.Provider
	batchSize int
	dimension int
}

// NewEmbedder creates an Embedder. dimension > 0 enables output validation;
// batchSize <= 0 disables batching.
func NewEmbedder(provider llm.Provider, batchSize, dimension int) *Embedder {
	return &Embedder{provider: provider, batchSize: batchSize, dimension: dimension}
}

// Dimension returns the configured vector dimension.
func (e *Embedder) Dimension() int { return e.dimension }

// Embed maps texts to unit-normalized vectors, preserving input order.
// Any provider failure aborts the whole call.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	batch := e.batchSize
	if batch <= 0 {
		batch = len(texts)
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += batch {
		end := start + batch
		if end > len(texts) {
			end = len(texts)
		}

		out, err := e.provider.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding batch [%d:%d]: %w", start, end, err)
		}
		if len(out) != end-start {
			return nil, fmt.Errorf("embedding count mismatch: got %d, want %d", len(out), end-start)
		}
		vectors = append(vectors, out...)
	}

	for i, v := range vectors {
		if e.dimension > 0 && len(v) != e.dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, want %d", i, len(v), e.dimension)
		}
		normalize(v)
	}
	return vectors, nil
}

// EmbedOne embeds a single text with no batching.
func (e *Embedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	out, err := e.provider.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}
	if len(out) != 1 {
		return nil, fmt.Errorf("embedding count mismatch: got %d, want 1", len(out))
	}
	v := out[0]
	if e.dimension > 0 && len(v) != e.dimension {
		return nil, fmt.Errorf("embedding has dimension %d, want %d", len(v), e.dimension)
	}
	normalize(v)
	return v, nil
}

// normalize scales v to unit L2 norm in place. Zero vectors are left alone.
func normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}
