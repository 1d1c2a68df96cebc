// Package rag ties the ingestion and answering flows together: a Pipeline
// loads one document into the vector index, and the Retriever and
// Synthesizer answer questions against it.
package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/planify-ai/ragserver/internal/observability"
	"github.com/planify-ai/ragserver/internal/vector"
)

// ErrNotReady is returned when a question arrives before ingestion finished.
var ErrNotReady = errors.New("retriever not ready: document ingestion has not completed")

// DefaultTopK is how many candidates a raw search returns when the caller
// passes no limit.
const DefaultTopK = 5

// Filters narrows a search to chunks from the given pages or by the
// has-images flag. A nil Filters or empty field matches everything.
type Filters struct {
	Pages     []int
	HasImages *bool
}

// Candidate is one retrieved chunk, in descending score order.
type Candidate struct {
	Text      string
	Page      int
	HasImages bool
	Score     float32
}

// Retriever performs similarity search over the ingested document. It does
// no re-ranking: candidates come back in the index's score order.
type Retriever struct {
	embedder *vector.Embedder
	repo     vector.Repository
}

// NewRetriever creates a Retriever over an already-populated index.
func NewRetriever(embedder *vector.Embedder, repo vector.Repository) *Retriever {
	return &Retriever{embedder: embedder, repo: repo}
}

// Search embeds the query and returns up to topK candidates. topK <= 0 uses
// DefaultTopK. Unlike ingestion-time failures, a search failure is scoped to
// this one query.
func (r *Retriever) Search(ctx context.Context, query string, topK int, filters *Filters) ([]Candidate, error) {
	if topK <= 0 {
		topK = DefaultTopK
	}

	ctx, span := observability.StartRetrieveSpan(ctx, topK)
	defer span.End()

	queryVector, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("embed query: %w", err)
	}

	results, err := r.repo.Search(ctx, queryVector, topK, toFilter(filters))
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("search index: %w", err)
	}

	candidates := make([]Candidate, 0, len(results))
	for _, res := range results {
		candidates = append(candidates, Candidate{
			Text:      res.Text,
			Page:      res.Page,
			HasImages: res.HasImages,
			Score:     res.Score,
		})
	}

	maxScore := 0.0
	if len(candidates) > 0 {
		maxScore = float64(candidates[0].Score)
	}
	observability.RecordRetrieveResult(span, len(candidates), maxScore)
	return candidates, nil
}

func toFilter(f *Filters) *vector.Filter {
	if f == nil {
		return nil
	}
	return &vector.Filter{Pages: f.Pages, HasImages: f.HasImages}
}
