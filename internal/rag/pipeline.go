package rag

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/planify-ai/ragserver/internal/chunk"
	"github.com/planify-ai/ragserver/internal/document"
	"github.com/planify-ai/ragserver/internal/observability"
	"github.com/planify-ai/ragserver/internal/vector"
)

// OpenFunc opens the source document at path. Failure here is the one
// error that aborts a whole ingestion run before any page is read.
type OpenFunc func(path string) (document.Source, error)

// Pipeline runs one document through load, chunk, embed and upsert, and
// hands back a ready Retriever. The stages run strictly in sequence; an
// embedding or index failure aborts the run, while page and image failures
// only degrade it (see document.Report).
type Pipeline struct {
	path     string
	open     OpenFunc
	loader   *document.Loader
	chunker  *chunk.Chunker
	embedder *vector.Embedder
	repo     vector.Repository
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewPipeline wires the ingestion stages together.
func NewPipeline(path string, open OpenFunc, loader *document.Loader, chunker *chunk.Chunker, embedder *vector.Embedder, repo vector.Repository, logger *slog.Logger, metrics *observability.Metrics) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Pipeline{
		path:     path,
		open:     open,
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		repo:     repo,
		logger:   logger,
		metrics:  metrics,
	}
}

// Initialize ingests the document and returns a Retriever over the
// populated index, plus the per-page report of the run. Until it returns,
// answering must refuse with ErrNotReady.
func (p *Pipeline) Initialize(ctx context.Context) (*Retriever, *document.Report, error) {
	start := time.Now()
	ctx, span := observability.StartIngestSpan(ctx, p.path)
	defer span.End()

	p.logger.Info("initializing pipeline", "document", p.path)

	if err := p.repo.EnsureCollection(ctx, p.embedder.Dimension()); err != nil {
		observability.RecordError(span, err)
		return nil, nil, fmt.Errorf("ensure collection: %w", err)
	}

	src, err := p.open(p.path)
	if err != nil {
		observability.RecordError(span, err)
		return nil, nil, fmt.Errorf("open document: %w", err)
	}
	defer src.Close()

	pages, report, err := p.loader.Load(ctx, src, p.path)
	if err != nil {
		observability.RecordError(span, err)
		return nil, nil, err
	}

	segments := p.chunker.Chunk(pages)
	p.logger.Info("created chunks", "chunks", len(segments), "pages", report.Loaded())

	if err := p.index(ctx, segments); err != nil {
		observability.RecordError(span, err)
		return nil, nil, err
	}

	p.metrics.RecordIngest(time.Since(start), report.Loaded(), report.SkippedPages(), report.FailedImages(), len(segments))
	observability.RecordIngestResult(span, report.Loaded(), report.SkippedPages(), len(segments))
	p.logger.Info("pipeline ready", "records", len(segments), "duration", time.Since(start))

	return NewRetriever(p.embedder, p.repo), report, nil
}

// index embeds every segment and writes the records to the vector index.
// Both steps are all-or-nothing.
func (p *Pipeline) index(ctx context.Context, segments []chunk.Segment) error {
	if len(segments) == 0 {
		p.logger.Warn("document produced no chunks", "document", p.path)
		return nil
	}

	texts := make([]string, len(segments))
	for i, seg := range segments {
		texts[i] = seg.Text
	}

	vectors, err := p.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}

	docs := make([]vector.Document, len(segments))
	for i, seg := range segments {
		docs[i] = vector.Document{
			ID:        seg.ID,
			Text:      seg.Text,
			Page:      seg.Page,
			HasImages: seg.HasImages,
			Source:    seg.Source,
			Vector:    vectors[i],
		}
	}

	if err := p.repo.Upsert(ctx, docs); err != nil {
		return fmt.Errorf("upsert records: %w", err)
	}

	p.metrics.RecordsUpserted.Add(float64(len(docs)))
	p.logger.Info("inserted records", "records", len(docs))
	return nil
}
