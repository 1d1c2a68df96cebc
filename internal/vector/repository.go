package vector

import "context"

// Document is an indexed segment: its embedding plus the metadata the
// retrieval path needs to rebuild a candidate.
type Document struct {
	ID        string
	Text      string
	Page      int
	HasImages bool
	Source    string
	Vector    []float32
}

// SearchResult is a single match from a similarity search.
type SearchResult struct {
	ID        string
	Score     float32
	Text      string
	Page      int
	HasImages bool
	Source    string
}

// Filter narrows a similarity search by metadata. Nil slices/pointers mean
// "no constraint". These two predicates are the only capabilities the core
// assumes of the index.
type Filter struct {
	Pages     []int
	HasImages *bool
}

// Repository provides vector storage and similarity search over one collection.
type Repository interface {
	// EnsureCollection creates the collection for the given vector dimension
	// if it does not already exist.
	EnsureCollection(ctx context.Context, dimension int) error
	// Upsert inserts or updates documents, idempotent per id.
	Upsert(ctx context.Context, docs []Document) error
	// Search finds the top-k most similar documents, ordered by descending score.
	Search(ctx context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error)
	// Close releases resources.
	Close() error
}
