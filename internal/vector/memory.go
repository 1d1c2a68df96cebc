package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// MemoryRepository is an in-process Repository. It backs the "memory" index
// provider for local runs and doubles as the test substitute for Qdrant.
// Vectors are assumed unit-normalized, so similarity is a plain dot product.
type MemoryRepository struct {
	mu        sync.RWMutex
	dimension int
	docs      map[string]Document
}

// NewMemory creates an empty in-memory repository.
func NewMemory() *MemoryRepository {
	return &MemoryRepository{docs: make(map[string]Document)}
}

func (m *MemoryRepository) EnsureCollection(_ context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.dimension = dimension
	return nil
}

func (m *MemoryRepository) Upsert(_ context.Context, docs []Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range docs {
		if m.dimension > 0 && len(d.Vector) != m.dimension {
			return fmt.Errorf("document %s has dimension %d, want %d", d.ID, len(d.Vector), m.dimension)
		}
		m.docs[d.ID] = d
	}
	return nil
}

func (m *MemoryRepository) Search(_ context.Context, vector []float32, topK int, filter *Filter) ([]SearchResult, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	results := make([]SearchResult, 0, len(m.docs))
	for _, d := range m.docs {
		if !matches(d, filter) {
			continue
		}
		results = append(results, SearchResult{
			ID:        d.ID,
			Score:     dot(vector, d.Vector),
			Text:      d.Text,
			Page:      d.Page,
			HasImages: d.HasImages,
			Source:    d.Source,
		})
	}

	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if topK >= 0 && len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

func (m *MemoryRepository) Close() error { return nil }

// Len reports the number of stored documents.
func (m *MemoryRepository) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.docs)
}

// Get returns a stored document by id.
func (m *MemoryRepository) Get(id string) (Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	d, ok := m.docs[id]
	return d, ok
}

func matches(d Document, f *Filter) bool {
	if f == nil {
		return true
	}
	if len(f.Pages) > 0 {
		found := false
		for _, p := range f.Pages {
			if d.Page == p {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if f.HasImages != nil && d.HasImages != *f.HasImages {
		return false
	}
	return true
}

func dot(a, b []float32) float32 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float32
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
