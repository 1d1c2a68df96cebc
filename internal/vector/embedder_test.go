package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"testing"

	"github.com/planify-ai/ragserver/internal/llm"
)

// scriptedEmbedProvider derives a deterministic vector from each text and
// records the batch sizes it was called with.
type scriptedEmbedProvider struct {
	dimension  int
	batchSizes []int
	err        error
}

func (p *scriptedEmbedProvider) Complete(_ context.Context, _ *llm.Prompt, _ *llm.RequestOptions) (*llm.Response, error) {
	return nil, errors.New("not a completion provider")
}

func (p *scriptedEmbedProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if p.err != nil {
		return nil, p.err
	}
	p.batchSizes = append(p.batchSizes, len(texts))
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v := make([]float32, p.dimension)
		for j := range v {
			v[j] = float32(len(t) + j + 1)
		}
		out[i] = v
	}
	return out, nil
}

func (p *scriptedEmbedProvider) Name() string { return "scripted" }

func TestEmbedder_UnitNorm(t *testing.T) {
	e := NewEmbedder(&scriptedEmbedProvider{dimension: 4}, 0, 4)

	vectors, err := e.Embed(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for i, v := range vectors {
		var sum float64
		for _, x := range v {
			sum += float64(x) * float64(x)
		}
		if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
			t.Errorf("vector %d norm = %v, want 1", i, math.Sqrt(sum))
		}
	}
}

func TestEmbedder_BatchingPreservesOrderAndValues(t *testing.T) {
	texts := make([]string, 10)
	for i := range texts {
		texts[i] = strings.Repeat("x", i+1)
	}

	whole := NewEmbedder(&scriptedEmbedProvider{dimension: 3}, 0, 3)
	wholeVectors, err := whole.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	batchedProvider := &scriptedEmbedProvider{dimension: 3}
	batched := NewEmbedder(batchedProvider, 3, 3)
	batchedVectors, err := batched.Embed(context.Background(), texts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got, want := fmt.Sprint(batchedProvider.batchSizes), fmt.Sprint([]int{3, 3, 3, 1}); got != want {
		t.Errorf("batch sizes = %v, want %v", got, want)
	}

	if len(batchedVectors) != len(wholeVectors) {
		t.Fatalf("got %d vectors, want %d", len(batchedVectors), len(wholeVectors))
	}
	for i := range wholeVectors {
		for j := range wholeVectors[i] {
			if batchedVectors[i][j] != wholeVectors[i][j] {
				t.Fatalf("vector %d differs between batched and whole runs", i)
			}
		}
	}
}

func TestEmbedder_DimensionMismatch(t *testing.T) {
	e := NewEmbedder(&scriptedEmbedProvider{dimension: 4}, 0, 8)

	_, err := e.Embed(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected dimension mismatch error")
	}
	if !strings.Contains(err.Error(), "dimension") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestEmbedder_ProviderErrorPropagates(t *testing.T) {
	e := NewEmbedder(&scriptedEmbedProvider{err: errors.New("model overloaded")}, 2, 4)

	_, err := e.Embed(context.Background(), []string{"a", "b", "c"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "model overloaded") {
		t.Errorf("provider error not propagated: %v", err)
	}
}

func TestEmbedder_EmptyInput(t *testing.T) {
	p := &scriptedEmbedProvider{dimension: 4}
	e := NewEmbedder(p, 2, 4)

	vectors, err := e.Embed(context.Background(), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vectors) != 0 {
		t.Errorf("expected no vectors, got %d", len(vectors))
	}
	if len(p.batchSizes) != 0 {
		t.Errorf("provider should not be called for empty input")
	}
}

func TestEmbedder_EmbedOne(t *testing.T) {
	e := NewEmbedder(&scriptedEmbedProvider{dimension: 4}, 2, 4)

	v, err := e.EmbedOne(context.Background(), "question")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(v) != 4 {
		t.Fatalf("dimension = %d, want 4", len(v))
	}
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if math.Abs(math.Sqrt(sum)-1) > 1e-5 {
		t.Errorf("norm = %v, want 1", math.Sqrt(sum))
	}
}

func TestNormalize_ZeroVector(t *testing.T) {
	v := []float32{0, 0, 0}
	normalize(v)
	for i, x := range v {
		if x != 0 {
			t.Errorf("v[%s] = %v, want 0", strconv.Itoa(i), x)
		}
	}
}
