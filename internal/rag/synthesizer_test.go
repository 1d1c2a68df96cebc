package rag

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/planify-ai/ragserver/internal/llm"
	"github.com/planify-ai/ragserver/internal/vector"
)

// fakeProvider serves scripted embeddings and a canned completion.
type fakeProvider struct {
	vectors     map[string][]float32
	answer      string
	completeErr error
	embedErr    error

	lastPrompt *llm.Prompt
	lastOpts   *llm.RequestOptions
}

func (f *fakeProvider) Complete(_ context.Context, prompt *llm.Prompt, opts *llm.RequestOptions) (*llm.Response, error) {
	f.lastPrompt = prompt
	f.lastOpts = opts
	if f.completeErr != nil {
		return nil, f.completeErr
	}
	return &llm.Response{Content: f.answer, InputTokens: 10, OutputTokens: 20}, nil
}

func (f *fakeProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := f.vectors[text]
		if !ok {
			return nil, fmt.Errorf("no scripted vector for %q", text)
		}
		out[i] = append([]float32(nil), v...)
	}
	return out, nil
}

func (f *fakeProvider) Name() string { return "fake" }

func seedRepo(t *testing.T, docs ...vector.Document) *vector.MemoryRepository {
	t.Helper()
	repo := vector.NewMemory()
	if err := repo.EnsureCollection(context.Background(), 2); err != nil {
		t.Fatal(err)
	}
	if len(docs) > 0 {
		if err := repo.Upsert(context.Background(), docs); err != nil {
			t.Fatal(err)
		}
	}
	return repo
}

func TestGate_EmptyCandidates(t *testing.T) {
	contextText, refs := gate(nil)
	if contextText != "" || refs != nil {
		t.Errorf("got context %q, refs %v; want empty", contextText, refs)
	}
}

func TestGate_Threshold(t *testing.T) {
	tests := []struct {
		name     string
		scores   []float32
		wantRefs int
	}{
		{"well above", []float32{0.85, 0.5, 0.3}, 3},
		{"exactly at threshold", []float32{0.2}, 1},
		{"just below", []float32{0.19999}, 0},
		{"all below", []float32{0.1, 0.05, 0.01}, 0},
		{"one above carries the set", []float32{0.1, 0.45, 0.05}, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var candidates []Candidate
			for i, score := range tt.scores {
				candidates = append(candidates, Candidate{Text: fmt.Sprintf("chunk %d", i), Page: i + 1, Score: score})
			}

			contextText, refs := gate(candidates)
			if len(refs) != tt.wantRefs {
				t.Fatalf("got %d references, want %d", len(refs), tt.wantRefs)
			}
			if tt.wantRefs == 0 && contextText != "" {
				t.Errorf("gated set must produce empty context, got %q", contextText)
			}
			if tt.wantRefs > 0 && !strings.Contains(contextText, "chunk 0") {
				t.Errorf("context missing candidate text: %q", contextText)
			}
		})
	}
}

func TestGate_ScoreFormatting(t *testing.T) {
	_, refs := gate([]Candidate{{Text: "relevant", Page: 3, Score: 0.85}})
	if len(refs) != 1 {
		t.Fatalf("got %d references, want 1", len(refs))
	}
	if refs[0].Score != "0.8500" {
		t.Errorf("score = %q, want %q", refs[0].Score, "0.8500")
	}
	if refs[0].Page != 3 {
		t.Errorf("page = %d, want 3", refs[0].Page)
	}
}

func TestGate_ContextJoinsWithBlankLine(t *testing.T) {
	contextText, _ := gate([]Candidate{
		{Text: "first", Score: 0.9},
		{Text: "second", Score: 0.8},
	})
	if contextText != "first\n\nsecond" {
		t.Errorf("context = %q", contextText)
	}
}

func TestPreview_ShortTextKeepsMarker(t *testing.T) {
	got := preview("0123456789")
	if got != "0123456789..." {
		t.Errorf("preview = %q, want %q", got, "0123456789...")
	}
}

func TestPreview_LongTextTruncated(t *testing.T) {
	long := strings.Repeat("a", 600)
	got := preview(long)
	if len(got) != referencePreviewLen+3 {
		t.Errorf("preview length = %d, want %d", len(got), referencePreviewLen+3)
	}
	if !strings.HasSuffix(got, "...") {
		t.Error("preview must end with the truncation marker")
	}
}

func TestAnswer_WithRelevantContext(t *testing.T) {
	provider := &fakeProvider{
		answer: "The strategy runs to 2028.",
		vectors: map[string][]float32{
			"what is the plan": {1, 0},
		},
	}
	repo := seedRepo(t, vector.Document{
		ID: "0", Text: "relevant chunk", Page: 3, Source: "doc.pdf", Vector: []float32{1, 0},
	})
	retriever := NewRetriever(vector.NewEmbedder(provider, 0, 2), repo)

	result, err := NewSynthesizer(provider, 0.7, 512, nil, nil).Answer(context.Background(), "what is the plan", retriever)
	if err != nil {
		t.Fatal(err)
	}

	if result.Answer != "The strategy runs to 2028." {
		t.Errorf("answer = %q", result.Answer)
	}
	if len(result.References) != 1 {
		t.Fatalf("got %d references, want 1", len(result.References))
	}
	ref := result.References[0]
	if ref.Page != 3 || ref.Score != "1.0000" || ref.Content != "relevant chunk..." {
		t.Errorf("reference = %+v", ref)
	}

	if provider.lastPrompt.SystemPrompt != personaPrompt {
		t.Error("completion must carry the persona system prompt")
	}
	user := provider.lastPrompt.Messages[0].Content
	if !strings.Contains(user, "Question: what is the plan") || !strings.Contains(user, "relevant chunk") {
		t.Errorf("user message = %q", user)
	}
	if *provider.lastOpts.Temperature != 0.7 || *provider.lastOpts.MaxTokens != 512 {
		t.Errorf("options = %+v", provider.lastOpts)
	}
}

func TestAnswer_NoMatchesStillAnswers(t *testing.T) {
	provider := &fakeProvider{
		answer:  "I don't have document context for that.",
		vectors: map[string][]float32{"unrelated": {0, 1}},
	}
	retriever := NewRetriever(vector.NewEmbedder(provider, 0, 2), seedRepo(t))

	result, err := NewSynthesizer(provider, 0.7, 512, nil, nil).Answer(context.Background(), "unrelated", retriever)
	if err != nil {
		t.Fatal(err)
	}

	if result.Answer == "" {
		t.Error("expected an answer from general knowledge")
	}
	if result.References == nil || len(result.References) != 0 {
		t.Errorf("references = %v, want empty", result.References)
	}
	if !strings.Contains(provider.lastPrompt.Messages[0].Content, "Context (if available): \n") {
		t.Errorf("expected empty context in prompt, got %q", provider.lastPrompt.Messages[0].Content)
	}
}

func TestAnswer_BelowThresholdGated(t *testing.T) {
	// Query vector nearly orthogonal to the stored chunk: positive score,
	// but under the relevance threshold.
	provider := &fakeProvider{
		answer: "general knowledge answer",
		vectors: map[string][]float32{
			"faint match": {0.1, 0.99499},
		},
	}
	repo := seedRepo(t, vector.Document{
		ID: "0", Text: "stored chunk", Page: 1, Source: "doc.pdf", Vector: []float32{1, 0},
	})
	retriever := NewRetriever(vector.NewEmbedder(provider, 0, 2), repo)

	result, err := NewSynthesizer(provider, 0.7, 512, nil, nil).Answer(context.Background(), "faint match", retriever)
	if err != nil {
		t.Fatal(err)
	}
	if len(result.References) != 0 {
		t.Errorf("below-threshold match must yield no references, got %v", result.References)
	}
	if strings.Contains(provider.lastPrompt.Messages[0].Content, "stored chunk") {
		t.Error("gated chunk must not reach the prompt")
	}
}

func TestAnswer_NilRetriever(t *testing.T) {
	provider := &fakeProvider{}
	_, err := NewSynthesizer(provider, 0.7, 512, nil, nil).Answer(context.Background(), "question", nil)
	if !errors.Is(err, ErrNotReady) {
		t.Errorf("expected ErrNotReady, got %v", err)
	}
}

func TestAnswer_CompletionFailure(t *testing.T) {
	provider := &fakeProvider{
		completeErr: errors.New("model unavailable"),
		vectors:     map[string][]float32{"question": {1, 0}},
	}
	retriever := NewRetriever(vector.NewEmbedder(provider, 0, 2), seedRepo(t))

	_, err := NewSynthesizer(provider, 0.7, 512, nil, nil).Answer(context.Background(), "question", retriever)
	if err == nil || !strings.Contains(err.Error(), "model unavailable") {
		t.Errorf("expected completion error, got %v", err)
	}
}

func TestAnswer_EmbedFailure(t *testing.T) {
	provider := &fakeProvider{embedErr: errors.New("embedding backend down")}
	retriever := NewRetriever(vector.NewEmbedder(provider, 0, 2), seedRepo(t))

	_, err := NewSynthesizer(provider, 0.7, 512, nil, nil).Answer(context.Background(), "question", retriever)
	if err == nil || !strings.Contains(err.Error(), "embedding backend down") {
		t.Errorf("expected embed error, got %v", err)
	}
	if provider.lastPrompt != nil {
		t.Error("completion must not run when retrieval fails")
	}
}
