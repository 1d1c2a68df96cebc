package rag

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/planify-ai/ragserver/internal/llm"
	"github.com/planify-ai/ragserver/internal/observability"
)

const (
	// answerTopK is how many candidates feed one answer.
	answerTopK = 3

	// relevanceThreshold gates the context: when the best score falls below
	// it, the model answers from general knowledge with no references.
	relevanceThreshold = 0.2

	// referencePreviewLen bounds the quoted chunk text in a reference.
	referencePreviewLen = 500
)

// personaPrompt frames every completion. The question and retrieved context
// are appended as the user turn.
const personaPrompt = `You are "Planify AI," a highly intelligent and conversational AI assistant. Your primary role is to assist users in answering questions, providing guidance, engaging in meaningful conversations, and adapting to various topics with a natural and informative approach.

Greeting & Context Awareness: If the user initiates the conversation with a greeting (e.g., "Hi," "Hello," "Good morning"), respond warmly and naturally. Do not greet the user in every response—only when appropriate.
Conversational Memory: Maintain chat history context to provide coherent, continuous interactions while adapting responses based on previous exchanges.
General Knowledge & Assistance: Answer a wide range of questions, including general knowledge, technical topics, recommendations, problem-solving, and creative brainstorming.
Context Utilization: If relevant information from a retrieved knowledge base or document is available, use it to enhance responses. Otherwise, acknowledge when an answer is unavailable.
Concise & Clear Responses: Provide well-structured, concise answers with a maximum of ten sentences unless the question requires a more detailed explanation.
Adaptability & Tone: Adjust your response style and depth based on user intent—being friendly in casual chats, professional in formal queries, and empathetic when needed.
Avoid Unnecessary Repetition: Ensure responses are varied, avoiding redundant phrases unless necessary for clarity.
Instruction for Processing Questions:`

// Reference points an answer back at a retrieved chunk.
type Reference struct {
	Content string `json:"content"`
	Page    int    `json:"page"`
	Score   string `json:"score"`
}

// AnswerResult is the full outcome of one question.
type AnswerResult struct {
	Answer     string      `json:"answer"`
	References []Reference `json:"references"`
}

// Synthesizer turns a question plus retrieved context into a generated
// answer. It is stateless across calls.
type Synthesizer struct {
	provider    llm.Provider
	temperature float64
	maxTokens   int
	logger      *slog.Logger
	metrics     *observability.Metrics
}

// NewSynthesizer creates a Synthesizer. The provider is expected to carry
// its own retry policy; a failure surfacing here is final.
func NewSynthesizer(provider llm.Provider, temperature float64, maxTokens int, logger *slog.Logger, metrics *observability.Metrics) *Synthesizer {
	if logger == nil {
		logger = slog.Default()
	}
	if metrics == nil {
		metrics = observability.NewMetrics()
	}
	return &Synthesizer{
		provider:    provider,
		temperature: temperature,
		maxTokens:   maxTokens,
		logger:      logger,
		metrics:     metrics,
	}
}

// Answer retrieves up to three candidates for the question, gates them on
// the relevance threshold, and asks the generative model. A below-threshold
// (or empty) retrieval still produces an answer, just with an empty context
// and no references.
func (s *Synthesizer) Answer(ctx context.Context, question string, retriever *Retriever) (*AnswerResult, error) {
	if retriever == nil {
		return nil, ErrNotReady
	}

	candidates, err := retriever.Search(ctx, question, answerTopK, nil)
	if err != nil {
		s.metrics.RecordQuestion(false, err)
		return nil, err
	}

	contextText, references := gate(candidates)
	if contextText == "" {
		s.logger.Info("no relevant context", "question_len", len(question), "candidates", len(candidates))
	}

	answer, err := s.complete(ctx, question, contextText)
	if err != nil {
		s.metrics.RecordQuestion(contextText == "", err)
		return nil, fmt.Errorf("generate answer: %w", err)
	}

	s.metrics.RecordQuestion(contextText == "", nil)
	if references == nil {
		references = []Reference{}
	}
	return &AnswerResult{Answer: answer, References: references}, nil
}

func (s *Synthesizer) complete(ctx context.Context, question, contextText string) (string, error) {
	ctx, span := observability.StartLLMSpan(ctx, s.provider.Name(), "")
	defer span.End()

	prompt := &llm.Prompt{
		SystemPrompt: personaPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("Question: %s\n\nContext (if available): %s\n\nAnswer:", question, contextText),
		}},
	}
	opts := &llm.RequestOptions{
		Temperature: &s.temperature,
		MaxTokens:   &s.maxTokens,
	}

	start := time.Now()
	resp, err := s.provider.Complete(ctx, prompt, opts)
	if err != nil {
		observability.RecordError(span, err)
		return "", err
	}

	observability.RecordLLMMetrics(span, resp.InputTokens, resp.OutputTokens, time.Since(start))
	s.metrics.RecordLLMRequest(time.Since(start), resp.InputTokens+resp.OutputTokens)
	return resp.Content, nil
}

// gate applies the relevance threshold: the whole candidate set stands or
// falls with its best score.
func gate(candidates []Candidate) (string, []Reference) {
	if len(candidates) == 0 {
		return "", nil
	}

	maxScore := candidates[0].Score
	for _, c := range candidates[1:] {
		if c.Score > maxScore {
			maxScore = c.Score
		}
	}
	if maxScore < relevanceThreshold {
		return "", nil
	}

	texts := make([]string, 0, len(candidates))
	references := make([]Reference, 0, len(candidates))
	for _, c := range candidates {
		texts = append(texts, c.Text)
		references = append(references, Reference{
			Content: preview(c.Text),
			Page:    c.Page,
			Score:   fmt.Sprintf("%.4f", c.Score),
		})
	}
	return strings.Join(texts, "\n\n"), references
}

// preview truncates chunk text to the reference length. The marker is
// appended unconditionally, even for short chunks.
func preview(text string) string {
	runes := []rune(text)
	if len(runes) > referencePreviewLen {
		runes = runes[:referencePreviewLen]
	}
	return string(runes) + "..."
}
