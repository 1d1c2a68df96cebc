package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/planify-ai/ragserver/internal/rag"
)

// Answerer produces an answer for one question. *rag.Synthesizer satisfies it.
type Answerer interface {
	Answer(ctx context.Context, question string, retriever *rag.Retriever) (*rag.AnswerResult, error)
}

// APIConfig configures the question-answering HTTP server.
type APIConfig struct {
	ListenAddr string // e.g. ":5000"
}

// DefaultAPIConfig returns sensible defaults.
func DefaultAPIConfig() *APIConfig {
	return &APIConfig{ListenAddr: ":5000"}
}

// API is the public question-answering HTTP server. It starts before
// ingestion finishes and refuses questions until a retriever is installed.
type API struct {
	config   *APIConfig
	answerer Answerer
	logger   *slog.Logger
	server   *http.Server

	mu        sync.RWMutex
	retriever *rag.Retriever
}

// NewAPI creates the server. metricsHandler may be nil to omit /metrics.
func NewAPI(config *APIConfig, answerer Answerer, metricsHandler http.Handler, logger *slog.Logger) *API {
	if config == nil {
		config = DefaultAPIConfig()
	}
	if logger == nil {
		logger = slog.Default()
	}

	a := &API{
		config:   config,
		answerer: answerer,
		logger:   logger,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", a.handleRoot)
	mux.HandleFunc("/ask", a.handleAsk)
	if metricsHandler != nil {
		mux.Handle("/metrics", metricsHandler)
	}

	handler := corsMiddleware(a.loggingMiddleware(mux))

	a.server = &http.Server{
		Addr:         config.ListenAddr,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 120 * time.Second, // generation can be slow
		IdleTimeout:  60 * time.Second,
	}

	return a
}

// SetRetriever installs the retriever once ingestion completed. Until then
// /ask responds with 503.
func (a *API) SetRetriever(r *rag.Retriever) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retriever = r
}

// Handler exposes the full middleware-wrapped handler, mainly for tests.
func (a *API) Handler() http.Handler {
	return a.server.Handler
}

// Start begins serving. It blocks until shutdown.
func (a *API) Start() error {
	a.logger.Info("starting api server", "addr", a.config.ListenAddr)
	if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server error: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the server.
func (a *API) Stop(ctx context.Context) error {
	a.logger.Info("stopping api server")
	return a.server.Shutdown(ctx)
}

type questionRequest struct {
	Question string `json:"question"`
}

type answerResponse struct {
	Answer string `json:"answer"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// handleRoot answers the basic health probe.
func (a *API) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{
		"status":  "OK",
		"message": "RAG chatbot API is running",
	})
}

// handleAsk handles question answering.
func (a *API) handleAsk(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondJSON(w, http.StatusMethodNotAllowed, errorResponse{Detail: "method not allowed"})
		return
	}

	var req questionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(w, http.StatusBadRequest, errorResponse{Detail: "invalid request body"})
		return
	}
	if req.Question == "" {
		respondJSON(w, http.StatusBadRequest, errorResponse{Detail: "question must not be empty"})
		return
	}

	a.mu.RLock()
	retriever := a.retriever
	a.mu.RUnlock()

	if retriever == nil {
		respondJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: "retriever is not initialized"})
		return
	}

	a.logger.Info("received question", "question_len", len(req.Question))

	result, err := a.answerer.Answer(r.Context(), req.Question, retriever)
	if err != nil {
		if errors.Is(err, rag.ErrNotReady) {
			respondJSON(w, http.StatusServiceUnavailable, errorResponse{Detail: err.Error()})
			return
		}
		a.logger.Error("error processing request", "error", err)
		respondJSON(w, http.StatusInternalServerError, errorResponse{Detail: err.Error()})
		return
	}

	respondJSON(w, http.StatusOK, answerResponse{Answer: result.Answer})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode JSON response", "error", err)
	}
}

// corsMiddleware opens the API to all origins.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs every request with a generated id.
func (a *API) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := uuid.NewString()
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r)
		a.logger.Debug("HTTP request",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start),
		)
	})
}
