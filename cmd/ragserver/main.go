package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/planify-ai/ragserver/internal/chunk"
	"github.com/planify-ai/ragserver/internal/config"
	"github.com/planify-ai/ragserver/internal/document"
	"github.com/planify-ai/ragserver/internal/document/ocr"
	"github.com/planify-ai/ragserver/internal/document/pdf"
	"github.com/planify-ai/ragserver/internal/llm"
	"github.com/planify-ai/ragserver/internal/llm/gemini"
	"github.com/planify-ai/ragserver/internal/llm/openai"
	"github.com/planify-ai/ragserver/internal/observability"
	"github.com/planify-ai/ragserver/internal/rag"
	"github.com/planify-ai/ragserver/internal/server"
	"github.com/planify-ai/ragserver/internal/vector"
)

func main() {
	// Local development reads keys from .env; a missing file is fine.
	_ = godotenv.Load()

	var (
		configPath string
		docPath    string
	)

	rootCmd := &cobra.Command{
		Use:   "ragserver",
		Short: "Retrieval-augmented question answering over a single document",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "configs/ragserver.yaml", "Config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Ingest the document and serve the question-answering API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(configPath, docPath)
		},
	}
	serveCmd.Flags().StringVar(&docPath, "document", "", "Override the configured document path")

	ingestCmd := &cobra.Command{
		Use:   "ingest",
		Short: "Run document ingestion and print the per-page report",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runIngest(configPath, docPath)
		},
	}
	ingestCmd.Flags().StringVar(&docPath, "document", "", "Override the configured document path")

	askCmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ingest the document and answer one question",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAsk(configPath, docPath, strings.Join(args, " "))
		},
	}
	askCmd.Flags().StringVar(&docPath, "document", "", "Override the configured document path")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "List available model providers",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("Available model providers:")
			fmt.Println()
			for name, url := range llm.KnownProviders {
				fmt.Printf("  %-10s %s\n", name, url)
			}
			fmt.Println("  custom     (set base_url to any OpenAI-compatible endpoint)")
			fmt.Println()
			fmt.Println("Configure in ragserver.yaml or via environment:")
			fmt.Println("  RAGSERVER_GENERATION_PROVIDER=gemini")
			fmt.Println("  RAGSERVER_GENERATION_API_KEY=AIza...")
			fmt.Println("  RAGSERVER_EMBEDDING_PROVIDER=ollama")
			fmt.Println("  RAGSERVER_EMBEDDING_MODEL=nomic-embed-text")
		},
	}

	rootCmd.AddCommand(serveCmd, ingestCmd, askCmd, providersCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// app holds the wired components shared by the subcommands.
type app struct {
	cfg        *config.Config
	logger     *slog.Logger
	metrics    *observability.Metrics
	repo       vector.Repository
	embedder   *vector.Embedder
	generation llm.Provider
	recognizer *ocr.Tesseract
	pipeline   *rag.Pipeline
}

func (a *app) close() {
	if a.recognizer != nil {
		if err := a.recognizer.Close(); err != nil {
			a.logger.Warn("closing OCR engine", "error", err)
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.logger.Warn("closing vector index", "error", err)
		}
	}
}

func buildApp(ctx context.Context, configPath, docPath string, needGeneration bool) (*app, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: config load failed (%v), using defaults\n", err)
		cfg = config.Default()
	}
	if docPath != "" {
		cfg.Document.Path = docPath
	}

	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	if cfg.Document.Path == "" {
		return nil, errors.New("no document configured: set document.path or pass --document")
	}

	factory := newProviderFactory()

	embedding, err := factory.Create(llm.ProviderConfig{
		Provider:   cfg.Embedding.Provider,
		APIKey:     cfg.Embedding.APIKey,
		BaseURL:    cfg.Embedding.BaseURL,
		EmbedModel: cfg.Embedding.Model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embedding provider: %w", err)
	}
	if embedding == nil {
		return nil, errors.New("an embedding provider is required")
	}

	var generation llm.Provider
	if needGeneration {
		generation, err = factory.Create(llm.ProviderConfig{
			Provider:   cfg.Generation.Provider,
			APIKey:     cfg.Generation.APIKey,
			Model:      cfg.Generation.Model,
			BaseURL:    cfg.Generation.BaseURL,
			Timeout:    cfg.Generation.Timeout,
			MaxRetries: cfg.Generation.MaxRetries,
		})
		if err != nil {
			return nil, fmt.Errorf("creating generation provider: %w", err)
		}
		if generation == nil {
			return nil, errors.New("a generation provider is required")
		}
		if rpm := cfg.Generation.RequestsPerMinute; rpm > 0 {
			generation = llm.NewRateLimitProvider(generation, &llm.RateLimitConfig{RequestsPerMinute: rpm})
		}
	}

	repo, err := newRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}

	// OCR is best effort: without a Tesseract installation pages still load,
	// images just contribute no text.
	recognizer, err := ocr.NewTesseract()
	if err != nil {
		logger.Warn("OCR unavailable, images will be skipped", "error", err)
		recognizer = nil
	}
	var rec document.Recognizer
	if recognizer != nil {
		rec = recognizer
	}

	metrics := observability.NewMetrics()
	embedder := vector.NewEmbedder(embedding, cfg.Embedding.BatchSize, cfg.Embedding.Dimension)
	pipeline := rag.NewPipeline(
		cfg.Document.Path,
		func(path string) (document.Source, error) { return pdf.Open(path) },
		document.NewLoader(rec, logger),
		chunk.New(cfg.Chunking.MaxSize, cfg.Chunking.Overlap),
		embedder,
		repo,
		logger,
		metrics,
	)

	return &app{
		cfg:        cfg,
		logger:     logger,
		metrics:    metrics,
		repo:       repo,
		embedder:   embedder,
		generation: generation,
		recognizer: recognizer,
		pipeline:   pipeline,
	}, nil
}

func newProviderFactory() *llm.ProviderFactory {
	factory := llm.NewFactory()
	factory.Register("gemini", func(c llm.ProviderConfig) (llm.Provider, error) {
		return gemini.New(c.APIKey, c.Model, c.BaseURL, c.EmbedModel), nil
	})
	// OpenAI-compatible endpoints share one client.
	for _, p := range []struct{ name, url string }{
		{"openai", llm.KnownProviders["openai"]},
		{"ollama", llm.KnownProviders["ollama"]},
		{"custom", ""},
	} {
		p := p
		factory.Register(p.name, func(c llm.ProviderConfig) (llm.Provider, error) {
			base := c.BaseURL
			if base == "" {
				base = p.url
			}
			return openai.New(c.APIKey, c.Model, base, c.EmbedModel), nil
		})
	}
	return factory
}

func newRepository(ctx context.Context, cfg *config.Config) (vector.Repository, error) {
	switch cfg.Index.Provider {
	case "qdrant":
		repo, err := vector.NewQdrant(ctx, cfg.Index.Host, cfg.Index.Port, cfg.Index.Collection, cfg.Index.UpsertBatchSize)
		if err != nil {
			return nil, fmt.Errorf("connecting to qdrant: %w", err)
		}
		return repo, nil
	case "memory":
		return vector.NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown index provider %q", cfg.Index.Provider)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

func runServe(configPath, docPath string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, configPath, docPath, true)
	if err != nil {
		return err
	}

	tracing, err := observability.InitTracing(ctx, &observability.TracingConfig{
		ServiceName:  "ragserver",
		Environment:  a.cfg.Tracing.Environment,
		OTLPEndpoint: a.cfg.Tracing.OTLPEndpoint,
		SampleRate:   a.cfg.Tracing.SampleRate,
	})
	if err != nil {
		return err
	}

	synthesizer := rag.NewSynthesizer(a.generation, a.cfg.Generation.Temperature, a.cfg.Generation.MaxTokens, a.logger, a.metrics)
	api := server.NewAPI(&server.APIConfig{ListenAddr: a.cfg.Server.Addr}, synthesizer, a.metrics.Handler(), a.logger)

	health := server.NewHealthServer(&server.HealthConfig{Version: "0.1.0"})
	health.RegisterCheck("vector_index", server.VectorIndexHealthChecker(func(ctx context.Context) error {
		_, err := a.repo.Search(ctx, make([]float32, a.embedder.Dimension()), 1, nil)
		return err
	}))
	health.RegisterCheck("generation", server.LLMHealthChecker(a.generation.Name(), nil))

	shutdown := server.NewShutdownHandler(nil)
	shutdown.RegisterHook("api-server", 10, func(ctx context.Context) error {
		return api.Stop(ctx)
	})
	if a.recognizer != nil {
		hook := server.OCRShutdownHook(a.recognizer.Close)
		shutdown.RegisterHook(hook.Name, hook.Priority, hook.Fn)
	}
	shutdown.RegisterHook("tracing", 80, tracing.Shutdown)
	indexHook := server.VectorIndexShutdownHook(a.repo.Close)
	shutdown.RegisterHook(indexHook.Name, indexHook.Priority, indexHook.Fn)
	shutdown.RegisterHook("health-server", 95, func(ctx context.Context) error {
		health.Shutdown()
		return nil
	})
	shutdown.Start()

	go func() {
		if err := health.ListenAndServe(a.cfg.Server.HealthAddr); err != nil {
			a.logger.Error("health server stopped", "error", err)
		}
	}()

	// The API accepts connections immediately and answers 503 until the
	// pipeline hands over a retriever.
	go func() {
		retriever, report, err := a.pipeline.Initialize(ctx)
		if err != nil {
			a.logger.Error("pipeline initialization failed", "error", err)
			health.SetLive(false)
			return
		}
		api.SetRetriever(retriever)
		health.RegisterCheck("ingestion", server.IngestionHealthChecker(func() (int, int) {
			return report.Loaded(), report.SkippedPages()
		}))
		health.SetReady(true)
		a.logger.Info("pipeline initialized successfully")
	}()

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- api.Start()
	}()

	select {
	case err := <-serveErr:
		shutdown.Shutdown()
		shutdown.Wait()
		return err
	case <-shutdown.Done():
		return nil
	}
}

func runIngest(configPath, docPath string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, configPath, docPath, false)
	if err != nil {
		return err
	}
	defer a.close()

	start := time.Now()
	_, report, err := a.pipeline.Initialize(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("Ingested %s in %s\n", report.Source, time.Since(start).Round(time.Millisecond))
	fmt.Printf("  pages loaded:  %d\n", report.Loaded())
	fmt.Printf("  pages skipped: %d\n", report.SkippedPages())
	fmt.Printf("  failed images: %d\n", report.FailedImages())
	for _, outcome := range report.Outcomes {
		if outcome.Skipped {
			fmt.Printf("  page %d skipped: %s\n", outcome.Page, outcome.Reason)
		}
	}
	return nil
}

func runAsk(configPath, docPath, question string) error {
	ctx := context.Background()

	a, err := buildApp(ctx, configPath, docPath, true)
	if err != nil {
		return err
	}
	defer a.close()

	retriever, _, err := a.pipeline.Initialize(ctx)
	if err != nil {
		return err
	}

	synthesizer := rag.NewSynthesizer(a.generation, a.cfg.Generation.Temperature, a.cfg.Generation.MaxTokens, a.logger, a.metrics)
	result, err := synthesizer.Answer(ctx, question, retriever)
	if err != nil {
		return err
	}

	fmt.Println("\nAnswer:")
	fmt.Println(result.Answer)
	if len(result.References) > 0 {
		fmt.Println("\nReferences:")
		for _, ref := range result.References {
			fmt.Printf("Page: %d (Score: %s)\n", ref.Page, ref.Score)
			fmt.Println(ref.Content)
			fmt.Println(strings.Repeat("-", 80))
		}
	} else {
		fmt.Println("\nNo relevant document content was used in this response.")
	}
	return nil
}
