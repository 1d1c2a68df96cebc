package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Defaults mirror the reference deployment of the pipeline.
const (
	DefaultEmbedBatchSize  = 256
	DefaultEmbedDimension  = 768
	DefaultUpsertBatchSize = 256
	DefaultChunkSize       = 1000
	DefaultChunkOverlap    = 200
)

// Config holds all application configuration.
type Config struct {
	Document   DocumentConfig   `mapstructure:"document"`
	Chunking   ChunkingConfig   `mapstructure:"chunking"`
	Index      IndexConfig      `mapstructure:"index"`
	Embedding  EmbeddingConfig  `mapstructure:"embedding"`
	Generation GenerationConfig `mapstructure:"generation"`
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// DocumentConfig points at the source document for ingestion.
type DocumentConfig struct {
	Path string `mapstructure:"path"`
}

// ChunkingConfig bounds segment size and overlap between consecutive segments.
type ChunkingConfig struct {
	MaxSize int `mapstructure:"max_size"`
	Overlap int `mapstructure:"overlap"`
}

// IndexConfig configures the vector index backend.
type IndexConfig struct {
	Provider        string `mapstructure:"provider"` // "qdrant" or "memory"
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Collection      string `mapstructure:"collection"`
	UpsertBatchSize int    `mapstructure:"upsert_batch_size"`
}

// EmbeddingConfig configures the embedding model service.
type EmbeddingConfig struct {
	Provider  string `mapstructure:"provider"`
	Model     string `mapstructure:"model"`
	APIKey    string `mapstructure:"api_key"`
	BaseURL   string `mapstructure:"base_url"`
	Dimension int    `mapstructure:"dimension"`
	BatchSize int    `mapstructure:"batch_size"`
}

// GenerationConfig configures the generative model service.
type GenerationConfig struct {
	Provider    string        `mapstructure:"provider"`
	Model       string        `mapstructure:"model"`
	APIKey      string        `mapstructure:"api_key"`
	BaseURL     string        `mapstructure:"base_url"`
	Temperature float64       `mapstructure:"temperature"`
	MaxTokens   int           `mapstructure:"max_tokens"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxRetries  int           `mapstructure:"max_retries"`

	// RequestsPerMinute caps calls to the generative API (0 = unlimited).
	// Useful against free-tier quotas.
	RequestsPerMinute int `mapstructure:"requests_per_minute"`
}

type ServerConfig struct {
	Addr       string `mapstructure:"addr"`
	HealthAddr string `mapstructure:"health_addr"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type TracingConfig struct {
	OTLPEndpoint string  `mapstructure:"otlp_endpoint"`
	SampleRate   float64 `mapstructure:"sample_rate"`
	Environment  string  `mapstructure:"environment"`
}

// Validate checks configuration for issues and returns warnings.
func (c *Config) Validate() []string {
	var warnings []string

	if c.Embedding.Provider != "" && c.Embedding.Provider != "none" && c.Embedding.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("embedding provider '%s' is configured but api_key is empty", c.Embedding.Provider))
	}
	if c.Generation.Provider != "" && c.Generation.Provider != "none" && c.Generation.APIKey == "" {
		warnings = append(warnings, fmt.Sprintf("generation provider '%s' is configured but api_key is empty", c.Generation.Provider))
	}

	if c.Generation.Temperature < 0 || c.Generation.Temperature > 2.0 {
		warnings = append(warnings, fmt.Sprintf("generation temperature %.2f is outside recommended range [0.0, 2.0]", c.Generation.Temperature))
	}
	if c.Generation.MaxTokens < 0 {
		warnings = append(warnings, fmt.Sprintf("generation max_tokens %d is negative", c.Generation.MaxTokens))
	}

	if c.Embedding.Dimension < 0 {
		warnings = append(warnings, fmt.Sprintf("embedding dimension %d is negative", c.Embedding.Dimension))
	}
	if c.Embedding.BatchSize < 0 {
		warnings = append(warnings, fmt.Sprintf("embedding batch_size %d is negative", c.Embedding.BatchSize))
	}

	if c.Chunking.MaxSize > 0 && c.Chunking.Overlap >= c.Chunking.MaxSize {
		warnings = append(warnings, fmt.Sprintf("chunking overlap %d is not smaller than max_size %d", c.Chunking.Overlap, c.Chunking.MaxSize))
	}

	if c.Index.Provider == "qdrant" && c.Index.Collection == "" {
		warnings = append(warnings, "index provider 'qdrant' is configured but collection is empty")
	}

	return warnings
}

// Load reads configuration from file and environment.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("RAGSERVER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if warnings := cfg.Validate(); len(warnings) > 0 {
		for _, warning := range warnings {
			fmt.Fprintf(os.Stderr, "Warning: %s\n", warning)
		}
	}

	return &cfg, nil
}

// Default returns the built-in defaults, ignoring files and environment.
func Default() *Config {
	v := viper.New()
	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return &Config{}
	}
	return &cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("index.provider", "qdrant")
	v.SetDefault("index.host", "localhost")
	v.SetDefault("index.port", 6334)
	v.SetDefault("index.upsert_batch_size", DefaultUpsertBatchSize)
	v.SetDefault("embedding.batch_size", DefaultEmbedBatchSize)
	v.SetDefault("embedding.dimension", DefaultEmbedDimension)
	v.SetDefault("chunking.max_size", DefaultChunkSize)
	v.SetDefault("chunking.overlap", DefaultChunkOverlap)
	v.SetDefault("generation.temperature", 0.7)
	v.SetDefault("generation.max_tokens", 512)
	v.SetDefault("generation.max_retries", 2)
	v.SetDefault("generation.timeout", time.Minute)
	v.SetDefault("server.addr", ":5000")
	v.SetDefault("server.health_addr", ":8081")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
	v.SetDefault("tracing.sample_rate", 1.0)
	v.SetDefault("tracing.environment", "development")
}
