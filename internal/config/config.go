// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	// Learning platform backend.
	BackendURL       string
	BackendAPIPrefix string
	BackendTimeout   time.Duration
	BackendJWTSecret string // Signs an HS256 service token when set.
	BackendRate      float64
	BackendBurst     int
	LessonPageSize   int
	CoursePageSize   int

	// Chat model settings.
	OpenAIAPIKey   string
	OpenAIBaseURL  string // Any OpenAI-compatible endpoint.
	LLMModel       string
	LLMTemperature float64
	MaxRounds      int

	// Embedding provider settings.
	EmbeddingProvider   string // "auto", "openai", "ollama", or "noop"
	EmbeddingModel      string
	EmbeddingDimensions int // Vector dimensions; must match the chosen model's output.
	OllamaURL           string
	OllamaModel         string
	EmbedCacheTTL       time.Duration

	// Retrieval index settings.
	VectorStore    string // "auto", "qdrant", "pgvector", or "memory"
	QdrantURL      string
	QdrantAPIKey   string
	Collection     string
	IndexBatchSize int
	AutoSync       bool

	// Persistence.
	DatabaseURL string
	LedgerPath  string
	RedisURL    string

	// OTEL settings.
	OTELEndpoint string
	OTELInsecure bool
	ServiceName  string

	LogLevel string
}

// Load reads configuration from environment variables with sensible defaults.
// Malformed values are collected and reported together.
func Load() (Config, error) {
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	cfg := Config{
		BackendURL:        envStr("MICHI_BACKEND_URL", "http://localhost:8080"),
		BackendAPIPrefix:  envStr("MICHI_BACKEND_API_PREFIX", "/api"),
		BackendJWTSecret:  envStr("MICHI_BACKEND_JWT_SECRET", ""),
		OpenAIAPIKey:      envStr("OPENAI_API_KEY", ""),
		OpenAIBaseURL:     envStr("OPENAI_BASE_URL", ""),
		LLMModel:          envStr("MICHI_LLM_MODEL", "gpt-4o-mini"),
		EmbeddingProvider: envStr("MICHI_EMBEDDING_PROVIDER", "auto"),
		EmbeddingModel:    envStr("MICHI_EMBEDDING_MODEL", "text-embedding-3-small"),
		OllamaURL:         envStr("OLLAMA_URL", "http://localhost:11434"),
		OllamaModel:       envStr("OLLAMA_MODEL", "mxbai-embed-large"),
		VectorStore:       envStr("MICHI_VECTOR_STORE", "auto"),
		QdrantURL:         envStr("QDRANT_URL", ""),
		QdrantAPIKey:      envStr("QDRANT_API_KEY", ""),
		Collection:        envStr("MICHI_COLLECTION", "courses"),
		DatabaseURL:       envStr("DATABASE_URL", ""),
		LedgerPath:        envStr("MICHI_LEDGER_PATH", "michi.db"),
		RedisURL:          envStr("REDIS_URL", ""),
		OTELEndpoint:      envStr("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		ServiceName:       envStr("OTEL_SERVICE_NAME", "michi"),
		LogLevel:          envStr("MICHI_LOG_LEVEL", "info"),
	}

	var err error
	cfg.BackendTimeout, err = envDuration("MICHI_BACKEND_TIMEOUT", 30*time.Second)
	collect(err)
	cfg.BackendRate, err = envFloat("MICHI_BACKEND_RATE_PER_SEC", 0)
	collect(err)
	cfg.BackendBurst, err = envInt("MICHI_BACKEND_BURST", 10)
	collect(err)
	cfg.LessonPageSize, err = envInt("MICHI_LESSON_PAGE_SIZE", 100)
	collect(err)
	cfg.CoursePageSize, err = envInt("MICHI_COURSE_PAGE_SIZE", 100)
	collect(err)
	cfg.LLMTemperature, err = envFloat("MICHI_LLM_TEMPERATURE", 0.7)
	collect(err)
	cfg.MaxRounds, err = envInt("MICHI_MAX_ROUNDS", 8)
	collect(err)
	cfg.EmbeddingDimensions, err = envInt("MICHI_EMBEDDING_DIMENSIONS", 1024)
	collect(err)
	cfg.EmbedCacheTTL, err = envDuration("MICHI_EMBED_CACHE_TTL", 24*time.Hour)
	collect(err)
	cfg.IndexBatchSize, err = envInt("MICHI_INDEX_BATCH_SIZE", 100)
	collect(err)
	cfg.AutoSync, err = envBool("MICHI_AUTO_SYNC", true)
	collect(err)
	cfg.OTELInsecure, err = envBool("OTEL_EXPORTER_OTLP_INSECURE", false)
	collect(err)

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("config: %w", errors.Join(errs...))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks that numeric settings are in range and enums are known.
func (c Config) Validate() error {
	if c.BackendURL == "" {
		return fmt.Errorf("config: MICHI_BACKEND_URL is required")
	}
	if c.EmbeddingDimensions <= 0 {
		return fmt.Errorf("config: MICHI_EMBEDDING_DIMENSIONS must be positive")
	}
	if c.IndexBatchSize <= 0 {
		return fmt.Errorf("config: MICHI_INDEX_BATCH_SIZE must be positive")
	}
	if c.MaxRounds <= 0 {
		return fmt.Errorf("config: MICHI_MAX_ROUNDS must be positive")
	}
	if c.LessonPageSize <= 0 || c.CoursePageSize <= 0 {
		return fmt.Errorf("config: page sizes must be positive")
	}
	switch c.EmbeddingProvider {
	case "auto", "openai", "ollama", "noop":
	default:
		return fmt.Errorf("config: unknown MICHI_EMBEDDING_PROVIDER %q", c.EmbeddingProvider)
	}
	switch c.VectorStore {
	case "auto", "qdrant", "pgvector", "memory":
	default:
		return fmt.Errorf("config: unknown MICHI_VECTOR_STORE %q", c.VectorStore)
	}
	if c.VectorStore == "qdrant" && c.QdrantURL == "" {
		return fmt.Errorf("config: QDRANT_URL is required when MICHI_VECTOR_STORE=qdrant")
	}
	if c.VectorStore == "pgvector" && c.DatabaseURL == "" {
		return fmt.Errorf("config: DATABASE_URL is required when MICHI_VECTOR_STORE=pgvector")
	}
	return nil
}

func envStr(key, defaultVal string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid integer", key, v)
	}
	return n, nil
}

func envFloat(key string, defaultVal float64) (float64, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid number", key, v)
	}
	return f, nil
}

func envBool(key string, defaultVal bool) (bool, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid boolean", key, v)
	}
	return b, nil
}

func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal, fmt.Errorf("%s=%q is not a valid duration", key, v)
	}
	return d, nil
}
