package main

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"github.com/ashita-ai/michi/internal/config"
	"github.com/ashita-ai/michi/internal/search"
	"github.com/ashita-ai/michi/internal/service/embedding"
	"github.com/ashita-ai/michi/internal/storage"
	"github.com/ashita-ai/michi/migrations"
)

// openDatabase connects to Postgres and applies migrations when
// DATABASE_URL is set. It returns nil otherwise.
func openDatabase(ctx context.Context, cfg config.Config, logger *slog.Logger) (*storage.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, nil
	}
	db, err := storage.New(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, fmt.Errorf("storage: %w", err)
	}
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}
	return db, nil
}

// newEmbeddingProvider creates an embedding provider based on configuration.
// Provider selection: "ollama", "openai", "noop", or "auto" (default).
// Auto mode tries Ollama if reachable, then OpenAI if a key is present, else
// noop. With REDIS_URL set, real providers are wrapped in a shared cache;
// the returned func closes it.
func newEmbeddingProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) (embedding.Provider, func()) {
	p, name, model := selectEmbeddingProvider(ctx, cfg, logger)
	if embedding.IsNoop(p) || cfg.RedisURL == "" {
		return p, nil
	}

	cache, err := embedding.NewRedisCache(ctx, cfg.RedisURL)
	if err != nil {
		logger.Warn("embedding cache: redis unavailable, continuing uncached", "error", err)
		return p, nil
	}
	namespace := name + ":" + model + ":" + strconv.Itoa(p.Dimensions())
	logger.Info("embedding cache: redis", "namespace", namespace, "ttl", cfg.EmbedCacheTTL)
	return embedding.NewCachedProvider(p, cache, namespace, cfg.EmbedCacheTTL, logger), func() { _ = cache.Close() }
}

func selectEmbeddingProvider(ctx context.Context, cfg config.Config, logger *slog.Logger) (embedding.Provider, string, string) {
	dims := cfg.EmbeddingDimensions
	noop := func() (embedding.Provider, string, string) {
		return embedding.NewNoopProvider(dims), "noop", ""
	}
	openai := func() (embedding.Provider, string, string) {
		p, err := embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel, dims)
		if err != nil {
			logger.Error("openai embedding provider init failed", "error", err)
			return noop()
		}
		return p, "openai", cfg.EmbeddingModel
	}
	ollama := func() (embedding.Provider, string, string) {
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.OllamaModel, dims), "ollama", cfg.OllamaModel
	}

	switch cfg.EmbeddingProvider {
	case "openai":
		if cfg.OpenAIAPIKey == "" {
			logger.Error("OPENAI_API_KEY required when MICHI_EMBEDDING_PROVIDER=openai")
			return noop()
		}
		logger.Info("embedding provider: openai", "model", cfg.EmbeddingModel, "dimensions", dims)
		return openai()
	case "ollama":
		logger.Info("embedding provider: ollama", "url", cfg.OllamaURL, "model", cfg.OllamaModel, "dimensions", dims)
		return ollama()
	case "noop":
		logger.Info("embedding provider: noop (keyword search only)")
		return noop()
	}

	if embedding.Reachable(ctx, cfg.OllamaURL) {
		logger.Info("embedding provider: ollama (auto-detected)", "url", cfg.OllamaURL, "model", cfg.OllamaModel)
		return ollama()
	}
	if cfg.OpenAIAPIKey != "" {
		logger.Info("embedding provider: openai (auto-detected)", "model", cfg.EmbeddingModel)
		return openai()
	}
	logger.Warn("no embedding provider available, using noop (keyword search only)")
	return noop()
}

// newIndex picks the vector store. Zero vectors from the noop provider
// cannot be ranked by cosine, so that case always uses the memory store.
func newIndex(cfg config.Config, db *storage.DB, embedder embedding.Provider, logger *slog.Logger) (*search.Index, error) {
	kind := cfg.VectorStore
	if kind == "auto" {
		switch {
		case cfg.QdrantURL != "":
			kind = "qdrant"
		case db != nil:
			kind = "pgvector"
		default:
			kind = "memory"
		}
	}
	if embedding.IsNoop(embedder) && kind != "memory" {
		logger.Warn("vector store: noop embeddings, falling back to memory store", "configured", kind)
		kind = "memory"
	}

	var store search.VectorStore
	switch kind {
	case "qdrant":
		qs, err := search.NewQdrantStore(search.QdrantConfig{
			URL:        cfg.QdrantURL,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.Collection,
			Dims:       uint64(embedder.Dimensions()), //nolint:gosec // validated positive in config.Validate
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("qdrant: %w", err)
		}
		store = qs
	case "pgvector":
		if db == nil {
			return nil, fmt.Errorf("pgvector: DATABASE_URL is not set")
		}
		ps, err := search.NewPgvectorStore(db.Pool(), cfg.Collection, embedder.Dimensions(), logger)
		if err != nil {
			return nil, fmt.Errorf("pgvector: %w", err)
		}
		store = ps
	default:
		logger.Warn("vector store: memory (index is lost on exit)")
		store = search.NewMemoryStore(cfg.Collection)
	}
	logger.Info("vector store ready", "store", kind, "collection", cfg.Collection)
	return search.NewIndex(store, embedder, logger), nil
}

// newLedger records sync runs in Postgres when a database is configured,
// else in SQLite at MICHI_LEDGER_PATH, else in memory.
func newLedger(ctx context.Context, cfg config.Config, db *storage.DB, logger *slog.Logger) (storage.Ledger, error) {
	switch {
	case db != nil:
		return storage.NewPostgresLedger(db), nil
	case cfg.LedgerPath != "":
		l, err := storage.OpenSQLiteLedger(ctx, cfg.LedgerPath)
		if err != nil {
			return nil, fmt.Errorf("sqlite ledger: %w", err)
		}
		logger.Info("sync ledger: sqlite", "path", cfg.LedgerPath)
		return l, nil
	default:
		return storage.NewMemoryLedger(), nil
	}
}
