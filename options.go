package michi

import (
	"log/slog"

	"github.com/ashita-ai/michi/internal/llm"
	"github.com/ashita-ai/michi/internal/search"
	"github.com/ashita-ai/michi/internal/storage"
)

// Option configures an App.
type Option func(*resolvedOptions)

// resolvedOptions holds the settings after applying every Option.
type resolvedOptions struct {
	logger    *slog.Logger
	version   string
	backend   Backend
	index     *search.Index
	ledger    storage.Ledger
	model     llm.ChatModel
	maxRounds int
	batchSize int
	autoSync  bool
}

// WithLogger sets the structured logger. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *resolvedOptions) { o.logger = logger }
}

// WithVersion sets the version reported by Stats and the MCP server.
func WithVersion(version string) Option {
	return func(o *resolvedOptions) { o.version = version }
}

// WithBackend sets the learning platform client. Required.
func WithBackend(b Backend) Option {
	return func(o *resolvedOptions) { o.backend = b }
}

// WithIndex sets the course retrieval index. Required.
func WithIndex(ix *search.Index) Option {
	return func(o *resolvedOptions) { o.index = ix }
}

// WithLedger records sync runs. Defaults to an in-memory ledger.
func WithLedger(l storage.Ledger) Option {
	return func(o *resolvedOptions) { o.ledger = l }
}

// WithChatModel sets the language model. Without one, Chat fails with
// ErrNoChatModel while sync, stats and the tools keep working.
func WithChatModel(m llm.ChatModel) Option {
	return func(o *resolvedOptions) { o.model = m }
}

// WithMaxRounds caps tool-requesting model turns per chat.
func WithMaxRounds(n int) Option {
	return func(o *resolvedOptions) { o.maxRounds = n }
}

// WithIndexBatchSize sets documents per index call during sync.
func WithIndexBatchSize(n int) Option {
	return func(o *resolvedOptions) { o.batchSize = n }
}

// WithAutoSync toggles the cold-start sync Start runs on an empty index.
// On by default.
func WithAutoSync(enabled bool) Option {
	return func(o *resolvedOptions) { o.autoSync = enabled }
}
