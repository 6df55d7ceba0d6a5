// Command michi is the course recommendation assistant.
//
//	michi chat -user 42 [-context '{"page":"home"}'] "我想提升后端能力，有什么课程推荐？"
//	michi sync [-force]
//	michi stats
//	michi mcp
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ashita-ai/michi"
	"github.com/ashita-ai/michi/internal/backend"
	"github.com/ashita-ai/michi/internal/config"
	"github.com/ashita-ai/michi/internal/llm"
	"github.com/ashita-ai/michi/internal/mcp"
	"github.com/ashita-ai/michi/internal/ratelimit"
	"github.com/ashita-ai/michi/internal/telemetry"
)

// version is set at build time via -ldflags.
var version = "dev"

const usage = `usage: michi <command> [flags]

commands:
  chat -user ID [-context JSON] MESSAGE
                          answer a learner's question
  sync [-force]           copy the course catalog into the index
  stats                   print index statistics as JSON
  mcp                     serve the tools over MCP on stdio
`

func main() {
	os.Exit(run0(os.Args[1:]))
}

func run0(args []string) int {
	// Load .env file if present (non-fatal; production won't have one).
	_ = godotenv.Load()

	// MCP speaks JSON-RPC on stdout, so logs always go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: parseLogLevel(os.Getenv("MICHI_LOG_LEVEL")),
	}))
	slog.SetDefault(logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, logger, args, os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		slog.Error("fatal error", "error", err)
		return 1
	}
	return 0
}

func run(ctx context.Context, logger *slog.Logger, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		fmt.Fprint(os.Stderr, usage)
		return flag.ErrHelp
	}
	cmd, rest := args[0], args[1:]

	var (
		userID     int64
		force      bool
		message    string
		contextArg string
		extra      map[string]any
	)
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	switch cmd {
	case "chat":
		fs.Int64Var(&userID, "user", 0, "learner user id")
		fs.StringVar(&contextArg, "context", "", "extra conversation context as a JSON object")
	case "sync":
		fs.BoolVar(&force, "force", false, "reset the index before syncing")
	case "stats", "mcp":
	default:
		fmt.Fprint(os.Stderr, usage)
		return fmt.Errorf("unknown command %q", cmd)
	}
	if err := fs.Parse(rest); err != nil {
		return err
	}
	if cmd == "chat" {
		message = strings.TrimSpace(strings.Join(fs.Args(), " "))
		if userID <= 0 || message == "" {
			return errors.New("chat: -user and a message are required")
		}
		if contextArg != "" {
			if err := json.Unmarshal([]byte(contextArg), &extra); err != nil {
				return fmt.Errorf("chat: -context must be a JSON object: %w", err)
			}
		}
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	otelShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Endpoint:       cfg.OTELEndpoint,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: version,
		Insecure:       cfg.OTELInsecure,
	})
	if err != nil {
		return fmt.Errorf("telemetry: %w", err)
	}
	defer func() { _ = otelShutdown(context.Background()) }()

	// A sync command does its own sync; cold-start only matters for
	// long-lived or conversational commands.
	autoSync := cfg.AutoSync && cmd != "sync"

	app, cleanup, err := buildApp(ctx, cfg, logger, autoSync)
	if err != nil {
		return err
	}
	defer cleanup()
	defer func() { _ = app.Close(context.Background()) }()

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("start: %w", err)
	}

	switch cmd {
	case "chat":
		answer, err := app.ChatWithContext(ctx, userID, message, extra)
		if err != nil {
			return fmt.Errorf("chat: %w", err)
		}
		_, err = fmt.Fprintln(stdout, answer)
		return err

	case "sync":
		start := time.Now()
		n, err := app.Sync(ctx, force)
		if err != nil {
			return fmt.Errorf("sync: %w", err)
		}
		logger.Info("sync finished", "indexed", n, "force", force, "duration_ms", time.Since(start).Milliseconds())
		_, err = fmt.Fprintf(stdout, "indexed %d courses\n", n)
		return err

	case "stats":
		st, err := app.Stats(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(st)

	case "mcp":
		srv := mcp.New(app.Toolset(), func(ctx context.Context) (any, error) {
			return app.Stats(ctx)
		}, version, logger)
		logger.Info("mcp: serving on stdio", "version", version)
		return srv.ServeStdio()
	}
	return nil
}

// buildApp constructs every collaborator from config. cleanup releases the
// ones the App does not own (database pool, embedding cache).
func buildApp(ctx context.Context, cfg config.Config, logger *slog.Logger, autoSync bool) (*michi.App, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(err error) (*michi.App, func(), error) {
		cleanup()
		return nil, nil, err
	}

	// Built first: it does no I/O, so a bad setting fails before anything
	// needs closing.
	var model llm.ChatModel
	if cfg.OpenAIAPIKey != "" {
		m, err := llm.NewOpenAIModel(llm.OpenAIConfig{
			APIKey:      cfg.OpenAIAPIKey,
			BaseURL:     cfg.OpenAIBaseURL,
			Model:       cfg.LLMModel,
			Temperature: float32(cfg.LLMTemperature),
		})
		if err != nil {
			return fail(fmt.Errorf("llm: %w", err))
		}
		model = m
	} else {
		logger.Warn("no OPENAI_API_KEY, chat is disabled")
	}

	client, err := backend.New(backend.Config{
		BaseURL:        cfg.BackendURL,
		APIPrefix:      cfg.BackendAPIPrefix,
		Timeout:        cfg.BackendTimeout,
		JWTSecret:      cfg.BackendJWTSecret,
		Limiter:        ratelimit.New(cfg.BackendRate, cfg.BackendBurst),
		LessonPageSize: cfg.LessonPageSize,
		CoursePageSize: cfg.CoursePageSize,
		Logger:         logger,
	})
	if err != nil {
		return fail(fmt.Errorf("backend: %w", err))
	}

	db, err := openDatabase(ctx, cfg, logger)
	if err != nil {
		_ = client.Close()
		return fail(err)
	}
	if db != nil {
		closers = append(closers, db.Close)
	}

	embedder, cacheClose := newEmbeddingProvider(ctx, cfg, logger)
	if cacheClose != nil {
		closers = append(closers, cacheClose)
	}

	index, err := newIndex(cfg, db, embedder, logger)
	if err != nil {
		_ = client.Close()
		return fail(err)
	}

	ledger, err := newLedger(ctx, cfg, db, logger)
	if err != nil {
		_ = client.Close()
		_ = index.Close()
		return fail(err)
	}

	opts := []michi.Option{
		michi.WithLogger(logger),
		michi.WithVersion(version),
		michi.WithBackend(client),
		michi.WithIndex(index),
		michi.WithLedger(ledger),
		michi.WithMaxRounds(cfg.MaxRounds),
		michi.WithIndexBatchSize(cfg.IndexBatchSize),
		michi.WithAutoSync(autoSync),
	}
	if model != nil {
		opts = append(opts, michi.WithChatModel(model))
	}

	app, err := michi.New(opts...)
	if err != nil {
		return fail(err)
	}
	return app, cleanup, nil
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
