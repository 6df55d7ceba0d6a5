// Package michi is the course recommendation assistant.
//
// An App ties the learning platform client, the course retrieval index, the
// sync service, the tool layer and the orchestration loop together:
//
//	app, err := michi.New(
//	    michi.WithBackend(client),
//	    michi.WithIndex(index),
//	    michi.WithChatModel(model),
//	)
//	if err != nil { ... }
//	if err := app.Start(ctx); err != nil { ... }
//	defer app.Close(ctx)
//	answer, err := app.Chat(ctx, userID, "我该学什么？")
package michi

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashita-ai/michi/internal/agent"
	"github.com/ashita-ai/michi/internal/search"
	"github.com/ashita-ai/michi/internal/service/coursesync"
	"github.com/ashita-ai/michi/internal/storage"
	"github.com/ashita-ai/michi/internal/tools"
)

// Backend is the learning platform surface the App consumes.
// *backend.Client implements it.
type Backend interface {
	coursesync.Catalog
	tools.Backend
}

// State is the App lifecycle position.
type State int32

const (
	StateInit State = iota
	StateReady
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInit:
		return "init"
	case StateReady:
		return "ready"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int32(s))
}

var (
	// ErrNotReady is returned by operations called before Start.
	ErrNotReady = errors.New("michi: app not started")
	// ErrClosed is returned by operations called after Close.
	ErrClosed = errors.New("michi: app closed")
	// ErrNoChatModel is returned by Chat when no model is configured.
	ErrNoChatModel = errors.New("michi: no chat model configured")
)

// Stats describes the retrieval index.
type Stats struct {
	Collection    string           `json:"collection"`
	DocumentCount int64            `json:"document_count"`
	Healthy       bool             `json:"healthy"`
	HealthError   string           `json:"health_error,omitempty"`
	LastSync      *storage.SyncRun `json:"last_sync,omitempty"`
	Version       string           `json:"version"`
}

// App is the assistant lifecycle. Construct with New, then Start.
type App struct {
	backend  Backend
	index    *search.Index
	ledger   storage.Ledger
	toolset  *tools.Toolset
	syncer   *coursesync.Service
	agent    *agent.Agent // nil without a chat model
	autoSync bool
	logger   *slog.Logger
	version  string

	state     atomic.Int32
	closeOnce sync.Once
	closeErr  error
}

// New wires an App. It performs no I/O; call Start.
func New(opts ...Option) (*App, error) {
	o := resolvedOptions{autoSync: true}
	for _, fn := range opts {
		fn(&o)
	}
	if o.backend == nil {
		return nil, errors.New("michi: backend is required")
	}
	if o.index == nil {
		return nil, errors.New("michi: index is required")
	}

	logger := o.logger
	if logger == nil {
		logger = slog.Default()
	}
	version := o.version
	if version == "" {
		version = "dev"
	}
	ledger := o.ledger
	if ledger == nil {
		ledger = storage.NewMemoryLedger()
	}

	a := &App{
		backend:  o.backend,
		index:    o.index,
		ledger:   ledger,
		toolset:  tools.New(o.backend, o.index, logger),
		autoSync: o.autoSync,
		logger:   logger,
		version:  version,
	}
	a.syncer = coursesync.New(o.backend, o.index, coursesync.Config{
		BatchSize: o.batchSize,
		Ledger:    ledger,
		Logger:    logger,
	})
	if o.model != nil {
		a.agent = agent.New(o.model, a.toolset, tools.Declarations(), agent.Config{
			MaxRounds: o.maxRounds,
			Logger:    logger,
		})
	}
	return a, nil
}

// State reports the lifecycle position.
func (a *App) State() State {
	return State(a.state.Load())
}

// Start ensures the index collection exists and moves the App to
// StateReady. When auto-sync is on and the index is empty, it runs a
// catalog sync first; a failed cold-start sync is logged, not returned.
func (a *App) Start(ctx context.Context) error {
	switch a.State() {
	case StateReady:
		return nil
	case StateClosed:
		return ErrClosed
	}

	if err := a.index.Ensure(ctx); err != nil {
		return fmt.Errorf("michi: ensure index: %w", err)
	}

	if a.autoSync {
		count, err := a.index.Count(ctx)
		if err != nil {
			return fmt.Errorf("michi: count index: %w", err)
		}
		if count == 0 {
			a.logger.Info("michi: index empty, running cold-start sync", "collection", a.index.Collection())
			if n, err := a.syncer.Run(ctx, false); err != nil {
				a.logger.Warn("michi: cold-start sync failed", "error", err)
			} else {
				a.logger.Info("michi: cold-start sync complete", "indexed", n)
			}
		}
	}

	if !a.state.CompareAndSwap(int32(StateInit), int32(StateReady)) {
		if a.State() == StateClosed {
			return ErrClosed
		}
	}
	a.logger.Info("michi: ready", "version", a.version, "collection", a.index.Collection())
	return nil
}

func (a *App) ready() error {
	switch a.State() {
	case StateInit:
		return ErrNotReady
	case StateClosed:
		return ErrClosed
	}
	return nil
}

// Chat answers a learner's message.
func (a *App) Chat(ctx context.Context, userID int64, message string) (string, error) {
	return a.ChatWithContext(ctx, userID, message, nil)
}

// ChatWithContext answers a learner's message with extra conversation
// context, such as the page or channel the question came from.
func (a *App) ChatWithContext(ctx context.Context, userID int64, message string, extra map[string]any) (string, error) {
	if err := a.ready(); err != nil {
		return "", err
	}
	if a.agent == nil {
		return "", ErrNoChatModel
	}
	start := time.Now()
	res, err := a.agent.RunWithContext(ctx, userID, message, extra)
	if err != nil {
		return "", err
	}
	a.logger.Info("michi: chat answered",
		"user_id", userID, "rounds", res.Rounds, "tool_calls", res.ToolCalls,
		"limited", res.Limited, "duration_ms", time.Since(start).Milliseconds())
	return res.Answer, nil
}

// Sync copies the course catalog into the index and returns the number of
// documents indexed. force resets the index first.
func (a *App) Sync(ctx context.Context, force bool) (int, error) {
	if err := a.ready(); err != nil {
		return 0, err
	}
	return a.syncer.Run(ctx, force)
}

// Stats reports document count, collection name, store health and the
// last recorded sync.
func (a *App) Stats(ctx context.Context) (Stats, error) {
	if err := a.ready(); err != nil {
		return Stats{}, err
	}
	count, err := a.index.Count(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("michi: stats: %w", err)
	}
	st := Stats{
		Collection:    a.index.Collection(),
		DocumentCount: count,
		Healthy:       true,
		Version:       a.version,
	}
	if err := a.index.Healthy(ctx); err != nil {
		st.Healthy = false
		st.HealthError = err.Error()
	}
	last, err := a.ledger.LastRun(ctx)
	switch {
	case err == nil:
		st.LastSync = &last
	case !errors.Is(err, storage.ErrNotFound):
		a.logger.Warn("michi: read last sync failed", "error", err)
	}
	return st, nil
}

// Toolset exposes the tool layer, e.g. to an MCP server.
func (a *App) Toolset() *tools.Toolset {
	return a.toolset
}

// Version reports the configured version string.
func (a *App) Version() string {
	return a.version
}

// Close releases the index, the ledger and the backend. Safe to call more
// than once.
func (a *App) Close(_ context.Context) error {
	a.closeOnce.Do(func() {
		a.state.Store(int32(StateClosed))
		var errs []error
		if err := a.index.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close index: %w", err))
		}
		if err := a.ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close ledger: %w", err))
		}
		if c, ok := a.backend.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, fmt.Errorf("close backend: %w", err))
			}
		}
		a.closeErr = errors.Join(errs...)
		a.logger.Info("michi: closed")
	})
	return a.closeErr
}
