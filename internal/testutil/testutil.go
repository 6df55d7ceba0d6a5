// Package testutil provides shared test infrastructure: a quiet logger and
// testcontainers helpers for Postgres with pgvector, Qdrant and Redis.
//
// Container helpers are meant for TestMain in integration-tagged tests:
//
//	func TestMain(m *testing.M) {
//	    tc, err := testutil.StartQdrant(context.Background())
//	    if err != nil { ... }
//	    defer tc.Terminate()
//	    os.Exit(m.Run())
//	}
package testutil

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/docker/go-connections/nat"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// TestContainer wraps a running container with the address to reach it.
type TestContainer struct {
	Container testcontainers.Container
	// DSN is a postgres:// DSN, an http:// URL for Qdrant (pointing at the
	// mapped gRPC port), or a redis:// URL.
	DSN string
}

func start(ctx context.Context, req testcontainers.ContainerRequest, port nat.Port, format func(host, port string) string) (*TestContainer, error) {
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		return nil, fmt.Errorf("testutil: start %s: %w", req.Image, err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container host: %w", err)
	}
	mapped, err := container.MappedPort(ctx, port)
	if err != nil {
		_ = container.Terminate(ctx)
		return nil, fmt.Errorf("testutil: container port %s: %w", port, err)
	}
	return &TestContainer{Container: container, DSN: format(host, mapped.Port())}, nil
}

// StartPostgres starts Postgres with the pgvector extension available.
func StartPostgres(ctx context.Context) (*TestContainer, error) {
	return start(ctx, testcontainers.ContainerRequest{
		Image:        "pgvector/pgvector:pg17",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "michi",
			"POSTGRES_PASSWORD": "michi",
			"POSTGRES_DB":       "michi",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}, "5432", func(host, port string) string {
		return fmt.Sprintf("postgres://michi:michi@%s:%s/michi?sslmode=disable", host, port)
	})
}

// StartQdrant starts a Qdrant server. DSN targets the gRPC port.
func StartQdrant(ctx context.Context) (*TestContainer, error) {
	return start(ctx, testcontainers.ContainerRequest{
		Image:        "qdrant/qdrant:v1.16.2",
		ExposedPorts: []string{"6333/tcp", "6334/tcp"},
		WaitingFor:   wait.ForHTTP("/readyz").WithPort("6333/tcp").WithStartupTimeout(60 * time.Second),
	}, "6334", func(host, port string) string {
		return fmt.Sprintf("http://%s:%s", host, port)
	})
}

// StartRedis starts a Redis server.
func StartRedis(ctx context.Context) (*TestContainer, error) {
	return start(ctx, testcontainers.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(30 * time.Second),
	}, "6379", func(host, port string) string {
		return fmt.Sprintf("redis://%s:%s/0", host, port)
	})
}

// Terminate stops and removes the container.
func (tc *TestContainer) Terminate() {
	_ = tc.Container.Terminate(context.Background())
}

// TestLogger returns a logger configured for test output (warns only).
func TestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
}
