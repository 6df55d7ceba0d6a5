package testutil

import (
	"context"
	"log/slog"
	"testing"

	"github.com/docker/go-connections/nat"
	"github.com/stretchr/testify/assert"
)

func TestLoggerIsQuiet(t *testing.T) {
	logger := TestLogger()
	assert.False(t, logger.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, logger.Enabled(context.Background(), slog.LevelWarn))
}

func TestContainerPortsAreNatPorts(t *testing.T) {
	// Callers pass exposed ports as literals; start resolves them as nat ports.
	for _, p := range []nat.Port{"5432", "6334", "6379"} {
		assert.Equal(t, "tcp", p.Proto())
		assert.NotZero(t, p.Int())
	}
}
