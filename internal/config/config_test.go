package config

import (
	"testing"
)

func TestEnvIntValid(t *testing.T) {
	t.Setenv("TEST_INT", "42")
	v, err := envInt("TEST_INT", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 42 {
		t.Fatalf("expected 42, got %d", v)
	}
}

func TestEnvIntFallback(t *testing.T) {
	// TEST_INT_MISSING is not set.
	v, err := envInt("TEST_INT_MISSING", 99)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 99 {
		t.Fatalf("expected fallback 99, got %d", v)
	}
}

func TestEnvIntInvalid(t *testing.T) {
	t.Setenv("TEST_INT_BAD", "abc")
	_, err := envInt("TEST_INT_BAD", 0)
	if err == nil {
		t.Fatal("expected error for non-integer value, got nil")
	}
	if got := err.Error(); got != `TEST_INT_BAD="abc" is not a valid integer` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvBoolValid(t *testing.T) {
	t.Setenv("TEST_BOOL", "true")
	v, err := envBool("TEST_BOOL", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !v {
		t.Fatal("expected true")
	}
}

func TestEnvBoolInvalid(t *testing.T) {
	t.Setenv("TEST_BOOL_BAD", "maybe")
	_, err := envBool("TEST_BOOL_BAD", false)
	if err == nil {
		t.Fatal("expected error for non-boolean value, got nil")
	}
	if got := err.Error(); got != `TEST_BOOL_BAD="maybe" is not a valid boolean` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvDurationValid(t *testing.T) {
	t.Setenv("TEST_DUR", "5s")
	v, err := envDuration("TEST_DUR", 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v.Seconds() != 5 {
		t.Fatalf("expected 5s, got %s", v)
	}
}

func TestEnvDurationInvalid(t *testing.T) {
	t.Setenv("TEST_DUR_BAD", "five-seconds")
	_, err := envDuration("TEST_DUR_BAD", 0)
	if err == nil {
		t.Fatal("expected error for invalid duration, got nil")
	}
	if got := err.Error(); got != `TEST_DUR_BAD="five-seconds" is not a valid duration` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestEnvFloatInvalid(t *testing.T) {
	t.Setenv("TEST_FLOAT_BAD", "warm")
	_, err := envFloat("TEST_FLOAT_BAD", 0.7)
	if err == nil {
		t.Fatal("expected error for non-numeric value, got nil")
	}
	if got := err.Error(); got != `TEST_FLOAT_BAD="warm" is not a valid number` {
		t.Fatalf("unexpected error message: %s", got)
	}
}

func TestLoadFailsOnInvalidRounds(t *testing.T) {
	t.Setenv("MICHI_MAX_ROUNDS", "abc")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with invalid MICHI_MAX_ROUNDS")
	}
	// Error should mention the variable name and value.
	if got := err.Error(); !contains(got, "MICHI_MAX_ROUNDS") || !contains(got, "abc") {
		t.Fatalf("error should mention MICHI_MAX_ROUNDS and value 'abc', got: %s", got)
	}
}

func TestLoadFailsOnMultipleInvalid(t *testing.T) {
	t.Setenv("MICHI_MAX_ROUNDS", "abc")
	t.Setenv("MICHI_BACKEND_TIMEOUT", "xyz")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to fail with multiple invalid vars")
	}
	got := err.Error()
	if !contains(got, "MICHI_MAX_ROUNDS") {
		t.Fatalf("error should mention MICHI_MAX_ROUNDS, got: %s", got)
	}
	if !contains(got, "MICHI_BACKEND_TIMEOUT") {
		t.Fatalf("error should mention MICHI_BACKEND_TIMEOUT, got: %s", got)
	}
}

func TestLoadRejectsUnknownVectorStore(t *testing.T) {
	t.Setenv("MICHI_VECTOR_STORE", "faiss")
	_, err := Load()
	if err == nil {
		t.Fatal("expected Load() to reject unknown vector store")
	}
	if !contains(err.Error(), "faiss") {
		t.Fatalf("error should mention the value, got: %s", err)
	}
}

func TestLoadRequiresQdrantURL(t *testing.T) {
	t.Setenv("MICHI_VECTOR_STORE", "qdrant")
	if _, err := Load(); err == nil {
		t.Fatal("expected Load() to require QDRANT_URL")
	}
}

func TestLoadSucceedsWithDefaults(t *testing.T) {
	// With no env vars set, Load should succeed using all defaults.
	cfg, err := Load()
	if err != nil {
		t.Fatalf("expected Load() to succeed with defaults, got: %v", err)
	}
	if cfg.BackendAPIPrefix != "/api" {
		t.Fatalf("expected default prefix /api, got %q", cfg.BackendAPIPrefix)
	}
	if cfg.Collection != "courses" {
		t.Fatalf("expected default collection courses, got %q", cfg.Collection)
	}
	if cfg.MaxRounds != 8 || cfg.IndexBatchSize != 100 {
		t.Fatalf("unexpected defaults: rounds=%d batch=%d", cfg.MaxRounds, cfg.IndexBatchSize)
	}
	if cfg.LLMTemperature != 0.7 {
		t.Fatalf("expected temperature 0.7, got %v", cfg.LLMTemperature)
	}
	if !cfg.AutoSync {
		t.Fatal("expected auto sync on by default")
	}
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && searchSubstring(s, substr)
}

func searchSubstring(s, substr string) bool {
	for i := 0; i <= len(s)-len(substr); i++ {
		if s[i:i+len(substr)] == substr {
			return true
		}
	}
	return false
}
