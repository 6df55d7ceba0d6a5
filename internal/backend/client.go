// Package backend is a read-only client for the learning platform REST API.
//
// It fetches the published course catalog, single-course detail with its
// catalogue, and a user's lessons and learning records. Every call fails
// with ErrBackendUnavailable on transport errors or *Error on a non-success
// response.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ashita-ai/michi/internal/ratelimit"
)

// Config holds the settings needed to construct a Client.
type Config struct {
	// BaseURL is the root URL of the platform (e.g. "http://localhost:8080").
	BaseURL string

	// APIPrefix is prepended to every path. Defaults to "/api".
	APIPrefix string

	// HTTPClient is an optional custom HTTP client. If nil, a client with
	// Timeout and an OTEL-instrumented transport is used.
	HTTPClient *http.Client

	// Timeout applies to individual requests. Defaults to 30 seconds.
	Timeout time.Duration

	// JWTSecret, when set, signs a bearer service token for every request.
	JWTSecret string

	// Limiter paces outbound requests. Nil disables throttling.
	Limiter ratelimit.Limiter

	// LessonPageSize and CoursePageSize default to 100.
	LessonPageSize int
	CoursePageSize int

	Logger *slog.Logger
}

// Client is an HTTP client for the learning platform.
// All methods are safe for concurrent use.
type Client struct {
	baseURL        string
	prefix         string
	host           string
	client         *http.Client
	tokens         *tokenSource
	limiter        ratelimit.Limiter
	lessonPageSize int
	coursePageSize int
	logger         *slog.Logger
	closed         atomic.Bool
}

// New creates a Client from the given configuration.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("backend: BaseURL is required")
	}
	u, err := url.Parse(cfg.BaseURL)
	if err != nil || u.Host == "" {
		return nil, fmt.Errorf("backend: invalid BaseURL %q", cfg.BaseURL)
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api"
	}
	prefix = "/" + strings.Trim(prefix, "/")
	if prefix == "/" {
		prefix = ""
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout == 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport.(*http.Transport).Clone()),
		}
	}

	limiter := cfg.Limiter
	if limiter == nil {
		limiter = ratelimit.NoopLimiter{}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		baseURL:        strings.TrimRight(cfg.BaseURL, "/"),
		prefix:         prefix,
		host:           u.Host,
		client:         httpClient,
		limiter:        limiter,
		lessonPageSize: orDefault(cfg.LessonPageSize, 100),
		coursePageSize: orDefault(cfg.CoursePageSize, 100),
		logger:         logger,
	}
	if cfg.JWTSecret != "" {
		c.tokens = newTokenSource(cfg.JWTSecret)
	}
	return c, nil
}

// Close releases pooled connections and the limiter. Calls made after Close
// fail with ErrClosed. Safe to call multiple times.
func (c *Client) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.client.CloseIdleConnections()
	return c.limiter.Close()
}

// Release drops idle keep-alive connections without closing the client.
// The sync service calls it after each run.
func (c *Client) Release() {
	c.client.CloseIdleConnections()
}

func (c *Client) get(ctx context.Context, path string, query url.Values, dest any) error {
	if c.closed.Load() {
		return ErrClosed
	}

	target := c.baseURL + c.prefix + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("backend: create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	return c.doRequest(ctx, req, dest)
}

func (c *Client) doRequest(ctx context.Context, req *http.Request, dest any) error {
	if c.tokens != nil {
		token, err := c.tokens.Token()
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if err := c.limiter.Wait(ctx, c.host); err != nil {
		return fmt.Errorf("backend: %s %s: throttled: %w", req.Method, req.URL.Path, err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn("backend: request failed", "method", req.Method, "path", req.URL.Path, "error", err)
		return fmt.Errorf("backend: %s %s: %w: %w", req.Method, req.URL.Path, ErrBackendUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if err := handleResponse(resp, dest); err != nil {
		return fmt.Errorf("backend: %s %s: %w", req.Method, req.URL.Path, err)
	}
	return nil
}

// resultEnvelope is the {code, msg, data} wrapper some gateways add.
type resultEnvelope struct {
	Code *int            `json:"code"`
	Msg  string          `json:"msg"`
	Data json.RawMessage `json:"data"`
}

func handleResponse(resp *http.Response, dest any) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response body: %w: %w", ErrBackendUnavailable, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return parseErrorResponse(resp.StatusCode, body)
	}
	if dest == nil || len(bytes.TrimSpace(body)) == 0 {
		return nil
	}

	payload := body
	if trimmed := bytes.TrimSpace(body); len(trimmed) > 0 && trimmed[0] == '{' {
		var env resultEnvelope
		if err := json.Unmarshal(body, &env); err == nil && env.Code != nil {
			if *env.Code != 0 && *env.Code != http.StatusOK {
				return &Error{StatusCode: resp.StatusCode, Code: strconv.Itoa(*env.Code), Message: env.Msg}
			}
			if len(env.Data) == 0 || string(env.Data) == "null" {
				return nil
			}
			payload = env.Data
		}
	}

	if err := json.Unmarshal(payload, dest); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func parseErrorResponse(statusCode int, body []byte) *Error {
	apiErr := &Error{StatusCode: statusCode}

	var env resultEnvelope
	if err := json.Unmarshal(body, &env); err == nil && env.Msg != "" {
		apiErr.Message = env.Msg
		if env.Code != nil {
			apiErr.Code = strconv.Itoa(*env.Code)
		}
	} else {
		apiErr.Message = strings.TrimSpace(string(body))
	}
	if apiErr.Code == "" {
		apiErr.Code = http.StatusText(statusCode)
	}
	return apiErr
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
