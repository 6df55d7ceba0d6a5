// Package tools implements the four read-only tools the assistant can call.
//
// Collaborator failures never escape a tool: single-object tools report
// {"error": msg} and list tools report an empty list. Dispatch adds the
// name lookup and argument decoding used by the orchestration loop.
package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"

	"github.com/ashita-ai/michi/internal/model"
	"github.com/ashita-ai/michi/internal/search"
)

// ErrToolNotFound is returned by Dispatch for a name outside the tool set.
var ErrToolNotFound = errors.New("tools: tool not found")

// Backend is the learner data the tools read.
type Backend interface {
	LearningProfile(ctx context.Context, userID int64) (model.LearningProfile, error)
	PurchasedCourses(ctx context.Context, userID int64) ([]model.Lesson, error)
	FetchLearningRecords(ctx context.Context, userID int64, courseID *int64) ([]model.LearningRecord, error)
}

// Searcher is the course retrieval index.
type Searcher interface {
	Query(ctx context.Context, text string, topK int, filter search.Filter) ([]model.SearchResult, error)
}

// ErrorPayload is the structured failure a single-object tool returns.
type ErrorPayload struct {
	Error string `json:"error"`
}

// Toolset binds the tools to their collaborators. Safe for concurrent use.
type Toolset struct {
	backend  Backend
	searcher Searcher
	logger   *slog.Logger
}

// New creates a Toolset.
func New(backend Backend, searcher Searcher, logger *slog.Logger) *Toolset {
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolset{backend: backend, searcher: searcher, logger: logger}
}

// LearningProfile returns the user's profile, or an ErrorPayload.
func (t *Toolset) LearningProfile(ctx context.Context, userID int64) any {
	profile, err := t.backend.LearningProfile(ctx, userID)
	if err != nil {
		t.logger.Warn("tools: learning profile failed", "user_id", userID, "error", err)
		return ErrorPayload{Error: err.Error()}
	}
	return profile
}

// PurchasedCourses returns the user's lessons, empty on failure.
func (t *Toolset) PurchasedCourses(ctx context.Context, userID int64) []model.Lesson {
	lessons, err := t.backend.PurchasedCourses(ctx, userID)
	if err != nil {
		t.logger.Warn("tools: purchased courses failed", "user_id", userID, "error", err)
		return []model.Lesson{}
	}
	if lessons == nil {
		lessons = []model.Lesson{}
	}
	return lessons
}

// LearningRecords returns records for courseID, or for the most recent
// lesson when courseID is nil. Empty on failure.
func (t *Toolset) LearningRecords(ctx context.Context, userID int64, courseID *int64) []model.LearningRecord {
	records, err := t.backend.FetchLearningRecords(ctx, userID, courseID)
	if err != nil {
		t.logger.Warn("tools: learning records failed", "user_id", userID, "error", err)
		return []model.LearningRecord{}
	}
	if records == nil {
		records = []model.LearningRecord{}
	}
	return records
}

// SearchCourses queries the index, empty on failure.
func (t *Toolset) SearchCourses(ctx context.Context, query string, topK int) []model.SearchResult {
	results, err := t.searcher.Query(ctx, query, topK, nil)
	if err != nil {
		t.logger.Warn("tools: search failed", "query", query, "error", err)
		return []model.SearchResult{}
	}
	if results == nil {
		results = []model.SearchResult{}
	}
	return results
}

// Call runs the tool of the given kind with decoded arguments. It fails
// only on KindUnknown or on missing or malformed arguments.
func (t *Toolset) Call(ctx context.Context, kind Kind, args map[string]any) (any, error) {
	switch kind {
	case KindProfile:
		userID, err := requiredInt(args, "user_id")
		if err != nil {
			return nil, err
		}
		return t.LearningProfile(ctx, userID), nil
	case KindPurchased:
		userID, err := requiredInt(args, "user_id")
		if err != nil {
			return nil, err
		}
		return t.PurchasedCourses(ctx, userID), nil
	case KindRecords:
		userID, err := requiredInt(args, "user_id")
		if err != nil {
			return nil, err
		}
		courseID, err := optionalInt(args, "course_id")
		if err != nil {
			return nil, err
		}
		if courseID != nil && *courseID <= 0 {
			// Models send 0 for "no course"; fall back to the first lesson.
			courseID = nil
		}
		return t.LearningRecords(ctx, userID, courseID), nil
	case KindSearch:
		query, ok := args["query"].(string)
		if !ok || strings.TrimSpace(query) == "" {
			return nil, fmt.Errorf("tools: argument %q is required", "query")
		}
		topK := DefaultTopK
		if v, err := optionalInt(args, "top_k"); err != nil {
			return nil, err
		} else if v != nil {
			topK = int(*v)
		}
		return t.SearchCourses(ctx, query, topK), nil
	default:
		return nil, ErrToolNotFound
	}
}

// Dispatch looks up name, decodes argsJSON and runs the tool. The returned
// text is always a usable tool result. A non-nil error reports that the
// text describes a failure: ErrToolNotFound for an unknown name, or a
// wrapped argument error.
func (t *Toolset) Dispatch(ctx context.Context, name, argsJSON string) (string, error) {
	kind := ParseKind(name)
	if kind == KindUnknown {
		return Render(ErrorPayload{Error: "未找到工具: " + name}), fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	args := map[string]any{}
	if s := strings.TrimSpace(argsJSON); s != "" {
		dec := json.NewDecoder(strings.NewReader(s))
		dec.UseNumber()
		if err := dec.Decode(&args); err != nil {
			err = fmt.Errorf("tools: decode arguments for %s: %w", name, err)
			return failure(err), err
		}
	}

	out, err := t.Call(ctx, kind, args)
	if err != nil {
		return failure(err), err
	}
	return Render(out), nil
}

func failure(err error) string {
	return "工具执行失败: " + err.Error()
}

// Render converts a tool result to text. Strings and other scalars are
// written as is; everything else becomes two-space indented JSON with
// non-ASCII characters left unescaped.
func Render(v any) string {
	switch s := v.(type) {
	case nil:
		return "null"
	case string:
		return s
	case fmt.Stringer:
		return s.String()
	case bool, int, int32, int64, float32, float64, json.Number:
		return fmt.Sprint(s)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Sprint(v)
	}
	return strings.TrimRight(buf.String(), "\n")
}

func requiredInt(args map[string]any, key string) (int64, error) {
	v, err := optionalInt(args, key)
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, fmt.Errorf("tools: argument %q is required", key)
	}
	return *v, nil
}

// optionalInt accepts JSON numbers and numeric strings, since models emit
// both for id arguments.
func optionalInt(args map[string]any, key string) (*int64, error) {
	raw, ok := args[key]
	if !ok || raw == nil {
		return nil, nil
	}
	var n int64
	switch v := raw.(type) {
	case json.Number:
		i, err := v.Int64()
		if err != nil {
			f, ferr := v.Float64()
			if ferr != nil || f != math.Trunc(f) {
				return nil, fmt.Errorf("tools: argument %q must be an integer, got %s", key, v)
			}
			i = int64(f)
		}
		n = i
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("tools: argument %q must be an integer, got %v", key, v)
		}
		n = int64(v)
	case int:
		n = int64(v)
	case int64:
		n = v
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("tools: argument %q must be an integer, got %q", key, v)
		}
		n = i
	default:
		return nil, fmt.Errorf("tools: argument %q must be an integer, got %T", key, raw)
	}
	return &n, nil
}
