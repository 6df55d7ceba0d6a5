package michi

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/michi/internal/llm"
	"github.com/ashita-ai/michi/internal/model"
	"github.com/ashita-ai/michi/internal/search"
	"github.com/ashita-ai/michi/internal/service/embedding"
	"github.com/ashita-ai/michi/internal/storage"
	"github.com/ashita-ai/michi/internal/testutil"
	"github.com/ashita-ai/michi/internal/tools"
)

type fakeBackend struct {
	courses     []model.Course
	catalogErr  error
	catalogHits atomic.Int32
	closed      atomic.Bool
}

func (f *fakeBackend) FetchAllCourses(context.Context) ([]model.Course, error) {
	f.catalogHits.Add(1)
	return f.courses, f.catalogErr
}

func (f *fakeBackend) FetchCourseDetail(_ context.Context, id int64) (model.CourseDetail, error) {
	return model.CourseDetail{ID: id, CourseIntroduce: "golang concurrency"}, nil
}

func (f *fakeBackend) LearningProfile(context.Context, int64) (model.LearningProfile, error) {
	return model.NewLearningProfile(0, nil), nil
}

func (f *fakeBackend) PurchasedCourses(context.Context, int64) ([]model.Lesson, error) {
	return []model.Lesson{}, nil
}

func (f *fakeBackend) FetchLearningRecords(context.Context, int64, *int64) ([]model.LearningRecord, error) {
	return []model.LearningRecord{}, nil
}

func (f *fakeBackend) Close() error {
	f.closed.Store(true)
	return nil
}

// searchThenAnswer asks for one search and then answers with the tool output.
type searchThenAnswer struct{}

func (searchThenAnswer) Complete(_ context.Context, req llm.Request) (llm.Message, error) {
	last := req.Messages[len(req.Messages)-1]
	if last.Role == llm.RoleTool {
		return llm.Message{Role: llm.RoleAssistant, Content: "found: " + last.Content}, nil
	}
	return llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
		{ID: "c1", Name: tools.NameSearch, Arguments: `{"query":"golang","top_k":1}`},
	}}, nil
}

func newIndex() *search.Index {
	return search.NewIndex(search.NewMemoryStore("courses"), embedding.NewNoopProvider(8), testutil.TestLogger())
}

func newTestApp(t *testing.T, b *fakeBackend, opts ...Option) *App {
	t.Helper()
	base := []Option{
		WithBackend(b),
		WithIndex(newIndex()),
		WithLogger(testutil.TestLogger()),
		WithVersion("test"),
	}
	app, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close(context.Background()) })
	return app
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(WithIndex(newIndex()))
	assert.ErrorContains(t, err, "backend")
	_, err = New(WithBackend(&fakeBackend{}))
	assert.ErrorContains(t, err, "index")
}

func TestLifecycle(t *testing.T) {
	b := &fakeBackend{}
	app := newTestApp(t, b)
	ctx := context.Background()

	assert.Equal(t, StateInit, app.State())
	_, err := app.Sync(ctx, false)
	assert.ErrorIs(t, err, ErrNotReady)
	_, err = app.Stats(ctx)
	assert.ErrorIs(t, err, ErrNotReady)

	require.NoError(t, app.Start(ctx))
	assert.Equal(t, StateReady, app.State())
	require.NoError(t, app.Start(ctx), "start is idempotent")

	require.NoError(t, app.Close(ctx))
	require.NoError(t, app.Close(ctx))
	assert.Equal(t, StateClosed, app.State())
	assert.True(t, b.closed.Load())

	_, err = app.Chat(ctx, 1, "hi")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, app.Start(ctx), ErrClosed)
}

func TestStartColdSync(t *testing.T) {
	b := &fakeBackend{courses: []model.Course{{ID: 1, Name: "Go"}, {ID: 2, Name: "Rust"}}}
	ledger := storage.NewMemoryLedger()
	app := newTestApp(t, b, WithLedger(ledger))
	ctx := context.Background()

	require.NoError(t, app.Start(ctx))
	st, err := app.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), st.DocumentCount)
	assert.Equal(t, "courses", st.Collection)
	assert.True(t, st.Healthy)
	assert.Equal(t, "test", st.Version)
	require.NotNil(t, st.LastSync)
	assert.Equal(t, 2, st.LastSync.Indexed)
}

func TestStartSkipsSyncWhenDisabledOrPopulated(t *testing.T) {
	b := &fakeBackend{courses: []model.Course{{ID: 1, Name: "Go"}}}
	app := newTestApp(t, b, WithAutoSync(false))
	require.NoError(t, app.Start(context.Background()))
	assert.Zero(t, b.catalogHits.Load())

	st, err := app.Stats(context.Background())
	require.NoError(t, err)
	assert.Nil(t, st.LastSync)
}

func TestStartToleratesColdSyncFailure(t *testing.T) {
	b := &fakeBackend{catalogErr: errors.New("backend: unavailable")}
	app := newTestApp(t, b)
	require.NoError(t, app.Start(context.Background()))
	assert.Equal(t, StateReady, app.State())
}

func TestForcedSync(t *testing.T) {
	b := &fakeBackend{courses: []model.Course{{ID: 1, Name: "Go"}, {ID: 2, Name: "Rust"}}}
	app := newTestApp(t, b)
	ctx := context.Background()
	require.NoError(t, app.Start(ctx))

	b.courses = b.courses[:1]
	n, err := app.Sync(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	st, err := app.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), st.DocumentCount)
	assert.True(t, st.LastSync.Forced)
}

func TestChat(t *testing.T) {
	b := &fakeBackend{courses: []model.Course{{ID: 1, Name: "Go"}}}
	app := newTestApp(t, b, WithChatModel(searchThenAnswer{}), WithMaxRounds(2))
	ctx := context.Background()
	require.NoError(t, app.Start(ctx))

	answer, err := app.Chat(ctx, 7, "推荐")
	require.NoError(t, err)
	assert.Contains(t, answer, "found: ")
	assert.Contains(t, answer, "course_1")
}

// systemEcho answers with the system prompt it was given.
type systemEcho struct{}

func (systemEcho) Complete(_ context.Context, req llm.Request) (llm.Message, error) {
	return llm.Message{Role: llm.RoleAssistant, Content: req.Messages[0].Content}, nil
}

func TestChatWithContext(t *testing.T) {
	app := newTestApp(t, &fakeBackend{}, WithChatModel(systemEcho{}), WithAutoSync(false))
	ctx := context.Background()
	require.NoError(t, app.Start(ctx))

	answer, err := app.ChatWithContext(ctx, 7, "推荐", map[string]any{"channel": "app"})
	require.NoError(t, err)
	assert.Contains(t, answer, `"channel":"app"`)

	answer, err = app.Chat(ctx, 7, "推荐")
	require.NoError(t, err)
	assert.NotContains(t, answer, "对话上下文")
}

func TestChatWithoutModel(t *testing.T) {
	app := newTestApp(t, &fakeBackend{}, WithAutoSync(false))
	require.NoError(t, app.Start(context.Background()))
	_, err := app.Chat(context.Background(), 1, "hi")
	assert.ErrorIs(t, err, ErrNoChatModel)
	assert.NotNil(t, app.Toolset())
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "ready", StateReady.String())
	assert.Equal(t, "closed", StateClosed.String())
}
