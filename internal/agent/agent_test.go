package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ashita-ai/michi/internal/llm"
	"github.com/ashita-ai/michi/internal/model"
	"github.com/ashita-ai/michi/internal/search"
	"github.com/ashita-ai/michi/internal/testutil"
	"github.com/ashita-ai/michi/internal/tools"
)

// scriptedModel replays fixed replies and records every request.
type scriptedModel struct {
	mu       sync.Mutex
	replies  []llm.Message
	err      error
	requests []llm.Request
}

func (m *scriptedModel) Complete(_ context.Context, req llm.Request) (llm.Message, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, req)
	if m.err != nil {
		return llm.Message{}, m.err
	}
	if len(m.replies) == 0 {
		return llm.Message{Role: llm.RoleAssistant}, nil
	}
	next := m.replies[0]
	m.replies = m.replies[1:]
	return next, nil
}

// loopingModel asks for a tool on every turn that offers tools.
type loopingModel struct {
	calls     int
	finalText string
}

func (m *loopingModel) Complete(_ context.Context, req llm.Request) (llm.Message, error) {
	m.calls++
	if len(req.Tools) == 0 {
		return llm.Message{Role: llm.RoleAssistant, Content: m.finalText}, nil
	}
	return llm.Message{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
		{ID: fmt.Sprintf("call_%d", m.calls), Name: tools.NameSearch, Arguments: `{"query":"go"}`},
	}}, nil
}

type recordingDispatcher struct {
	calls []string
}

func (d *recordingDispatcher) Dispatch(_ context.Context, name, args string) (string, error) {
	d.calls = append(d.calls, name)
	return "result of " + name + " " + args, nil
}

type stubBackend struct{}

func (stubBackend) LearningProfile(context.Context, int64) (model.LearningProfile, error) {
	return model.NewLearningProfile(0, nil), nil
}

func (stubBackend) PurchasedCourses(context.Context, int64) ([]model.Lesson, error) {
	return nil, errors.New("backend: unavailable")
}

func (stubBackend) FetchLearningRecords(context.Context, int64, *int64) ([]model.LearningRecord, error) {
	return nil, nil
}

type stubSearcher struct{}

func (stubSearcher) Query(context.Context, string, int, search.Filter) ([]model.SearchResult, error) {
	return []model.SearchResult{}, nil
}

func newAgent(m llm.ChatModel, d Dispatcher, maxRounds int) *Agent {
	return New(m, d, tools.Declarations(), Config{MaxRounds: maxRounds, Logger: testutil.TestLogger()})
}

func TestRunDirectAnswer(t *testing.T) {
	m := &scriptedModel{replies: []llm.Message{{Role: llm.RoleAssistant, Content: "  你好，推荐 Go 入门。\n"}}}
	d := &recordingDispatcher{}

	res, err := newAgent(m, d, 0).Run(context.Background(), 42, "推荐一门课")
	require.NoError(t, err)
	assert.Equal(t, "  你好，推荐 Go 入门。\n", res.Answer, "content returned unchanged")
	assert.Zero(t, res.Rounds)
	assert.Empty(t, d.calls)

	require.Len(t, m.requests, 1)
	req := m.requests[0]
	require.Len(t, req.Messages, 2)
	assert.Equal(t, llm.RoleSystem, req.Messages[0].Role)
	assert.Contains(t, req.Messages[0].Content, "课程推荐助手")
	assert.Contains(t, req.Messages[0].Content, "当前用户ID：42")
	assert.Equal(t, llm.Message{Role: llm.RoleUser, Content: "推荐一门课"}, req.Messages[1])
	assert.Len(t, req.Tools, 4)
}

func TestRunExecutesToolsInOrder(t *testing.T) {
	m := &scriptedModel{replies: []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "a", Name: tools.NameProfile, Arguments: `{"user_id":1}`},
			{ID: "b", Name: tools.NameSearch, Arguments: `{"query":"go"}`},
		}},
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "c", Name: tools.NamePurchased, Arguments: `{"user_id":1}`},
		}},
		{Role: llm.RoleAssistant, Content: "done"},
	}}
	d := &recordingDispatcher{}

	res, err := newAgent(m, d, 0).Run(context.Background(), 1, "q")
	require.NoError(t, err)
	assert.Equal(t, "done", res.Answer)
	assert.Equal(t, 2, res.Rounds)
	assert.Equal(t, 3, res.ToolCalls)
	assert.False(t, res.Limited)
	assert.Equal(t, []string{tools.NameProfile, tools.NameSearch, tools.NamePurchased}, d.calls)

	// Third request sees system, user, assistant, tool a, tool b, assistant, tool c.
	require.Len(t, m.requests, 3)
	history := m.requests[2].Messages
	require.Len(t, history, 7)
	assert.Equal(t, "a", history[3].ToolCallID)
	assert.Equal(t, "b", history[4].ToolCallID)
	assert.Equal(t, "c", history[6].ToolCallID)
	assert.Equal(t, llm.RoleTool, history[6].Role)
	assert.Equal(t, `result of get_user_purchased_courses {"user_id":1}`, history[6].Content)
}

func TestRunUnknownToolDoesNotAbort(t *testing.T) {
	m := &scriptedModel{replies: []llm.Message{
		{Role: llm.RoleAssistant, ToolCalls: []llm.ToolCall{
			{ID: "x", Name: "format_disk", Arguments: `{}`},
			{ID: "y", Name: tools.NamePurchased, Arguments: `{"user_id":3}`},
		}},
		{Role: llm.RoleAssistant, Content: "sorry"},
	}}
	ts := tools.New(stubBackend{}, stubSearcher{}, testutil.TestLogger())

	res, err := newAgent(m, ts, 0).Run(context.Background(), 3, "q")
	require.NoError(t, err)
	assert.Equal(t, "sorry", res.Answer)

	history := m.requests[1].Messages
	unknown := history[3]
	assert.Equal(t, "x", unknown.ToolCallID)
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(unknown.Content), &payload))
	assert.Equal(t, "未找到工具: format_disk", payload["error"])

	assert.Equal(t, "[]", history[4].Content, "backend failure becomes an empty list")
}

func TestRunRoundCapFinalAnswer(t *testing.T) {
	m := &loopingModel{finalText: "best effort"}
	d := &recordingDispatcher{}

	res, err := newAgent(m, d, 3).Run(context.Background(), 1, "q")
	require.NoError(t, err)
	assert.Equal(t, "best effort", res.Answer)
	assert.True(t, res.Limited)
	assert.Equal(t, 3, res.Rounds)
	assert.Len(t, d.calls, 3)
	assert.Equal(t, 4, m.calls)
}

func TestRunRoundCapNoAnswer(t *testing.T) {
	m := &loopingModel{}
	res, err := newAgent(m, &recordingDispatcher{}, 2).Run(context.Background(), 1, "q")
	assert.ErrorIs(t, err, ErrRoundLimit)
	assert.Equal(t, 2, res.Rounds)
}

func TestRunDefaultRoundCap(t *testing.T) {
	m := &loopingModel{finalText: "ok"}
	d := &recordingDispatcher{}
	res, err := newAgent(m, d, 0).Run(context.Background(), 1, "q")
	require.NoError(t, err)
	assert.Equal(t, DefaultMaxRounds, res.Rounds)
	assert.Len(t, d.calls, DefaultMaxRounds)
}

func TestRunModelFailurePropagates(t *testing.T) {
	boom := errors.New("llm: upstream 503")
	_, err := newAgent(&scriptedModel{err: boom}, &recordingDispatcher{}, 0).Run(context.Background(), 1, "q")
	assert.ErrorIs(t, err, boom)
}

func TestRunCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	m := &scriptedModel{}
	_, err := newAgent(m, &recordingDispatcher{}, 0).Run(ctx, 1, "q")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, m.requests)
}

// echoModel answers with the first user message it sees.
type echoModel struct{}

func (echoModel) Complete(_ context.Context, req llm.Request) (llm.Message, error) {
	for _, m := range req.Messages {
		if m.Role == llm.RoleUser {
			return llm.Message{Role: llm.RoleAssistant, Content: "echo " + m.Content}, nil
		}
	}
	return llm.Message{Role: llm.RoleAssistant}, nil
}

func TestConcurrentRunsAreIsolated(t *testing.T) {
	a := newAgent(echoModel{}, &recordingDispatcher{}, 0)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			msg := fmt.Sprintf("question %d", i)
			res, err := a.Run(context.Background(), int64(i+1), msg)
			assert.NoError(t, err)
			assert.Equal(t, "echo "+msg, res.Answer)
		}()
	}
	wg.Wait()
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "reasoning", StateReasoning.String())
	assert.Equal(t, "acting", StateActing.String())
	assert.Equal(t, "done", StateDone.String())
	assert.Equal(t, "State(9)", State(9).String())
}

func TestRunWithContextReachesModel(t *testing.T) {
	m := &scriptedModel{replies: []llm.Message{{Role: llm.RoleAssistant, Content: "好的"}}}

	extra := map[string]any{"page": "course_detail", "course_id": 12}
	res, err := newAgent(m, &recordingDispatcher{}, 0).RunWithContext(context.Background(), 5, "这门课适合我吗", extra)
	require.NoError(t, err)
	assert.Equal(t, "好的", res.Answer)

	require.Len(t, m.requests, 1)
	system := m.requests[0].Messages[0].Content
	assert.Contains(t, system, "当前用户ID：5")
	assert.Contains(t, system, `对话上下文：{"course_id":12,"page":"course_detail"}`)
}

func TestSystemPrompt(t *testing.T) {
	assert.Equal(t, basePrompt, systemPrompt(0, nil))
	assert.NotContains(t, systemPrompt(9, map[string]any{}), "对话上下文")
	assert.Contains(t, systemPrompt(9, nil), "当前用户ID：9")
}
