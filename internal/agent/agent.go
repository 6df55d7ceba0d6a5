// Package agent runs the reasoning/acting loop that answers a learner's
// question with the help of the tool layer.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/ashita-ai/michi/internal/llm"
	"github.com/ashita-ai/michi/internal/telemetry"
	"github.com/ashita-ai/michi/internal/tools"
)

// DefaultMaxRounds bounds tool-requesting model turns per conversation.
const DefaultMaxRounds = 8

// ErrRoundLimit is returned when the round cap is reached and the model
// still produces no answer once tools are withdrawn.
var ErrRoundLimit = errors.New("agent: round limit reached")

// Dispatcher executes a tool call by name. The returned text is always a
// usable tool result; a non-nil error only signals that it describes a
// failure.
type Dispatcher interface {
	Dispatch(ctx context.Context, name, argsJSON string) (string, error)
}

// State is the loop position of a Conversation.
type State int

const (
	StateReasoning State = iota
	StateActing
	StateDone
)

func (s State) String() string {
	switch s {
	case StateReasoning:
		return "reasoning"
	case StateActing:
		return "acting"
	case StateDone:
		return "done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Conversation is the isolated state of one invocation.
type Conversation struct {
	UserID int64
	// Context is caller-supplied background (channel, page, locale, ...)
	// shown to the model alongside the user id.
	Context map[string]any
	History []llm.Message
	State   State
	// Rounds counts model turns that requested tools.
	Rounds int
}

// Result is the outcome of a conversation.
type Result struct {
	Answer    string
	Rounds    int
	ToolCalls int
	// Limited is set when the answer came from the final no-tools call.
	Limited bool
}

// Config tunes an Agent. Zero values pick defaults.
type Config struct {
	MaxRounds int
	Logger    *slog.Logger
}

// Agent is safe for concurrent use; every Run owns its Conversation.
type Agent struct {
	model     llm.ChatModel
	tools     Dispatcher
	decls     []mcplib.Tool
	maxRounds int
	logger    *slog.Logger

	tracer    trace.Tracer
	rounds    metric.Int64Counter
	toolCalls metric.Int64Counter
}

// New creates an Agent offering decls to the model and executing calls
// through tools.
func New(model llm.ChatModel, dispatcher Dispatcher, decls []mcplib.Tool, cfg Config) *Agent {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxRounds := cfg.MaxRounds
	if maxRounds <= 0 {
		maxRounds = DefaultMaxRounds
	}

	meter := telemetry.Meter("michi/agent")
	rounds, _ := meter.Int64Counter("michi.agent.rounds",
		metric.WithDescription("Model turns that requested tools"))
	calls, _ := meter.Int64Counter("michi.agent.tool_calls",
		metric.WithDescription("Tool calls executed, by tool and outcome"))

	return &Agent{
		model:     model,
		tools:     dispatcher,
		decls:     decls,
		maxRounds: maxRounds,
		logger:    logger,
		tracer:    telemetry.Tracer("michi/agent"),
		rounds:    rounds,
		toolCalls: calls,
	}
}

// Run answers message on behalf of userID. Only a failed model call (or a
// canceled ctx) is an error; tool failures become tool results.
func (a *Agent) Run(ctx context.Context, userID int64, message string) (Result, error) {
	return a.RunWithContext(ctx, userID, message, nil)
}

// RunWithContext is Run with caller-supplied conversation context.
func (a *Agent) RunWithContext(ctx context.Context, userID int64, message string, extra map[string]any) (Result, error) {
	ctx, span := a.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(attribute.Int64("michi.user_id", userID)))
	defer span.End()

	conv := &Conversation{
		UserID:  userID,
		Context: extra,
		History: []llm.Message{{Role: llm.RoleUser, Content: message}},
		State:   StateReasoning,
	}

	res, err := a.loop(ctx, conv)
	span.SetAttributes(
		attribute.Int("michi.agent.rounds", res.Rounds),
		attribute.Int("michi.agent.tool_calls", res.ToolCalls),
	)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return res, err
}

func (a *Agent) loop(ctx context.Context, conv *Conversation) (Result, error) {
	var res Result
	for {
		switch conv.State {
		case StateReasoning:
			if err := ctx.Err(); err != nil {
				return res, err
			}
			if conv.Rounds >= a.maxRounds {
				return a.finish(ctx, conv, res)
			}

			msg, err := a.model.Complete(ctx, llm.Request{
				Messages: a.messages(conv),
				Tools:    a.decls,
			})
			if err != nil {
				return res, fmt.Errorf("agent: reasoning round %d: %w", conv.Rounds+1, err)
			}
			conv.History = append(conv.History, msg)

			if len(msg.ToolCalls) == 0 {
				res.Answer = msg.Content
				conv.State = StateDone
				continue
			}
			conv.Rounds++
			res.Rounds = conv.Rounds
			a.rounds.Add(ctx, 1)
			conv.State = StateActing

		case StateActing:
			pending := conv.History[len(conv.History)-1].ToolCalls
			for _, call := range pending {
				conv.History = append(conv.History, a.act(ctx, conv, call))
				res.ToolCalls++
			}
			conv.State = StateReasoning

		case StateDone:
			return res, nil
		}
	}
}

// act runs one tool call in emission order and wraps the result as a tool
// message tagged with the call id.
func (a *Agent) act(ctx context.Context, conv *Conversation, call llm.ToolCall) llm.Message {
	a.logger.Info("agent: calling tool",
		"tool", call.Name, "round", conv.Rounds, "user_id", conv.UserID, "arguments", call.Arguments)

	out, err := a.tools.Dispatch(ctx, call.Name, call.Arguments)
	outcome := "ok"
	switch {
	case errors.Is(err, tools.ErrToolNotFound):
		outcome = "not_found"
		a.logger.Warn("agent: unknown tool requested", "tool", call.Name)
	case err != nil:
		outcome = "error"
		a.logger.Error("agent: tool failed", "tool", call.Name, "error", err)
	}
	a.toolCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool", call.Name),
		attribute.String("outcome", outcome),
	))

	return llm.Message{Role: llm.RoleTool, Content: out, ToolCallID: call.ID}
}

// finish makes the last model call with tools withdrawn.
func (a *Agent) finish(ctx context.Context, conv *Conversation, res Result) (Result, error) {
	a.logger.Warn("agent: round limit reached", "rounds", conv.Rounds, "user_id", conv.UserID)

	msgs := append(a.messages(conv), llm.Message{Role: llm.RoleSystem, Content: finalPrompt})
	msg, err := a.model.Complete(ctx, llm.Request{Messages: msgs})
	if err != nil {
		return res, fmt.Errorf("agent: final round: %w", err)
	}
	conv.History = append(conv.History, msg)
	conv.State = StateDone

	if strings.TrimSpace(msg.Content) == "" {
		return res, ErrRoundLimit
	}
	res.Answer = msg.Content
	res.Limited = true
	return res, nil
}

func (a *Agent) messages(conv *Conversation) []llm.Message {
	msgs := make([]llm.Message, 0, len(conv.History)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: systemPrompt(conv.UserID, conv.Context)})
	return append(msgs, conv.History...)
}
