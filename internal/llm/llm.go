// Package llm is the chat-model boundary used by the orchestration loop.
package llm

import (
	"context"
	"errors"

	mcplib "github.com/mark3labs/mcp-go/mcp"
)

// Role is the author of a Message.
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolCall is one tool invocation requested by the model. Arguments is the
// raw JSON object the model produced.
type ToolCall struct {
	ID        string
	Name      string
	Arguments string
}

// Message is one entry in a conversation. Assistant messages may carry
// ToolCalls; tool messages carry the ToolCallID they answer.
type Message struct {
	Role       Role
	Content    string
	ToolCalls  []ToolCall
	ToolCallID string
}

// Request is a single completion call. With no Tools the model must answer
// in text.
type Request struct {
	Messages []Message
	Tools    []mcplib.Tool
}

// ErrEmptyResponse is returned when the provider answers with no choices.
var ErrEmptyResponse = errors.New("llm: empty response")

// ChatModel produces the next assistant message for a conversation.
// Implementations must be safe for concurrent use.
type ChatModel interface {
	Complete(ctx context.Context, req Request) (Message, error)
}
