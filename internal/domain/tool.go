package domain

import (
	"context"
	"encoding/json"
	"time"
)

// ToolSchema describes a tool for the LLM function-calling protocol.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// ToolCall represents an LLM's request to invoke a tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a tool.
type ToolResult struct {
	ToolCallID  string `json:"tool_call_id"`
	Content     string `json:"content"`
	IsError     bool   `json:"is_error"`
	IsRetryable bool   `json:"is_retryable,omitempty"`
}

// Tool is the interface every tool must implement. Tools fetched from the
// remote provider are bound to the session that listed them.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup. One executor is built per tool
// provider session and shared by every agent that carries tools.
type ToolExecutor interface {
	Get(name string) (Tool, error)
	Schemas() []ToolSchema
}

// NewToolMessage builds the tool-role message answering call. The call ID is
// carried in ToolCalls[0] so that providers can map it to their wire format.
func NewToolMessage(call ToolCall, content string) Message {
	return Message{
		Role:    RoleTool,
		Name:    call.Name,
		Content: content,
		ToolCalls: []ToolCall{{
			ID:   call.ID,
			Name: call.Name,
		}},
		Timestamp: time.Now(),
	}
}

// ToolCallID returns the ID of the call a tool-role message answers.
func (m Message) ToolCallID() string {
	if m.Role == RoleTool && len(m.ToolCalls) > 0 {
		return m.ToolCalls[0].ID
	}
	return ""
}
