package domain

import (
	"encoding/json"
	"time"
)

// Role constants for message roles.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is one turn unit in a conversation transcript.
//
// ToolCalls is populated only on assistant messages that request tool
// invocations. ToolCallID and ToolName are populated only on tool-role
// messages and identify the request the result answers. Seq is the
// per-session monotonic position assigned by the store on append; it is the
// stable ordering key alongside Timestamp.
type Message struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
	ToolName   string     `json:"tool_name,omitempty"`
	Seq        int64      `json:"seq,omitempty"`
	Timestamp  time.Time  `json:"timestamp"`
}

// HasToolCalls reports whether this is an assistant message carrying
// tool-call requests.
func (m Message) HasToolCalls() bool {
	return m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

// ToolCall is a reasoning model's request to invoke a tool. The ID is unique
// within its owning assistant message; Arguments is the opaque JSON payload
// passed verbatim to the tool.
type ToolCall struct {
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// ToolResult is the outcome of executing a single tool call. Content carries
// either the tool's stringified output or a synthesized error description;
// tools never fail the overall turn.
type ToolResult struct {
	ToolCallID string `json:"tool_call_id"`
	ToolName   string `json:"tool_name"`
	Content    string `json:"content"`
	IsError    bool   `json:"is_error,omitempty"`
}

// Message converts a tool result into its persistable tool-role message.
func (r ToolResult) Message() Message {
	return Message{
		Role:       RoleTool,
		Content:    r.Content,
		ToolCallID: r.ToolCallID,
		ToolName:   r.ToolName,
		Timestamp:  time.Now(),
	}
}

// Usage tracks token consumption reported by the reasoning model.
type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add sums two usage reports, e.g. the decision and summary calls of one turn.
func (u Usage) Add(other Usage) Usage {
	return Usage{
		PromptTokens:     u.PromptTokens + other.PromptTokens,
		CompletionTokens: u.CompletionTokens + other.CompletionTokens,
		TotalTokens:      u.TotalTokens + other.TotalTokens,
	}
}

// Session is a conversation identified by an opaque stable ID. Its message
// log is append-only; the system prompt is the only mutable field.
type Session struct {
	ID           string    `json:"session_id"`
	SystemPrompt string    `json:"system_prompt"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// ToolInvocation describes one tool call made during a turn, reported back
// to the caller with already-parsed arguments.
type ToolInvocation struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// TurnResult is what a completed turn returns to the caller.
type TurnResult struct {
	SessionID   string           `json:"session_id"`
	FinalAnswer string           `json:"final_answer"`
	ToolsUsed   []ToolInvocation `json:"tools_used"`
	Usage       Usage            `json:"usage"`
}
