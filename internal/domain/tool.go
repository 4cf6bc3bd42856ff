package domain

import (
	"context"
	"encoding/json"
)

// ToolSchema describes a tool for the model's function-calling protocol.
// Parameters is a JSON Schema object supplied verbatim to the model client.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

// Tool is the interface every invocable capability must implement.
type Tool interface {
	Name() string
	Description() string
	Schema() ToolSchema
	Execute(ctx context.Context, params json.RawMessage) (*ToolResult, error)
}

// ToolExecutor abstracts tool lookup and schema listing. Implementations
// must be safe for concurrent lookup from many simultaneous turns.
type ToolExecutor interface {
	// Get resolves a tool by name; unknown names return ErrToolNotFound.
	Get(name string) (Tool, error)
	// Schemas returns the full schema catalogue for the decision call.
	Schemas() []ToolSchema
}
