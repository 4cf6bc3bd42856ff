package domain

import "context"

// Decision is the reasoning model's answer to a decision call: either a
// direct assistant message, or a request for tool invocations.
type Decision struct {
	Message Message `json:"message"`
	Model   string  `json:"model"`
	Usage   Usage   `json:"usage"`
}

// ReasoningProvider is the interface to the external reasoning model.
// Both calls are synchronous request/response, fallible, and carry no state
// between invocations.
type ReasoningProvider interface {
	// Decide sends the assembled context plus the tool schema catalogue and
	// returns one assistant decision message (possibly carrying tool calls).
	Decide(ctx context.Context, messages []Message, tools []ToolSchema) (*Decision, error)
	// Summarize sends a context that already contains tool results and
	// returns the final natural-language answer.
	Summarize(ctx context.Context, messages []Message) (string, Usage, error)
	// Name returns the provider's identifier (e.g., "openai", "qwen").
	Name() string
}

// TokenCounter estimates the token footprint of a message sequence.
type TokenCounter interface {
	CountMessages(messages []Message) int
}
