package usecase

import (
	"log/slog"

	"genesis-ai/internal/domain"
)

// ContextGuard keeps the outbound context within the model's token budget
// by trimming the oldest window messages at safe chain boundaries.
type ContextGuard struct {
	counter   domain.TokenCounter
	maxTokens int
	log       *slog.Logger
}

// NewContextGuard creates a guard enforcing maxTokens over the whole
// outbound context.
func NewContextGuard(counter domain.TokenCounter, maxTokens int, log *slog.Logger) *ContextGuard {
	if maxTokens <= 0 {
		maxTokens = 128000
	}
	return &ContextGuard{counter: counter, maxTokens: maxTokens, log: log}
}

// Fit trims window from the front until window+fixed fits the budget.
// fixed holds the messages that must always be sent (system prompt, new
// user message). Trimming only cuts at chain boundaries so the surviving
// window stays chain-complete. If even an empty window is over budget the
// fixed messages are returned as-is; the provider surfaces the overflow.
func (g *ContextGuard) Fit(window, fixed []domain.Message) []domain.Message {
	if g == nil || g.counter == nil {
		return window
	}

	fixedTokens := g.counter.CountMessages(fixed)
	for len(window) > 0 {
		if fixedTokens+g.counter.CountMessages(window) <= g.maxTokens {
			return window
		}
		window = trimLeadingGroup(window)
	}

	if fixedTokens > g.maxTokens {
		g.log.Warn("context guard: fixed messages alone exceed token budget",
			"tokens", fixedTokens,
			"max_tokens", g.maxTokens,
		)
	} else {
		g.log.Warn("context guard: window fully trimmed to fit token budget")
	}
	return window
}

// trimLeadingGroup drops the first message and, when it opened a tool
// chain, the tool results that belonged to it.
func trimLeadingGroup(window []domain.Message) []domain.Message {
	if len(window) == 0 {
		return window
	}
	i := 1
	if window[0].Role == domain.RoleAssistant && window[0].HasToolCalls() {
		for i < len(window) && window[i].Role == domain.RoleTool {
			i++
		}
	}
	return window[i:]
}
