package usecase

import (
	"log/slog"

	"genesis-ai/internal/domain"
)

// SanitizeChains rewrites a message sequence so that every tool message is
// answered by an earlier assistant tool call and every assistant message
// carrying tool calls is followed by exactly one tool message per call.
// Incomplete groups are dropped whole. Relative order of surviving messages
// is preserved, and tool results are emitted in the order the assistant
// requested them. Returns a new slice (does not modify the input).
//
// The rewrite is idempotent: applying it to its own output is a no-op.
func SanitizeChains(messages []domain.Message, log *slog.Logger) []domain.Message {
	if len(messages) == 0 {
		return messages
	}
	return assembleChains(dropOrphans(messages, log), log)
}

// dropOrphans removes tool messages that answer no earlier assistant tool
// call. Matching is by tool_call_id first, tool name second.
func dropOrphans(messages []domain.Message, log *slog.Logger) []domain.Message {
	out := make([]domain.Message, 0, len(messages))

	for i, msg := range messages {
		if msg.Role != domain.RoleTool {
			out = append(out, msg)
			continue
		}

		if findCaller(messages[:i], msg) {
			out = append(out, msg)
			continue
		}

		log.Warn("dropping orphaned tool message",
			"tool_call_id", msg.ToolCallID,
			"tool_name", msg.ToolName,
		)
	}
	return out
}

// findCaller reports whether any assistant message in prefix carries a tool
// call matching the given tool message.
func findCaller(prefix []domain.Message, tool domain.Message) bool {
	for i := len(prefix) - 1; i >= 0; i-- {
		if prefix[i].Role != domain.RoleAssistant {
			continue
		}
		for _, tc := range prefix[i].ToolCalls {
			if tc.ID != "" && tc.ID == tool.ToolCallID {
				return true
			}
			if tc.Name != "" && tc.Name == tool.ToolName {
				return true
			}
		}
	}
	return false
}

// assembleChains walks an orphan-free sequence and emits each assistant
// tool-call group only when every call has exactly one response. Responses
// are reordered to match the assistant's tool_calls order.
func assembleChains(messages []domain.Message, log *slog.Logger) []domain.Message {
	out := make([]domain.Message, 0, len(messages))

	for i := 0; i < len(messages); i++ {
		msg := messages[i]

		if msg.Role != domain.RoleAssistant || !msg.HasToolCalls() {
			out = append(out, msg)
			continue
		}

		// Collect the tool responses that immediately follow, stopping at
		// the next user/assistant message.
		j := i + 1
		for j < len(messages) && messages[j].Role == domain.RoleTool {
			j++
		}
		responses := messages[i+1 : j]

		ordered, complete := matchResponses(msg.ToolCalls, responses)
		if complete {
			out = append(out, msg)
			out = append(out, ordered...)
		} else {
			log.Warn("dropping incomplete tool chain",
				"tool_calls", len(msg.ToolCalls),
				"responses", len(responses),
			)
		}
		i = j - 1
	}
	return out
}

// matchResponses pairs each tool call with exactly one response, returning
// the responses in tool_calls order. complete is false if any call lacks a
// response.
func matchResponses(calls []domain.ToolCall, responses []domain.Message) ([]domain.Message, bool) {
	used := make([]bool, len(responses))
	ordered := make([]domain.Message, 0, len(calls))

	for _, tc := range calls {
		found := false
		for ri := range responses {
			if used[ri] {
				continue
			}
			if (tc.ID != "" && responses[ri].ToolCallID == tc.ID) ||
				(responses[ri].ToolCallID == "" && tc.Name != "" && responses[ri].ToolName == tc.Name) {
				used[ri] = true
				ordered = append(ordered, responses[ri])
				found = true
				break
			}
		}
		if !found {
			return nil, false
		}
	}
	return ordered, true
}
