package token

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"genesis-ai/internal/domain"
)

// Per-message wire overhead in tokens, matching the OpenAI chat format
// (role framing plus separators).
const messageOverhead = 4

// TiktokenCounter implements domain.TokenCounter with a real BPE encoding.
type TiktokenCounter struct {
	encoding *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding ("cl100k_base" when empty).
func NewTiktokenCounter(encodingName string) (*TiktokenCounter, error) {
	if encodingName == "" {
		encodingName = "cl100k_base"
	}
	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, fmt.Errorf("load encoding %q: %w", encodingName, err)
	}
	return &TiktokenCounter{encoding: enc}, nil
}

func (c *TiktokenCounter) CountMessages(messages []domain.Message) int {
	total := 0
	for _, msg := range messages {
		total += messageOverhead
		total += len(c.encoding.Encode(msg.Content, nil, nil))
		for _, tc := range msg.ToolCalls {
			total += len(c.encoding.Encode(tc.Name, nil, nil))
			total += len(c.encoding.Encode(string(tc.Arguments), nil, nil))
		}
		if msg.ToolName != "" {
			total += len(c.encoding.Encode(msg.ToolName, nil, nil))
		}
	}
	return total
}
