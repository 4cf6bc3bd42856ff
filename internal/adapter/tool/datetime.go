package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"genesis-ai/internal/domain"
)

// DatetimeTool reports the server's current date and time.
type DatetimeTool struct {
	logger *slog.Logger
	now    func() time.Time
}

// NewDatetimeTool creates the datetime tool.
func NewDatetimeTool(logger *slog.Logger) *DatetimeTool {
	return &DatetimeTool{logger: logger, now: time.Now}
}

func (t *DatetimeTool) Name() string { return "get_current_datetime" }

func (t *DatetimeTool) Description() string {
	return "Get the server's current date and time. Takes no parameters and returns a 'YYYY-MM-DD HH:MM:SS' string."
}

func (t *DatetimeTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

type datetimeParams struct{}

func (t *DatetimeTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_current_datetime", t.logger, params,
		func(ctx context.Context, span trace.Span, p datetimeParams) (any, error) {
			return t.now().Format("2006-01-02 15:04:05"), nil
		},
	)
}
