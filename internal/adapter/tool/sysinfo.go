package tool

import (
	"context"
	"encoding/json"
	"log/slog"
	"runtime"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/trace"

	"genesis-ai/internal/domain"
)

// SysInfoTool reports basic host and runtime information.
type SysInfoTool struct {
	logger *slog.Logger
}

// NewSysInfoTool creates the system info tool.
func NewSysInfoTool(logger *slog.Logger) *SysInfoTool {
	return &SysInfoTool{logger: logger}
}

func (t *SysInfoTool) Name() string { return "get_system_info" }

func (t *SysInfoTool) Description() string {
	return "Get basic information about the host system: OS, architecture, runtime version and current time. Takes no parameters."
}

func (t *SysInfoTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{
		Name:        t.Name(),
		Description: t.Description(),
		Parameters:  json.RawMessage(`{"type":"object","properties":{}}`),
	}
}

type sysInfoParams struct{}

func (t *SysInfoTool) Execute(ctx context.Context, params json.RawMessage) (*domain.ToolResult, error) {
	return Execute(ctx, "tool.get_system_info", t.logger, params,
		func(ctx context.Context, span trace.Span, p sysInfoParams) (any, error) {
			return map[string]string{
				"os":           runtime.GOOS,
				"architecture": runtime.GOARCH,
				"go_version":   runtime.Version(),
				"num_cpu":      strconv.Itoa(runtime.NumCPU()),
				"current_time": time.Now().Format(time.RFC3339),
			}, nil
		},
	)
}
