package tool

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"genesis-ai/internal/domain"
	"genesis-ai/internal/infra/tracer"
)

// Execute runs the shared builtin-tool pipeline: decode params, open a
// span, run the handler, shape the outcome into a ToolResult.
//
// Handler return values:
//   - *domain.ToolResult: passed through untouched
//   - string: plain-text success result
//   - anything else: marshaled to indented JSON
//   - a non-nil error: logged and converted to an error result
func Execute[P any](
	ctx context.Context,
	spanName string,
	logger *slog.Logger,
	rawParams json.RawMessage,
	handler func(ctx context.Context, span trace.Span, params P) (any, error),
) (*domain.ToolResult, error) {
	ctx, span := tracer.StartSpan(ctx, spanName,
		trace.WithAttributes(tracer.StringAttr("tool.name", spanName)),
	)
	defer span.End()

	params, err := decodeParams[P](rawParams)
	if err != nil {
		tracer.RecordError(span, err)
		return ErrResult("invalid params: %v", err)
	}

	out, err := handler(ctx, span, params)
	if err != nil {
		tracer.RecordError(span, err)
		logger.Warn(spanName+" failed", "error", err)
		return ErrResult("%s", err.Error())
	}

	return shapeResult(span, out)
}

// decodeParams tolerates absent params, which function-calling models emit
// for zero-argument tools.
func decodeParams[P any](raw json.RawMessage) (P, error) {
	var p P
	if len(raw) == 0 || string(raw) == "null" {
		return p, nil
	}
	err := json.Unmarshal(raw, &p)
	return p, err
}

func shapeResult(span trace.Span, out any) (*domain.ToolResult, error) {
	if res, ok := out.(*domain.ToolResult); ok {
		if res.IsError {
			tracer.RecordError(span, fmt.Errorf("%s", res.Content))
		} else {
			tracer.SetOK(span)
		}
		return res, nil
	}

	if s, ok := out.(string); ok {
		tracer.SetOK(span)
		return &domain.ToolResult{Content: s}, nil
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		tracer.RecordError(span, err)
		return ErrResult("failed to format response: %v", err)
	}
	tracer.SetOK(span)
	return &domain.ToolResult{Content: string(data)}, nil
}

// ErrResult builds an error ToolResult for failures that should reach the
// model as tool output rather than abort the call.
func ErrResult(format string, args ...any) (*domain.ToolResult, error) {
	return &domain.ToolResult{
		IsError: true,
		Content: fmt.Sprintf(format, args...),
	}, nil
}
