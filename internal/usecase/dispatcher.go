package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"genesis-ai/internal/domain"
	"genesis-ai/internal/infra/tracer"
)

// Dispatcher fans one assistant decision's tool calls out to the registry
// and collects their results.
type Dispatcher struct {
	tools       domain.ToolExecutor
	callTimeout time.Duration
	log         *slog.Logger
}

// NewDispatcher creates a Dispatcher. callTimeout bounds each individual
// tool invocation.
func NewDispatcher(tools domain.ToolExecutor, callTimeout time.Duration, log *slog.Logger) *Dispatcher {
	return &Dispatcher{tools: tools, callTimeout: callTimeout, log: log}
}

// Dispatch runs every tool call concurrently and returns one result per
// call, in the order the calls were given. A failing call yields an error
// description in its result content; it never aborts the batch or displaces
// a sibling's slot.
func (d *Dispatcher) Dispatch(ctx context.Context, calls []domain.ToolCall) []domain.ToolResult {
	if len(calls) == 0 {
		return nil
	}

	ctx, span := tracer.StartSpan(ctx, "tools.dispatch")
	defer span.End()
	span.SetAttributes(tracer.IntAttr("tools.count", len(calls)))

	// Results land in indexed slots so completion order cannot reorder them.
	results := make([]domain.ToolResult, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		wg.Add(1)
		go func(idx int, c domain.ToolCall) {
			defer wg.Done()
			results[idx] = d.dispatchOne(ctx, c)
		}(i, call)
	}
	wg.Wait()

	tracer.SetOK(span)
	return results
}

func (d *Dispatcher) dispatchOne(ctx context.Context, call domain.ToolCall) domain.ToolResult {
	start := time.Now()

	tool, err := d.tools.Get(call.Name)
	if err != nil {
		d.log.Warn("unknown tool requested",
			"tool", call.Name,
			"call_id", call.ID,
			"session", domain.SessionIDFromContext(ctx))
		return errorResult(call, fmt.Sprintf("tool %q is not available", call.Name))
	}

	callCtx, cancel := context.WithTimeout(ctx, d.callTimeout)
	defer cancel()

	res, err := tool.Execute(callCtx, call.Arguments)
	elapsed := time.Since(start)

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		d.log.Warn("tool call timed out", "tool", call.Name, "elapsed", elapsed)
		return errorResult(call, fmt.Sprintf("tool %q timed out after %s", call.Name, d.callTimeout))
	case err != nil:
		d.log.Warn("tool call failed", "tool", call.Name, "error", err, "elapsed", elapsed)
		return errorResult(call, fmt.Sprintf("tool %q failed: %v", call.Name, err))
	}

	d.log.Debug("tool call completed", "tool", call.Name, "elapsed", elapsed)
	res.ToolCallID = call.ID
	res.ToolName = call.Name
	return *res
}

func errorResult(call domain.ToolCall, msg string) domain.ToolResult {
	return domain.ToolResult{
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Content:    msg,
		IsError:    true,
	}
}
