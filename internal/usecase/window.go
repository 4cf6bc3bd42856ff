package usecase

import (
	"context"
	"log/slog"

	"genesis-ai/internal/domain"
	"genesis-ai/internal/infra/tracer"
)

// WindowBuilder assembles the most recent chain-complete slice of a
// session's history for presentation to the reasoning model.
type WindowBuilder struct {
	store domain.HistoryStore
	max   int
	log   *slog.Logger
}

// NewWindowBuilder creates a WindowBuilder bounded at max messages.
func NewWindowBuilder(store domain.HistoryStore, max int, log *slog.Logger) *WindowBuilder {
	return &WindowBuilder{store: store, max: max, log: log}
}

// Build returns the session's recent history oldest-first. The window holds
// at most max messages unless the cut would land inside a tool chain, in
// which case it grows backward until it reaches a safe boundary or the
// fetch buffer runs out.
func (b *WindowBuilder) Build(ctx context.Context, sessionID string) ([]domain.Message, error) {
	ctx, span := tracer.StartSpan(ctx, "window.build")
	defer span.End()

	// Fetch double the window so backward expansion usually completes
	// without a second round-trip.
	buffer, err := b.store.ReadRecent(ctx, sessionID, 2*b.max)
	if err != nil {
		tracer.RecordError(span, err)
		return nil, err
	}
	if len(buffer) == 0 {
		tracer.SetOK(span)
		return nil, nil
	}

	// buffer is newest-first. Start with the newest max messages.
	end := b.max
	if end > len(buffer) {
		end = len(buffer)
	}

	// Grow backward while the oldest window message is a tool result cut
	// off from its assistant parent. An assistant message carrying tool
	// calls is a safe head: its responses are newer and already inside.
	for end < len(buffer) && insideChain(buffer[end-1]) {
		end++
	}
	if end == len(buffer) && insideChain(buffer[end-1]) {
		b.log.Warn("window expansion exhausted fetch buffer mid-chain",
			"session_id", sessionID,
			"window", end,
		)
	}

	window := make([]domain.Message, end)
	for i, msg := range buffer[:end] {
		window[end-1-i] = msg
	}

	span.SetAttributes(tracer.IntAttr("window.size", len(window)))
	tracer.SetOK(span)
	return window, nil
}

// insideChain reports whether cutting history immediately before msg would
// sever a tool chain.
func insideChain(msg domain.Message) bool {
	return msg.Role == domain.RoleTool
}
