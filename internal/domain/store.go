package domain

import "context"

// HistoryStore is the persistence collaborator for conversation transcripts.
// History is logically append-only: messages are written in all-or-nothing
// batches and never mutated.
type HistoryStore interface {
	// GetOrCreateSession returns the session, lazily creating an unknown ID
	// seeded with defaultPrompt.
	GetOrCreateSession(ctx context.Context, sessionID, defaultPrompt string) (*Session, error)
	// UpdateSystemPrompt persists a new system prompt for the session.
	UpdateSystemPrompt(ctx context.Context, sessionID, prompt string) error
	// ReadRecent returns up to limit persisted messages, newest first.
	// Rows that fail to decode are skipped, not surfaced.
	ReadRecent(ctx context.Context, sessionID string, limit int) ([]Message, error)
	// AppendBatch commits messages as one atomic batch; a partial batch must
	// never become visible to a concurrent reader.
	AppendBatch(ctx context.Context, sessionID string, messages []Message) error
	// ClearSession removes all messages for a session (administrative).
	ClearSession(ctx context.Context, sessionID string) error
	// ListSessions returns known session IDs, most recently updated first.
	ListSessions(ctx context.Context, limit int) ([]string, error)
}
