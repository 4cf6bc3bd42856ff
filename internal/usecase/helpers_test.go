package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"genesis-ai/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeStore is an in-memory HistoryStore.
type fakeStore struct {
	mu        sync.Mutex
	sessions  map[string]*domain.Session
	messages  map[string][]domain.Message
	nextSeq   int64
	failWrite bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*domain.Session),
		messages: make(map[string][]domain.Message),
	}
}

func (s *fakeStore) GetOrCreateSession(_ context.Context, sessionID, defaultPrompt string) (*domain.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[sessionID]; ok {
		return sess, nil
	}
	sess := &domain.Session{ID: sessionID, SystemPrompt: defaultPrompt, CreatedAt: time.Now()}
	s.sessions[sessionID] = sess
	return sess, nil
}

func (s *fakeStore) UpdateSystemPrompt(_ context.Context, sessionID, prompt string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.SystemPrompt = prompt
	return nil
}

func (s *fakeStore) ReadRecent(_ context.Context, sessionID string, limit int) ([]domain.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := s.messages[sessionID]
	out := make([]domain.Message, 0, limit)
	for i := len(msgs) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, msgs[i])
	}
	return out, nil
}

func (s *fakeStore) AppendBatch(_ context.Context, sessionID string, batch []domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failWrite {
		return domain.ErrStoreCommit
	}
	for _, msg := range batch {
		s.nextSeq++
		msg.Seq = s.nextSeq
		s.messages[sessionID] = append(s.messages[sessionID], msg)
	}
	return nil
}

func (s *fakeStore) ClearSession(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.messages, sessionID)
	delete(s.sessions, sessionID)
	return nil
}

func (s *fakeStore) ListSessions(_ context.Context, limit int) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.sessions))
	for id := range s.sessions {
		out = append(out, id)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

// seed appends messages directly, bypassing AppendBatch.
func (s *fakeStore) seed(sessionID string, msgs ...domain.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range msgs {
		s.nextSeq++
		msg.Seq = s.nextSeq
		s.messages[sessionID] = append(s.messages[sessionID], msg)
	}
}

// fakeProvider returns scripted decisions and summaries.
type fakeProvider struct {
	decision    domain.Message
	decideErr   error
	summary     string
	summaryErr  error
	decideCalls int
	lastContext []domain.Message
	lastSummary []domain.Message
}

func (p *fakeProvider) Decide(_ context.Context, messages []domain.Message, _ []domain.ToolSchema) (*domain.Decision, error) {
	p.decideCalls++
	p.lastContext = messages
	if p.decideErr != nil {
		return nil, p.decideErr
	}
	return &domain.Decision{Message: p.decision, Usage: domain.Usage{TotalTokens: 10}}, nil
}

func (p *fakeProvider) Summarize(_ context.Context, messages []domain.Message) (string, domain.Usage, error) {
	p.lastSummary = messages
	if p.summaryErr != nil {
		return "", domain.Usage{}, p.summaryErr
	}
	return p.summary, domain.Usage{TotalTokens: 5}, nil
}

func (p *fakeProvider) Name() string { return "fake" }

// funcTool adapts a function to domain.Tool.
type funcTool struct {
	name string
	fn   func(ctx context.Context, args json.RawMessage) (string, error)
}

func (t funcTool) Name() string        { return t.name }
func (t funcTool) Description() string { return t.name }
func (t funcTool) Schema() domain.ToolSchema {
	return domain.ToolSchema{Name: t.name, Parameters: json.RawMessage(`{"type":"object"}`)}
}

func (t funcTool) Execute(ctx context.Context, args json.RawMessage) (*domain.ToolResult, error) {
	content, err := t.fn(ctx, args)
	if err != nil {
		return nil, err
	}
	return &domain.ToolResult{Content: content}, nil
}

// fakeRegistry is a map-backed ToolExecutor.
type fakeRegistry struct {
	tools map[string]domain.Tool
}

func newFakeRegistry(tools ...domain.Tool) *fakeRegistry {
	r := &fakeRegistry{tools: make(map[string]domain.Tool)}
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
	return r
}

func (r *fakeRegistry) Get(name string) (domain.Tool, error) {
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrToolNotFound, name)
	}
	return t, nil
}

func (r *fakeRegistry) Schemas() []domain.ToolSchema {
	out := make([]domain.ToolSchema, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t.Schema())
	}
	return out
}
