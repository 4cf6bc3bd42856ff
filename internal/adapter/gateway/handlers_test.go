package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"genesis-ai/internal/domain"
	"genesis-ai/internal/infra/config"
)

// fakeRunner implements TurnRunner.
type fakeRunner struct {
	result   *domain.TurnResult
	err      error
	lastCall struct {
		sessionID string
		query     string
		prompt    string
	}
}

func (f *fakeRunner) HandleTurn(_ context.Context, sessionID, userText, systemPromptOverride string) (*domain.TurnResult, error) {
	f.lastCall.sessionID = sessionID
	f.lastCall.query = userText
	f.lastCall.prompt = systemPromptOverride
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

// fakeHistory implements HistoryReader.
type fakeHistory struct {
	messages []domain.Message
	readErr  error
	clearErr error
	sessions []string
	cleared  []string
}

func (f *fakeHistory) ReadRecent(_ context.Context, _ string, _ int) ([]domain.Message, error) {
	return f.messages, f.readErr
}

func (f *fakeHistory) ClearSession(_ context.Context, id string) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	f.cleared = append(f.cleared, id)
	return nil
}

func (f *fakeHistory) ListSessions(_ context.Context, _ int) ([]string, error) {
	return f.sessions, nil
}

func newTestServer(runner TurnRunner, history HistoryReader) *Server {
	return &Server{
		runner:    runner,
		history:   history,
		cfg:       config.GatewayConfig{},
		model:     "gpt-4o",
		logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		startedAt: time.Now(),
	}
}

func doRequest(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)
	return rec
}

func TestHandleTurnSuccess(t *testing.T) {
	runner := &fakeRunner{
		result: &domain.TurnResult{
			SessionID:   "sess-1",
			FinalAnswer: "The answer is 4.",
			ToolsUsed: []domain.ToolInvocation{
				{Name: "calculate", Arguments: map[string]any{"expression": "2+2"}},
			},
			Usage: domain.Usage{TotalTokens: 30},
		},
	}
	s := newTestServer(runner, &fakeHistory{})

	rec := doRequest(t, s, http.MethodPost, "/v1/turns", turnRequest{
		SessionID: "sess-1",
		Query:     "what is 2+2?",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var resp turnResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Success)
	assert.Equal(t, "The answer is 4.", resp.Response)
	assert.Equal(t, "sess-1", resp.SessionID)
	assert.Equal(t, "gpt-4o", resp.ModelUsed)
	require.Len(t, resp.ToolsCalled, 1)
	assert.Equal(t, "calculate", resp.ToolsCalled[0].Name)

	assert.Equal(t, "what is 2+2?", runner.lastCall.query)
}

func TestHandleTurnForwardsSystemPrompt(t *testing.T) {
	runner := &fakeRunner{result: &domain.TurnResult{SessionID: "s", FinalAnswer: "ok"}}
	s := newTestServer(runner, &fakeHistory{})

	rec := doRequest(t, s, http.MethodPost, "/v1/turns", turnRequest{
		SessionID:    "s",
		Query:        "hi",
		SystemPrompt: "You are a pirate.",
	})

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "You are a pirate.", runner.lastCall.prompt)
}

func TestHandleTurnValidation(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeHistory{})

	cases := []struct {
		name string
		body turnRequest
	}{
		{"missing query", turnRequest{SessionID: "s"}},
		{"missing session", turnRequest{Query: "hi"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doRequest(t, s, http.MethodPost, "/v1/turns", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp errorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.False(t, resp.Success)
			assert.Equal(t, string(domain.CodeInvalidInput), resp.Code)
		})
	}
}

func TestHandleTurnInvalidJSON(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeHistory{})

	req := httptest.NewRequest(http.MethodPost, "/v1/turns", bytes.NewBufferString(`{nope`))
	rec := httptest.NewRecorder()
	s.routes().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleTurnDecisionFailure(t *testing.T) {
	runner := &fakeRunner{
		err: domain.NewDomainError("turn.decide", domain.ErrDecisionFailed, "provider down"),
	}
	s := newTestServer(runner, &fakeHistory{})

	rec := doRequest(t, s, http.MethodPost, "/v1/turns", turnRequest{SessionID: "s", Query: "hi"})

	require.Equal(t, http.StatusBadGateway, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.CodeDecisionFailed), resp.Code)
}

func TestHandleTurnCommitFailure(t *testing.T) {
	runner := &fakeRunner{
		err: domain.NewDomainError("turn.commit", domain.ErrStoreCommit, "disk full"),
	}
	s := newTestServer(runner, &fakeHistory{})

	rec := doRequest(t, s, http.MethodPost, "/v1/turns", turnRequest{SessionID: "s", Query: "hi"})

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	var resp errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, string(domain.CodeStoreCommit), resp.Code)
}

func TestHandleGetSessionSanitizesChains(t *testing.T) {
	// Newest-first storage order with a trailing orphan tool result.
	history := &fakeHistory{
		messages: []domain.Message{
			{Role: domain.RoleAssistant, Content: "hi"},
			{Role: domain.RoleUser, Content: "hello"},
			{Role: domain.RoleTool, Content: "stale", ToolCallID: "call_gone"},
		},
	}
	s := newTestServer(&fakeRunner{}, history)

	rec := doRequest(t, s, http.MethodGet, "/v1/sessions/sess-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "sess-1", resp.SessionID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, domain.RoleUser, resp.Messages[0].Role)
	assert.Equal(t, domain.RoleAssistant, resp.Messages[1].Role)
}

func TestHandleGetSessionEmpty(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeHistory{})

	rec := doRequest(t, s, http.MethodGet, "/v1/sessions/ghost", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotNil(t, resp.Messages)
	assert.Empty(t, resp.Messages)
}

func TestHandleClearSession(t *testing.T) {
	history := &fakeHistory{}
	s := newTestServer(&fakeRunner{}, history)

	rec := doRequest(t, s, http.MethodDelete, "/v1/sessions/sess-1", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"sess-1"}, history.cleared)
}

func TestHandleClearSessionNotFound(t *testing.T) {
	history := &fakeHistory{clearErr: domain.ErrSessionNotFound}
	s := newTestServer(&fakeRunner{}, history)

	rec := doRequest(t, s, http.MethodDelete, "/v1/sessions/ghost", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleListSessions(t *testing.T) {
	history := &fakeHistory{sessions: []string{"b", "a"}}
	s := newTestServer(&fakeRunner{}, history)

	rec := doRequest(t, s, http.MethodGet, "/v1/sessions", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string][]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"b", "a"}, resp["sessions"])
}

func TestHandleStatus(t *testing.T) {
	s := newTestServer(&fakeRunner{}, &fakeHistory{})

	rec := doRequest(t, s, http.MethodGet, "/v1/status", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp["status"])
	assert.Equal(t, "gpt-4o", resp["model"])
}
