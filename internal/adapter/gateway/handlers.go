package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"genesis-ai/internal/domain"
	"genesis-ai/internal/usecase"
)

// sessionHistoryLimit bounds how much transcript the session endpoint returns.
const sessionHistoryLimit = 200

type turnRequest struct {
	SessionID    string `json:"session_id"`
	Query        string `json:"query"`
	SystemPrompt string `json:"system_prompt,omitempty"`
}

type turnResponse struct {
	Success     bool                    `json:"success"`
	Response    string                  `json:"response"`
	SessionID   string                  `json:"session_id"`
	ModelUsed   string                  `json:"model_used"`
	ToolsCalled []domain.ToolInvocation `json:"tools_called"`
	Usage       domain.Usage            `json:"usage"`
}

type errorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    string `json:"code"`
}

func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB

	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		msg := "invalid JSON: " + err.Error()
		if err.Error() == "http: request body too large" {
			msg = "request body too large (max 1MB)"
		}
		writeError(w, http.StatusBadRequest, msg, domain.CodeInvalidInput)
		return
	}
	if req.Query == "" {
		writeError(w, http.StatusBadRequest, "query is required", domain.CodeInvalidInput)
		return
	}
	if req.SessionID == "" {
		writeError(w, http.StatusBadRequest, "session_id is required", domain.CodeInvalidInput)
		return
	}

	result, err := s.runner.HandleTurn(r.Context(), req.SessionID, req.Query, req.SystemPrompt)
	if err != nil {
		s.logger.Error("turn failed", "session_id", req.SessionID, "error", err)
		writeError(w, turnErrorStatus(err), err.Error(), domain.ErrorCodeOf(err))
		return
	}

	tools := result.ToolsUsed
	if tools == nil {
		tools = []domain.ToolInvocation{}
	}
	writeJSON(w, http.StatusOK, turnResponse{
		Success:     true,
		Response:    result.FinalAnswer,
		SessionID:   result.SessionID,
		ModelUsed:   s.model,
		ToolsCalled: tools,
		Usage:       result.Usage,
	})
}

// turnErrorStatus maps turn failures to HTTP statuses. A decision failure is
// an upstream fault; everything else on this path is internal.
func turnErrorStatus(err error) int {
	switch {
	case usecase.IsDecisionFailure(err):
		return http.StatusBadGateway
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

type sessionResponse struct {
	SessionID string           `json:"session_id"`
	Messages  []domain.Message `json:"messages"`
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	msgs, err := s.history.ReadRecent(r.Context(), id, sessionHistoryLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), domain.ErrorCodeOf(err))
		return
	}

	// Newest-first from the store; present chronologically, chain-consistent.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	msgs = usecase.SanitizeChains(msgs, s.logger)
	if msgs == nil {
		msgs = []domain.Message{}
	}

	writeJSON(w, http.StatusOK, sessionResponse{SessionID: id, Messages: msgs})
}

func (s *Server) handleClearSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.history.ClearSession(r.Context(), id); err != nil {
		if errors.Is(err, domain.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "session not found", domain.CodeSessionNotFound)
			return
		}
		writeError(w, http.StatusInternalServerError, err.Error(), domain.ErrorCodeOf(err))
		return
	}

	s.logger.Info("session cleared", "session_id", id)
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "session_id": id})
}

func (s *Server) handleListSessions(w http.ResponseWriter, r *http.Request) {
	ids, err := s.history.ListSessions(r.Context(), 100)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error(), domain.ErrorCodeOf(err))
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": ids})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"model":  s.model,
		"uptime": time.Since(s.startedAt).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string, code domain.ErrorCode) {
	writeJSON(w, status, errorResponse{
		Success: false,
		Error:   msg,
		Code:    string(code),
	})
}
