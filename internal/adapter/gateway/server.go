package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"genesis-ai/internal/domain"
	"genesis-ai/internal/infra/config"
	"genesis-ai/internal/infra/middleware"
)

// TurnRunner is the orchestration entry point the gateway forwards turns to.
type TurnRunner interface {
	HandleTurn(ctx context.Context, sessionID, userText, systemPromptOverride string) (*domain.TurnResult, error)
}

// HistoryReader is the read-only slice of the store the gateway needs.
type HistoryReader interface {
	ReadRecent(ctx context.Context, sessionID string, limit int) ([]domain.Message, error)
	ClearSession(ctx context.Context, sessionID string) error
	ListSessions(ctx context.Context, limit int) ([]string, error)
}

// Server is the REST gateway. Transport only: decode, delegate, encode.
type Server struct {
	runner  TurnRunner
	history HistoryReader
	cfg     config.GatewayConfig
	model   string
	logger  *slog.Logger

	server    *http.Server
	boundAddr string
	startedAt time.Time
	cancel    context.CancelFunc
}

// NewServer creates a REST gateway around the orchestrator and store.
func NewServer(runner TurnRunner, history HistoryReader, cfg config.GatewayConfig, model string, logger *slog.Logger) *Server {
	return &Server{
		runner:  runner,
		history: history,
		cfg:     cfg,
		model:   model,
		logger:  logger,
	}
}

// Start begins serving. Non-blocking (serves in a goroutine).
func (s *Server) Start(ctx context.Context) error {
	s.startedAt = time.Now()

	var mwCtx context.Context
	mwCtx, s.cancel = context.WithCancel(ctx)

	handler := middleware.RequestID(
		middleware.RequestLogger(s.logger)(
			middleware.SecurityHeaders(
				middleware.RateLimit(mwCtx, middleware.RateLimitConfig{
					RequestsPerMin: s.cfg.RequestsPerMin,
					BurstSize:      s.cfg.BurstSize,
					TrustedProxies: s.cfg.TrustedProxies,
				})(s.routes()),
			),
		),
	)

	s.server = &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.cfg.ReadTimeout,
		WriteTimeout:      s.cfg.WriteTimeout,
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	s.boundAddr = ln.Addr().String()

	go func() {
		s.logger.Info("gateway started", "addr", s.boundAddr)
		if err := s.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("gateway serve error", "error", err)
		}
	}()

	return nil
}

// Stop gracefully shuts down the gateway.
func (s *Server) Stop(ctx context.Context) error {
	if s.cancel != nil {
		s.cancel()
	}
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// BoundAddr returns the actual address the server bound to. Only valid after Start.
func (s *Server) BoundAddr() string { return s.boundAddr }

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/turns", s.handleTurn)
	mux.HandleFunc("GET /v1/sessions", s.handleListSessions)
	mux.HandleFunc("GET /v1/sessions/{id}", s.handleGetSession)
	mux.HandleFunc("DELETE /v1/sessions/{id}", s.handleClearSession)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	return mux
}
