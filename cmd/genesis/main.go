package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"genesis-ai/internal/adapter/gateway"
	"genesis-ai/internal/adapter/llm"
	"genesis-ai/internal/adapter/store"
	"genesis-ai/internal/adapter/token"
	"genesis-ai/internal/adapter/tool"
	"genesis-ai/internal/domain"
	"genesis-ai/internal/infra/config"
	"genesis-ai/internal/infra/logger"
	"genesis-ai/internal/infra/tracer"
	"genesis-ai/internal/usecase"
)

func main() {
	cfgPath := flag.String("config", "./config.yaml", "path to config file")
	flag.Parse()

	if err := run(*cfgPath); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run(cfgPath string) error {
	// 1. Config
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. History store
	historyStore, err := store.NewSQLiteHistoryStore(cfg.Store.Path, log)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer historyStore.Close()
	log.Info("history store opened", "path", cfg.Store.Path)

	// 4. Reasoning provider
	var provider domain.ReasoningProvider = llm.NewOpenAIProvider(cfg.LLM.Provider, log)
	if cfg.LLM.CircuitBreaker.Enabled {
		provider = llm.NewCircuitBreakerProvider(provider, cfg.LLM.CircuitBreaker, log)
	}

	// 5. Tools
	registry, bridge, err := initTools(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if bridge != nil {
		defer bridge.Close()
	}

	// 6. Context guard
	var guard *usecase.ContextGuard
	if cfg.Agent.ContextGuard.Enabled {
		counter, err := token.NewTiktokenCounter(cfg.Agent.ContextGuard.Encoding)
		if err != nil {
			return fmt.Errorf("token counter: %w", err)
		}
		guard = usecase.NewContextGuard(counter, cfg.Agent.ContextGuard.MaxTokens, log)
	}

	// 7. Orchestrator
	orch := usecase.NewOrchestrator(usecase.OrchestratorDeps{
		Provider:   provider,
		Store:      historyStore,
		Window:     usecase.NewWindowBuilder(historyStore, cfg.Agent.HistoryWindow, log),
		Dispatcher: usecase.NewDispatcher(registry, cfg.Agent.ToolTimeout, log),
		Guard:      guard,
		Tools:      registry,
		SysPrompt:  cfg.Agent.SystemPrompt,
		Logger:     log,
	})
	runner := &timeoutRunner{orch: orch, timeout: cfg.Agent.TurnTimeout}

	// 8. Graceful shutdown
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// 9. Session reaper
	if cfg.Store.ReapEnabled {
		c := cron.New()
		_, err := c.AddFunc(cfg.Store.ReapSchedule, func() {
			reapCtx, reapCancel := context.WithTimeout(context.Background(), time.Minute)
			defer reapCancel()
			if _, err := historyStore.DeleteStale(reapCtx, cfg.Store.ReapMaxAge); err != nil {
				log.Error("session reap failed", "error", err)
			}
		})
		if err != nil {
			return fmt.Errorf("reap schedule %q: %w", cfg.Store.ReapSchedule, err)
		}
		c.Start()
		defer c.Stop()
		log.Info("session reaper scheduled",
			"schedule", cfg.Store.ReapSchedule, "max_age", cfg.Store.ReapMaxAge)
	}

	// 10. Gateway
	srv := gateway.NewServer(runner, historyStore, cfg.Gateway, cfg.LLM.Provider.Model, log)
	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("gateway: %w", err)
	}

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return srv.Stop(shutdownCtx)
}

// initTools builds the tool registry: built-ins plus any bridged MCP tools.
func initTools(ctx context.Context, cfg *config.Config, log *slog.Logger) (*tool.Registry, *tool.MCPBridge, error) {
	registry := tool.NewRegistry(log)

	builtins := []domain.Tool{
		tool.NewDatetimeTool(log),
		tool.NewCalculateTool(log),
		tool.NewSysInfoTool(log),
		tool.NewWeatherTool(cfg.Tools.WeatherBaseURL, cfg.Tools.HTTPTimeout, log),
		tool.NewSearchTool(cfg.Tools.SearchBaseURL, cfg.Tools.SearchMaxResults, cfg.Tools.HTTPTimeout, log),
	}
	for _, t := range builtins {
		if err := registry.Register(t); err != nil {
			return nil, nil, fmt.Errorf("register %s: %w", t.Name(), err)
		}
	}

	var bridge *tool.MCPBridge
	if len(cfg.Tools.MCPServers) > 0 {
		var err error
		bridge, err = tool.NewMCPBridge(ctx, cfg.Tools.MCPServers, log)
		if err != nil {
			return nil, nil, fmt.Errorf("mcp bridge: %w", err)
		}
		for _, t := range bridge.Tools() {
			if err := registry.Register(t); err != nil {
				log.Warn("skipping mcp tool", "tool", t.Name(), "error", err)
			}
		}
	}

	log.Info("tools registered", "count", len(registry.List()))
	return registry, bridge, nil
}

// timeoutRunner bounds each turn with the configured turn timeout.
type timeoutRunner struct {
	orch    *usecase.Orchestrator
	timeout time.Duration
}

func (r *timeoutRunner) HandleTurn(ctx context.Context, sessionID, userText, systemPromptOverride string) (*domain.TurnResult, error) {
	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	return r.orch.HandleTurn(ctx, sessionID, userText, systemPromptOverride)
}
