package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"genesis-ai/internal/domain"
	"genesis-ai/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// CircuitBreakerProvider wraps a ReasoningProvider with circuit breaker
// protection. When the wrapped provider fails repeatedly, the circuit opens
// and subsequent calls fail fast without reaching the provider, preventing
// retry storms against a struggling API.
type CircuitBreakerProvider struct {
	inner   domain.ReasoningProvider
	breaker *gobreaker.CircuitBreaker[*domain.Decision]
	logger  *slog.Logger
}

// NewCircuitBreakerProvider wraps inner with a circuit breaker. Zero-valued
// settings fall back to defaults.
func NewCircuitBreakerProvider(inner domain.ReasoningProvider, cfg config.CircuitBreakerConfig, logger *slog.Logger) *CircuitBreakerProvider {
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultCBMaxFailures
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultCBTimeout
	}
	interval := cfg.Interval
	if interval == 0 {
		interval = defaultCBInterval
	}

	name := inner.Name()
	cb := gobreaker.NewCircuitBreaker[*domain.Decision](gobreaker.Settings{
		Name:        "llm:" + name,
		MaxRequests: 1, // allow 1 probe in half-open state
		Interval:    interval,
		Timeout:     timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state change",
				"breaker", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
		IsSuccessful: func(err error) bool {
			return err == nil
		},
	})

	return &CircuitBreakerProvider{
		inner:   inner,
		breaker: cb,
		logger:  logger,
	}
}

// Decide implements domain.ReasoningProvider through the breaker.
func (p *CircuitBreakerProvider) Decide(ctx context.Context, messages []domain.Message, tools []domain.ToolSchema) (*domain.Decision, error) {
	decision, err := p.breaker.Execute(func() (*domain.Decision, error) {
		return p.inner.Decide(ctx, messages, tools)
	})
	if err != nil {
		return nil, p.wrapBreakerErr(err)
	}
	return decision, nil
}

// Summarize implements domain.ReasoningProvider. Decision and summary calls
// hit the same endpoint, so they share one breaker.
func (p *CircuitBreakerProvider) Summarize(ctx context.Context, messages []domain.Message) (string, domain.Usage, error) {
	var (
		text  string
		usage domain.Usage
	)
	_, err := p.breaker.Execute(func() (*domain.Decision, error) {
		var innerErr error
		text, usage, innerErr = p.inner.Summarize(ctx, messages)
		return nil, innerErr
	})
	if err != nil {
		return "", domain.Usage{}, p.wrapBreakerErr(err)
	}
	return text, usage, nil
}

// Name implements domain.ReasoningProvider.
func (p *CircuitBreakerProvider) Name() string { return p.inner.Name() }

func (p *CircuitBreakerProvider) wrapBreakerErr(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("provider %q circuit open: %w", p.inner.Name(), err)
	}
	return err
}
