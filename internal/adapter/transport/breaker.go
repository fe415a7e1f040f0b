package transport

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sony/gobreaker/v2"

	"docstream/internal/domain"
	"docstream/internal/infra/config"
)

// Default circuit breaker settings.
const (
	defaultCBMaxFailures uint32        = 5
	defaultCBTimeout     time.Duration = 30 * time.Second
	defaultCBInterval    time.Duration = 60 * time.Second
)

// BreakerSource wraps a Source with circuit breaker protection. When opening
// streams fails repeatedly, the circuit opens and subsequent submissions
// fail fast instead of hammering the inference service. Only the open is
// protected; errors after the stream is established flow through the chunk
// channel and do not trip the breaker. Cancellations never count as
// failures.
type BreakerSource struct {
	inner   Source
	breaker *gobreaker.CircuitBreaker[<-chan Chunk]
	logger  *slog.Logger
}

// NewBreakerSource wraps inner with a circuit breaker.
// If cfg is zero-valued, sensible defaults are used.
func NewBreakerSource(inner Source, cfg config.BreakerConfig, logger *slog.Logger) *BreakerSource {
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

	cb := gobreaker.NewCircuitBreaker[<-chan Chunk](gobreaker.Settings{
		Name:        "backend-stream",
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
			return err == nil || domain.IsCancellation(err)
		},
	})

	return &BreakerSource{inner: inner, breaker: cb, logger: logger}
}

// Open implements Source. Calls are routed through the circuit breaker.
func (b *BreakerSource) Open(ctx context.Context, req Request) (<-chan Chunk, error) {
	ch, err := b.breaker.Execute(func() (<-chan Chunk, error) {
		return b.inner.Open(ctx, req)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %v", domain.ErrCircuitOpen, err)
		}
		return nil, err
	}
	return ch, nil
}

// State returns the current circuit breaker state for monitoring.
func (b *BreakerSource) State() gobreaker.State {
	return b.breaker.State()
}

// Counts returns the current circuit breaker failure/success counts.
func (b *BreakerSource) Counts() gobreaker.Counts {
	return b.breaker.Counts()
}

// Compile-time interface checks.
var (
	_ Source = (*HTTPSource)(nil)
	_ Source = (*BreakerSource)(nil)
)
