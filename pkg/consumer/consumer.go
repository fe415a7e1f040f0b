// Package consumer is the embedding surface for UI code: it wires the
// configured transport, supersessor, optional transcript store and
// telemetry into one object with a small API.
//
// Example:
//
//	c, err := consumer.New(cfg, consumer.WithLogger(log))
//	if err != nil { ... }
//	defer c.Close(ctx)
//
//	sess, err := c.Submit(ctx, "compare:case-42", consumer.Query{
//	    Path: "/api/compare",
//	    Body: payload,
//	})
//	for snap := range sess.Snapshots() {
//	    render(snap)
//	}
//	result := sess.Result()
package consumer

import (
	"context"
	"fmt"
	"log/slog"

	"docstream/internal/adapter/history"
	"docstream/internal/adapter/transport"
	"docstream/internal/infra/config"
	"docstream/internal/infra/tracer"
	"docstream/internal/usecase"
)

// Query describes one streaming request to the inference service. Path is
// resolved against the configured backend base URL.
type Query struct {
	Path    string
	Body    []byte
	Headers map[string]string
}

// Consumer owns the per-process streaming machinery. One Consumer serves any
// number of conversational contexts; each context has at most one live
// session at a time.
type Consumer struct {
	cfg        *config.Config
	sup        *usecase.Supersessor
	history    *history.Store
	logger     *slog.Logger
	shutdownTP func(context.Context) error
}

// Option configures a Consumer.
type Option func(*Consumer)

// WithLogger sets a custom slog.Logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Consumer) { c.logger = logger }
}

// New builds a Consumer from configuration.
func New(cfg *config.Config, opts ...Option) (*Consumer, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}

	c := &Consumer{cfg: cfg, logger: slog.Default()}
	for _, opt := range opts {
		opt(c)
	}

	shutdown, err := tracer.Setup(context.Background(), cfg.Tracer)
	if err != nil {
		return nil, fmt.Errorf("setup tracer: %w", err)
	}
	c.shutdownTP = shutdown

	var source transport.Source = transport.NewHTTPSource(cfg.Backend, c.logger)
	source = transport.NewBreakerSource(source, cfg.Backend.Breaker, c.logger)

	c.sup = usecase.NewSupersessor(source, usecase.SessionOptions{
		EstimatedResponseBytes: cfg.Consumer.EstimatedResponseBytes,
		SnapshotBuffer:         cfg.Consumer.SnapshotBuffer,
	}, cfg.Consumer.SubmitRate, cfg.Consumer.SubmitBurst, c.logger)

	if cfg.History.Enabled {
		store, err := history.NewStore(cfg.History.Path)
		if err != nil {
			if shutdownErr := c.shutdownTP(context.Background()); shutdownErr != nil {
				c.logger.Warn("tracer shutdown failed", "error", shutdownErr)
			}
			return nil, err
		}
		c.history = store
	}

	return c, nil
}

// Submit starts a streaming session for a conversational context,
// superseding any live one. The returned session exposes Snapshots, Done,
// Result and Cancel.
func (c *Consumer) Submit(ctx context.Context, contextID string, q Query) (*usecase.StreamSession, error) {
	req := transport.Request{
		URL:     c.cfg.Backend.BaseURL + q.Path,
		Body:    q.Body,
		Headers: q.Headers,
	}
	sess, err := c.sup.Submit(ctx, contextID, req)
	if err != nil {
		return nil, err
	}

	if c.history != nil {
		go func() {
			<-sess.Done()
			if err := c.history.Record(context.Background(), contextID, sess.ID(), sess.Result()); err != nil {
				c.logger.Warn("record transcript failed", "context", contextID, "error", err)
			}
		}()
	}
	return sess, nil
}

// Stop cancels the live session for a context, if any.
func (c *Consumer) Stop(contextID string) {
	c.sup.Cancel(contextID)
}

// History returns the transcript store, or nil when history is disabled.
func (c *Consumer) History() *history.Store {
	return c.history
}

// Close cancels all live sessions and releases resources.
func (c *Consumer) Close(ctx context.Context) error {
	c.sup.Shutdown()
	var firstErr error
	if c.history != nil {
		if err := c.history.Close(); err != nil {
			firstErr = err
		}
	}
	if c.shutdownTP != nil {
		if err := c.shutdownTP(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
