package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/time/rate"

	"docstream/internal/adapter/transport"
	"docstream/internal/domain"
)

// Supersessor guarantees at most one live session per conversational
// context: submitting a new query cancels any session still Connecting or
// Streaming for that context, and the cancellation is observed (Done) before
// the new session opens its stream. It also rate limits submissions so a
// rapid-fire user cannot storm the backend.
type Supersessor struct {
	source  transport.Source
	opts    SessionOptions
	limiter *rate.Limiter
	logger  *slog.Logger

	mu   sync.Mutex
	live map[string]*StreamSession
}

// NewSupersessor creates a supersessor submitting through source.
// submitRate/submitBurst bound submissions per second across all contexts.
func NewSupersessor(source transport.Source, opts SessionOptions, submitRate float64, submitBurst int, logger *slog.Logger) *Supersessor {
	if submitRate <= 0 {
		submitRate = 2
	}
	if submitBurst < 1 {
		submitBurst = 4
	}
	return &Supersessor{
		source:  source,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Limit(submitRate), submitBurst),
		logger:  logger,
		live:    make(map[string]*StreamSession),
	}
}

// Submit starts a new session for the given conversational context,
// superseding any live one. The previous session's token fires and its
// terminal state is awaited before the new stream opens, so a superseded
// session can never publish a snapshot after its successor begins.
func (sp *Supersessor) Submit(ctx context.Context, contextID string, req transport.Request) (*StreamSession, error) {
	if !sp.limiter.Allow() {
		return nil, fmt.Errorf("%w: query submission throttled", domain.ErrRateLimit)
	}

	sp.mu.Lock()
	defer sp.mu.Unlock()

	if prev, ok := sp.live[contextID]; ok && !prev.State().Terminal() {
		sp.logger.Debug("superseding session",
			"context", contextID,
			"session", prev.ID(),
		)
		prev.Cancel()
		<-prev.Done()
	}

	sess := NewStreamSession(sp.source, req, sp.opts, sp.logger)
	sp.live[contextID] = sess
	sess.Start(ctx)
	return sess, nil
}

// Active returns the live session for a context, or nil when the context has
// none or it already terminated.
func (sp *Supersessor) Active(contextID string) *StreamSession {
	sp.mu.Lock()
	defer sp.mu.Unlock()
	sess, ok := sp.live[contextID]
	if !ok || sess.State().Terminal() {
		return nil
	}
	return sess
}

// Cancel stops the live session for a context, if any. Used on navigation
// away or an explicit stop action.
func (sp *Supersessor) Cancel(contextID string) {
	sp.mu.Lock()
	sess, ok := sp.live[contextID]
	sp.mu.Unlock()
	if ok {
		sess.Cancel()
	}
}

// Release drops a context's session record once the conversation is torn
// down. The session is cancelled if still live.
func (sp *Supersessor) Release(contextID string) {
	sp.mu.Lock()
	sess, ok := sp.live[contextID]
	delete(sp.live, contextID)
	sp.mu.Unlock()
	if ok {
		sess.Cancel()
	}
}

// Shutdown cancels every live session and waits for each to terminate.
func (sp *Supersessor) Shutdown() {
	sp.mu.Lock()
	sessions := make([]*StreamSession, 0, len(sp.live))
	for _, sess := range sp.live {
		sessions = append(sessions, sess)
	}
	sp.live = make(map[string]*StreamSession)
	sp.mu.Unlock()

	for _, sess := range sessions {
		sess.Cancel()
		<-sess.Done()
	}
}
