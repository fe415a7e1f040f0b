package usecase

import (
	"context"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/trace"

	"docstream/internal/adapter/transport"
	"docstream/internal/domain"
	"docstream/internal/infra/tracer"
)

// SessionOptions tunes one streaming session.
type SessionOptions struct {
	// EstimatedResponseBytes feeds the byte-based progress heuristic.
	EstimatedResponseBytes int
	// SnapshotBuffer is the snapshot channel capacity.
	SnapshotBuffer int
}

// StreamSession consumes one response stream: it drives the chunk source
// through the frame buffer, envelope splitter and directive extractor, and
// publishes ordered snapshots until a terminal state. All parsing runs
// synchronously per chunk; chunk arrival is the only suspension point, so a
// session never races with itself. Cancellation is cooperative: it takes
// effect at the next chunk boundary and is a first-class outcome, not an
// error.
type StreamSession struct {
	id     string
	source transport.Source
	req    transport.Request
	logger *slog.Logger

	cancel    context.CancelFunc
	snapshots chan domain.Snapshot
	done      chan struct{}
	startOnce sync.Once

	frame   *FrameBuffer
	split   *EnvelopeSplitter
	extract *DirectiveExtractor
	meter   *progressMeter

	mu           sync.Mutex
	state        domain.SessionState
	display      strings.Builder
	result       domain.Result
	preCancelled bool // Cancel arrived before Start
}

// NewStreamSession creates a session in the Idle state. Nothing happens
// until Start.
func NewStreamSession(source transport.Source, req transport.Request, opts SessionOptions, logger *slog.Logger) *StreamSession {
	buffer := opts.SnapshotBuffer
	if buffer < 1 {
		buffer = 64
	}
	return &StreamSession{
		id:        newSessionID(),
		source:    source,
		req:       req,
		logger:    logger,
		snapshots: make(chan domain.Snapshot, buffer),
		done:      make(chan struct{}),
		frame:     NewFrameBuffer(),
		split:     NewEnvelopeSplitter(),
		extract:   NewDirectiveExtractor(),
		meter:     newProgressMeter(opts.EstimatedResponseBytes),
		state:     domain.StateIdle,
	}
}

func newSessionID() string {
	now := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(now.UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(now), entropy).String()
}

// ID returns the session's ULID.
func (s *StreamSession) ID() string { return s.id }

// State returns the current lifecycle state.
func (s *StreamSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshots is the observable sequence of session frames. The channel is
// closed after the terminal snapshot.
func (s *StreamSession) Snapshots() <-chan domain.Snapshot { return s.snapshots }

// Done closes when the session reaches a terminal state.
func (s *StreamSession) Done() <-chan struct{} { return s.done }

// Result returns the terminal outcome. Only meaningful after Done.
func (s *StreamSession) Result() domain.Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.result
}

// Cancel fires the session's cancellation token. Safe to call at any time,
// including before Start or after completion.
func (s *StreamSession) Cancel() {
	s.mu.Lock()
	cancel := s.cancel
	if cancel == nil {
		s.preCancelled = true
	}
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Start begins reading the stream. It may be called once; later calls are
// no-ops. The ctx governs the whole session: cancelling it is equivalent to
// Cancel.
func (s *StreamSession) Start(ctx context.Context) {
	s.startOnce.Do(func() {
		ctx, cancel := context.WithCancel(ctx)
		s.mu.Lock()
		s.cancel = cancel
		pre := s.preCancelled
		s.mu.Unlock()
		if pre {
			cancel()
		}
		go s.run(ctx)
	})
}

func (s *StreamSession) run(ctx context.Context) {
	ctx, span := tracer.StartSpan(ctx, "stream.session",
		trace.WithAttributes(
			tracer.StringAttr("session.id", s.id),
			tracer.StringAttr("session.url", s.req.URL),
		),
	)
	defer span.End()

	s.setState(domain.StateConnecting)
	s.publish(ctx)

	ch, err := s.source.Open(ctx, s.req)
	if err != nil {
		// A fired session context (explicit cancel or caller deadline) is a
		// cancellation regardless of how the transport reported it.
		if domain.IsCancellation(err) || ctx.Err() != nil {
			s.finishCancelled(span)
			return
		}
		s.finishFailed(span, err)
		return
	}

	for chunk := range ch {
		if chunk.Err != nil {
			if domain.IsCancellation(chunk.Err) || ctx.Err() != nil {
				s.finishCancelled(span)
				return
			}
			s.finishFailed(span, chunk.Err)
			return
		}

		s.setState(domain.StateStreaming)
		s.consume(s.frame.Feed(chunk.Data))
		s.meter.observeBytes(s.frame.BytesDecoded())
		s.publish(ctx)
	}

	if ctx.Err() != nil {
		// Cancelled mid-stream: buffered-but-unprocessed bytes are dropped;
		// text already published stays visible.
		s.finishCancelled(span)
		return
	}

	s.finishCompleted(span)
}

// consume routes newly decoded text through the splitter and extractor and
// folds the results into session state.
func (s *StreamSession) consume(text string) {
	body := s.split.Feed(text)
	if body == "" {
		return
	}
	s.apply(s.extract.Process(body))
}

func (s *StreamSession) apply(res ExtractResult) {
	s.mu.Lock()
	s.display.WriteString(res.DisplayDelta)
	s.mu.Unlock()
	if res.StatusUpdated {
		s.meter.observeStatus(res.Status)
	}
}

func (s *StreamSession) finishCompleted(span trace.Span) {
	// Drain the decoder and the one-shot machines: a stream that never sent
	// a delimiter is all body, and a held status line still applies.
	if tail := s.frame.Flush(); tail != "" {
		s.consume(tail)
	}
	if leftover := s.split.Finish(); leftover != "" {
		s.apply(s.extract.Process(leftover))
	}
	s.apply(s.extract.Finish())
	s.meter.complete()

	s.mu.Lock()
	s.state = domain.StateCompleted
	s.result = domain.Result{
		State:      domain.StateCompleted,
		Message:    s.display.String(),
		Highlights: s.extract.Highlights(),
		Envelope:   s.split.Envelope(),
		FinishedAt: time.Now(),
	}
	s.mu.Unlock()

	tracer.SetOK(span)
	s.logger.Debug("stream session completed",
		"session", s.id,
		"bytes", s.frame.BytesDecoded(),
		"highlights", len(s.extract.Highlights()),
	)
	s.finish()
}

func (s *StreamSession) finishCancelled(span trace.Span) {
	s.mu.Lock()
	s.state = domain.StateCancelled
	s.result = domain.Result{
		State:      domain.StateCancelled,
		Envelope:   s.split.Envelope(),
		Highlights: s.extract.Highlights(),
		FinishedAt: time.Now(),
	}
	s.mu.Unlock()

	s.logger.Debug("stream session cancelled", "session", s.id)
	s.finish()
}

func (s *StreamSession) finishFailed(span trace.Span, err error) {
	streamErr := domain.NewStreamError(err)

	s.mu.Lock()
	s.state = domain.StateFailed
	s.result = domain.Result{
		State:      domain.StateFailed,
		Err:        streamErr,
		Envelope:   s.split.Envelope(),
		Highlights: s.extract.Highlights(),
		FinishedAt: time.Now(),
	}
	s.mu.Unlock()

	tracer.RecordError(span, err)
	s.logger.Warn("stream session failed", "session", s.id, "error", err)
	s.finish()
}

// finish publishes the terminal snapshot, closes the snapshot channel and
// signals Done. The terminal frame is always delivered: when the buffer is
// full the oldest buffered frame is evicted, since the terminal frame
// supersedes any stale intermediate one. The send never blocks; this is the
// only sender, so eviction always makes room.
func (s *StreamSession) finish() {
	snap := s.snapshot()
	for {
		select {
		case s.snapshots <- snap:
			close(s.snapshots)
			close(s.done)
			return
		default:
		}
		select {
		case <-s.snapshots:
		default:
		}
	}
}

func (s *StreamSession) setState(state domain.SessionState) {
	s.mu.Lock()
	if !s.state.Terminal() {
		s.state = state
	}
	s.mu.Unlock()
}

// snapshot builds a consistent frame of current session state.
func (s *StreamSession) snapshot() domain.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Snapshot{
		State:       s.state,
		Envelope:    s.split.Envelope(),
		DisplayText: s.display.String(),
		Highlights:  s.extract.Highlights(),
		Progress:    s.meter.value(),
		StatusText:  s.extract.Status(),
		Err:         s.result.Err,
	}
}

// publish emits a non-terminal snapshot. A cancelled context aborts the send
// so a superseded session never blocks on an abandoned channel.
func (s *StreamSession) publish(ctx context.Context) {
	select {
	case s.snapshots <- s.snapshot():
	case <-ctx.Done():
	}
}
