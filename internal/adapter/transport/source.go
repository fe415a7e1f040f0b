package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"docstream/internal/domain"
	"docstream/internal/infra/config"
)

// maxErrorBody caps how much of a failed response body we read when
// extracting a structured error.
const maxErrorBody = 4096

// readBufferSize is the per-read buffer for the chunk pump.
const readBufferSize = 4096

// Request describes one streaming query to the inference service.
type Request struct {
	URL     string
	Method  string // defaults to POST
	Body    []byte
	Headers map[string]string
}

// Chunk is one raw fragment of the response stream, in arrival order. Err is
// set at most once, on the final chunk, when the stream terminated
// abnormally mid-read; cancellation never produces an error chunk.
type Chunk struct {
	Data []byte
	Err  error
}

// Source opens a response stream. The returned channel yields chunks until
// the stream is exhausted and is closed on stream end, context cancellation,
// or after an error chunk. The sequence is not restartable.
type Source interface {
	Open(ctx context.Context, req Request) (<-chan Chunk, error)
}

// HTTPSource is the production Source over a pooled HTTP client.
type HTTPSource struct {
	client  *http.Client
	headers map[string]string
	logger  *slog.Logger
}

// NewHTTPSource creates a source using the backend transport configuration.
func NewHTTPSource(cfg config.BackendConfig, logger *slog.Logger) *HTTPSource {
	return &HTTPSource{
		client:  NewHTTPClient(cfg),
		headers: cfg.Headers,
		logger:  logger,
	}
}

// Open implements Source. A non-2xx response ends the attempt immediately
// with a classified error; the error detail comes from the response body
// when it is parseable JSON, else from the raw status line.
func (s *HTTPSource) Open(ctx context.Context, req Request) (<-chan Chunk, error) {
	method := req.Method
	if method == "" {
		method = http.MethodPost
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		httpReq.Header.Set(k, v)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := s.client.Do(httpReq)
	if err != nil {
		if domain.IsCancellation(err) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrTransport, err)
	}

	if httpResp.StatusCode < 200 || httpResp.StatusCode > 299 {
		defer httpResp.Body.Close()
		body, _ := io.ReadAll(io.LimitReader(httpResp.Body, maxErrorBody))
		return nil, mapStatusError(httpResp.StatusCode, body)
	}

	ch := make(chan Chunk, 16)
	go s.pump(ctx, httpResp.Body, ch)
	return ch, nil
}

// pump reads the body until EOF, error, or cancellation. The read buffer is
// reused, so each chunk is copied before sending.
func (s *HTTPSource) pump(ctx context.Context, body io.ReadCloser, ch chan<- Chunk) {
	defer close(ch)
	defer body.Close()

	buf := make([]byte, readBufferSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			select {
			case ch <- Chunk{Data: data}:
			case <-ctx.Done():
				return
			}
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			if ctx.Err() != nil || domain.IsCancellation(err) {
				// Caller-initiated stop; not a failure.
				return
			}
			s.logger.Warn("stream read failed", "error", err)
			select {
			case ch <- Chunk{Err: fmt.Errorf("%w: read stream: %v", domain.ErrTransport, err)}:
			case <-ctx.Done():
			}
			return
		}
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// upstreamError is the structured failure body the inference service returns.
type upstreamError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// mapStatusError maps an HTTP status + response body to a sentinel-wrapped
// error so the session can classify it for the terminal snapshot.
func mapStatusError(statusCode int, body []byte) error {
	detail := fmt.Sprintf("%d %s", statusCode, http.StatusText(statusCode))
	var ue upstreamError
	if err := json.Unmarshal(body, &ue); err == nil {
		switch {
		case ue.Error != "":
			detail = ue.Error
		case ue.Message != "":
			detail = ue.Message
		}
	}

	switch {
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimit, detail)
	case statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrAuthInvalid, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: %s", domain.ErrUpstream, detail)
	default:
		return fmt.Errorf("%w: %s", domain.ErrTransport, detail)
	}
}
