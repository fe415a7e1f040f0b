package transport

import (
	"net"
	"net/http"
	"time"

	"docstream/internal/infra/config"
)

// Default connection pool settings tuned for a single backend host serving
// long-lived streaming responses.
const (
	defaultMaxIdleConns        = 20
	defaultMaxIdleConnsPerHost = 10
	defaultMaxConnsPerHost     = 20
	defaultIdleConnTimeout     = 120 * time.Second

	defaultConnTimeout = 30 * time.Second
	defaultRespTimeout = 120 * time.Second
)

// NewHTTPClient creates an *http.Client with pooled transport for streaming
// requests. The client-level Timeout stays zero: it would cap total body
// read time and kill slow streams. RespTimeout bounds time-to-first-header
// instead.
func NewHTTPClient(cfg config.BackendConfig) *http.Client {
	connTimeout := cfg.ConnTimeout
	if connTimeout == 0 {
		connTimeout = defaultConnTimeout
	}
	respTimeout := cfg.RespTimeout
	if respTimeout == 0 {
		respTimeout = defaultRespTimeout
	}

	return &http.Client{
		Transport: newPooledTransport(connTimeout, respTimeout, cfg.Pool),
	}
}

// newPooledTransport creates an http.Transport with connection pooling and
// per-phase timeouts.
func newPooledTransport(connTimeout, respTimeout time.Duration, pool config.PoolConfig) *http.Transport {
	maxIdle := pool.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = defaultMaxIdleConns
	}
	maxIdlePerHost := pool.MaxIdleConnsPerHost
	if maxIdlePerHost <= 0 {
		maxIdlePerHost = defaultMaxIdleConnsPerHost
	}
	maxConnsPerHost := pool.MaxConnsPerHost
	if maxConnsPerHost <= 0 {
		maxConnsPerHost = defaultMaxConnsPerHost
	}
	idleTimeout := pool.IdleConnTimeout
	if idleTimeout <= 0 {
		idleTimeout = defaultIdleConnTimeout
	}

	return &http.Transport{
		DialContext: (&net.Dialer{
			Timeout:   connTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: respTimeout,
		MaxIdleConns:          maxIdle,
		MaxIdleConnsPerHost:   maxIdlePerHost,
		MaxConnsPerHost:       maxConnsPerHost,
		IdleConnTimeout:       idleTimeout,
		ForceAttemptHTTP2:     true,
	}
}
