package config

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

// Validate checks cfg for structural correctness. It returns a *ValidationError
// when one or more problems are found, allowing callers to inspect all issues.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateBackend(cfg, ve)
	validateConsumer(cfg, ve)
	validateHistory(cfg, ve)
	validateLogger(cfg, ve)
	validateTracer(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateBackend(cfg *Config, ve *ValidationError) {
	if cfg.Backend.BaseURL != "" {
		u, err := url.Parse(cfg.Backend.BaseURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			ve.Add("backend.base_url %q is not a valid URL", cfg.Backend.BaseURL)
		} else {
			cfg.Backend.BaseURL = strings.TrimRight(cfg.Backend.BaseURL, "/")
		}
	}
	if cfg.Backend.ConnTimeout < 0 {
		ve.Add("backend.conn_timeout must be >= 0")
	}
	if cfg.Backend.RespTimeout < 0 {
		ve.Add("backend.resp_timeout must be >= 0")
	}
	if cfg.Backend.Pool.MaxIdleConns < 0 {
		ve.Add("backend.pool.max_idle_conns must be >= 0")
	}
}

func validateConsumer(cfg *Config, ve *ValidationError) {
	if cfg.Consumer.EstimatedResponseBytes < 0 {
		ve.Add("consumer.estimated_response_bytes must be >= 0")
	}
	if cfg.Consumer.SnapshotBuffer < 1 {
		ve.Add("consumer.snapshot_buffer must be >= 1")
	}
	if cfg.Consumer.SubmitRate <= 0 {
		ve.Add("consumer.submit_rate must be > 0")
	}
	if cfg.Consumer.SubmitBurst < 1 {
		ve.Add("consumer.submit_burst must be >= 1")
	}
}

func validateHistory(cfg *Config, ve *ValidationError) {
	if cfg.History.Enabled && cfg.History.Path == "" {
		ve.Add("history.path is required when history is enabled")
	}
}

var validLogLevels = map[string]bool{
	"":        true,
	"debug":   true,
	"info":    true,
	"warn":    true,
	"warning": true,
	"error":   true,
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLogLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is invalid (want: debug, info, warn, error)", cfg.Logger.Level)
	}
	switch cfg.Logger.Format {
	case "", "text", "json":
	default:
		ve.Add("logger.format %q is invalid (want: text, json)", cfg.Logger.Format)
	}
}

var validTraceExporters = map[string]bool{
	"":       true,
	"noop":   true,
	"stdout": true,
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !validTraceExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is invalid (want: noop, stdout)", cfg.Tracer.Exporter)
	}
}
