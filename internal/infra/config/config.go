package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level library configuration.
type Config struct {
	// Includes lists additional YAML files (globs allowed, relative to the
	// main config's directory) merged in before the main file's own values.
	Includes []string `yaml:"includes,omitempty"`

	Backend  BackendConfig  `yaml:"backend"`
	Consumer ConsumerConfig `yaml:"consumer"`
	History  HistoryConfig  `yaml:"history"`
	Logger   LoggerConfig   `yaml:"logger"`
	Tracer   TracerConfig   `yaml:"tracer"`
}

// BackendConfig holds settings for the inference-service transport.
type BackendConfig struct {
	BaseURL     string            `yaml:"base_url"`
	ConnTimeout time.Duration     `yaml:"conn_timeout"`
	RespTimeout time.Duration     `yaml:"resp_timeout"`
	Headers     map[string]string `yaml:"headers"`
	Pool        PoolConfig        `yaml:"pool"`
	Breaker     BreakerConfig     `yaml:"breaker"`
}

// PoolConfig configures HTTP connection pooling. Zero values take the
// transport defaults.
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns"`
	MaxIdleConnsPerHost int           `yaml:"max_idle_conns_per_host"`
	MaxConnsPerHost     int           `yaml:"max_conns_per_host"`
	IdleConnTimeout     time.Duration `yaml:"idle_conn_timeout"`
}

// BreakerConfig configures the circuit breaker around stream opens.
type BreakerConfig struct {
	// MaxFailures is the number of consecutive failures before the circuit opens.
	MaxFailures uint32 `yaml:"max_failures"`
	// Timeout is how long the circuit stays open before transitioning to half-open.
	Timeout time.Duration `yaml:"timeout"`
	// Interval is the cyclic period of the closed state for clearing failure counts.
	Interval time.Duration `yaml:"interval"`
}

// ConsumerConfig holds stream-consumer tuning.
type ConsumerConfig struct {
	// EstimatedResponseBytes feeds the byte-based progress heuristic.
	EstimatedResponseBytes int `yaml:"estimated_response_bytes"`
	// SnapshotBuffer is the snapshot channel capacity per session.
	SnapshotBuffer int `yaml:"snapshot_buffer"`
	// SubmitRate and SubmitBurst bound query submissions per second across
	// all conversational contexts.
	SubmitRate  float64 `yaml:"submit_rate"`
	SubmitBurst int     `yaml:"submit_burst"`
}

// HistoryConfig holds transcript-store settings.
type HistoryConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"`
}

// Defaults returns a config with sensible defaults applied.
func Defaults() *Config {
	return &Config{
		Backend: BackendConfig{
			ConnTimeout: 30 * time.Second,
			RespTimeout: 120 * time.Second,
		},
		Consumer: ConsumerConfig{
			EstimatedResponseBytes: 16 * 1024,
			SnapshotBuffer:         64,
			SubmitRate:             2,
			SubmitBurst:            4,
		},
		History: HistoryConfig{
			Enabled: false,
			Path:    "docstream.db",
		},
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
	}
}

// Load reads a YAML config file, applies env overrides and validates. A
// missing file is not an error: defaults plus env overrides apply.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			ApplyEnvOverrides(cfg)
			if err := Validate(cfg); err != nil {
				return nil, err
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := validatePermissions(path); err != nil {
		return nil, err
	}

	// First pass: unmarshal to get the includes list.
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.Includes) > 0 {
		absPath, err := filepath.Abs(path)
		if err != nil {
			return nil, fmt.Errorf("resolve config path: %w", err)
		}
		visited := map[string]bool{absPath: true}
		if err := processIncludes(cfg, filepath.Dir(absPath), visited, 0); err != nil {
			return nil, err
		}

		// Second pass: re-unmarshal the main config so it takes precedence
		// over included files.
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config (second pass): %w", err)
		}
		cfg.Includes = nil
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps DOCSTREAM_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DOCSTREAM_BACKEND_URL"); v != "" {
		cfg.Backend.BaseURL = v
	}
	if v := os.Getenv("DOCSTREAM_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("DOCSTREAM_LOG_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("DOCSTREAM_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
		cfg.History.Enabled = true
	}
	if v := os.Getenv("DOCSTREAM_TRACING"); v != "" {
		if enabled, err := strconv.ParseBool(v); err == nil {
			cfg.Tracer.Enabled = enabled
			if enabled && cfg.Tracer.Exporter == "noop" {
				cfg.Tracer.Exporter = "stdout"
			}
		}
	}
}

// validatePermissions rejects config files readable-plus-writable by other
// users; backend headers can carry credentials.
func validatePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat config: %w", err)
	}
	mode := info.Mode().Perm()
	// Allow 0600 and 0644 (readable by others but not writable)
	if mode&0o077 > 0o044 {
		return fmt.Errorf("config file %s has insecure permissions %o (want 0600 or 0644)", path, mode)
	}
	return nil
}
