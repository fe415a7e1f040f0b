package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	cfg := Defaults()
	cfg.Backend.BaseURL = "http://localhost:5000"
	return cfg
}

func TestValidateAcceptsDefaults(t *testing.T) {
	if err := Validate(Defaults()); err != nil {
		t.Fatalf("defaults must validate: %v", err)
	}
}

func TestValidateBackendURL(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.BaseURL = "not-a-url"
	err := Validate(cfg)
	if err == nil {
		t.Fatal("want error for invalid base_url")
	}
	if !strings.Contains(err.Error(), "backend.base_url") {
		t.Errorf("err = %v, want backend.base_url mentioned", err)
	}
}

func TestValidateTrimsTrailingSlash(t *testing.T) {
	cfg := validConfig()
	cfg.Backend.BaseURL = "http://localhost:5000///"
	if err := Validate(cfg); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
}

func TestValidateConsumerBounds(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"negative estimate", func(c *Config) { c.Consumer.EstimatedResponseBytes = -1 }, "estimated_response_bytes"},
		{"zero snapshot buffer", func(c *Config) { c.Consumer.SnapshotBuffer = 0 }, "snapshot_buffer"},
		{"zero submit rate", func(c *Config) { c.Consumer.SubmitRate = 0 }, "submit_rate"},
		{"zero submit burst", func(c *Config) { c.Consumer.SubmitBurst = 0 }, "submit_burst"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			err := Validate(cfg)
			if err == nil {
				t.Fatal("want validation error")
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Errorf("err = %v, want %q mentioned", err, tc.want)
			}
		})
	}
}

func TestValidateHistoryRequiresPath(t *testing.T) {
	cfg := validConfig()
	cfg.History.Enabled = true
	cfg.History.Path = ""
	if err := Validate(cfg); err == nil {
		t.Fatal("want error when history enabled without path")
	}
}

func TestValidateLoggerEnums(t *testing.T) {
	cfg := validConfig()
	cfg.Logger.Level = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("want error for unknown log level")
	}

	cfg = validConfig()
	cfg.Logger.Format = "xml"
	if err := Validate(cfg); err == nil {
		t.Fatal("want error for unknown log format")
	}
}

func TestValidateTracerExporter(t *testing.T) {
	cfg := validConfig()
	cfg.Tracer.Exporter = "jaeger"
	if err := Validate(cfg); err == nil {
		t.Fatal("want error for unsupported exporter")
	}
}

func TestValidateAccumulatesAllErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Consumer.SubmitRate = 0
	cfg.Consumer.SnapshotBuffer = 0
	cfg.Logger.Level = "nope"

	err := Validate(cfg)
	if err == nil {
		t.Fatal("want validation error")
	}
	ve, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("err = %T, want *ValidationError", err)
	}
	if len(ve.Errors) != 3 {
		t.Errorf("got %d errors, want 3: %v", len(ve.Errors), ve.Errors)
	}
}
