package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestIncludesMergeInOrder(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "backend.yaml", `
backend:
  base_url: http://localhost:5000
  conn_timeout: 5s
`)
	writeConfig(t, dir, "consumer.yaml", `
consumer:
  submit_rate: 1
  submit_burst: 2
`)
	main := writeConfig(t, dir, "config.yaml", `
includes:
  - backend.yaml
  - consumer.yaml
logger:
  level: debug
`)

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" {
		t.Errorf("BaseURL = %q", cfg.Backend.BaseURL)
	}
	if cfg.Backend.ConnTimeout != 5*time.Second {
		t.Errorf("ConnTimeout = %v", cfg.Backend.ConnTimeout)
	}
	if cfg.Consumer.SubmitRate != 1 {
		t.Errorf("SubmitRate = %v", cfg.Consumer.SubmitRate)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Level = %q", cfg.Logger.Level)
	}
}

func TestIncludesMainFileWins(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "base.yaml", `
logger:
  level: error
  format: json
`)
	main := writeConfig(t, dir, "config.yaml", `
includes: [base.yaml]
logger:
  level: debug
`)

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Logger.Level != "debug" {
		t.Errorf("Level = %q, main file must take precedence", cfg.Logger.Level)
	}
	if cfg.Logger.Format != "json" {
		t.Errorf("Format = %q, include value must survive where main is silent", cfg.Logger.Format)
	}
}

func TestIncludesGlob(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "10-backend.yaml", "backend:\n  base_url: http://localhost:5000\n")
	writeConfig(t, dir, "20-logger.yaml", "logger:\n  level: warn\n")
	main := writeConfig(t, dir, "config.yaml", "includes: ['*-*.yaml']\n")

	cfg, err := Load(main)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Backend.BaseURL != "http://localhost:5000" || cfg.Logger.Level != "warn" {
		t.Errorf("glob includes not merged: %+v", cfg)
	}
}

func TestIncludesGlobNoMatchIsNotAnError(t *testing.T) {
	dir := t.TempDir()
	main := writeConfig(t, dir, "config.yaml", "includes: ['extra-*.yaml']\n")
	if _, err := Load(main); err != nil {
		t.Fatalf("Load: %v", err)
	}
}

func TestIncludesMissingLiteralFileFails(t *testing.T) {
	dir := t.TempDir()
	main := writeConfig(t, dir, "config.yaml", "includes: [missing.yaml]\n")
	if _, err := Load(main); err == nil {
		t.Fatal("want error for missing literal include")
	}
}

func TestIncludesCircularDetected(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "a.yaml", "includes: [b.yaml]\n")
	writeConfig(t, dir, "b.yaml", "includes: [a.yaml]\n")
	main := writeConfig(t, dir, "config.yaml", "includes: [a.yaml]\n")

	_, err := Load(main)
	if err == nil {
		t.Fatal("want circular include error")
	}
	if !strings.Contains(err.Error(), "circular") {
		t.Errorf("err = %v, want circular include reported", err)
	}
}

func TestIncludesEscapeRejected(t *testing.T) {
	dir := t.TempDir()
	outside := writeConfig(t, t.TempDir(), "outside.yaml", "logger:\n  level: warn\n")
	main := writeConfig(t, dir, "config.yaml",
		"includes: ['"+filepath.Join("..", filepath.Base(filepath.Dir(outside)), "outside.yaml")+"']\n")

	if _, err := Load(main); err == nil {
		t.Fatal("want error for include escaping the config directory")
	}
}
