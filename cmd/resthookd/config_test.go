package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xraph/resthook"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	def := resthook.DefaultConfig()
	if cfg.Engine != def {
		t.Errorf("engine = %+v, want %+v", cfg.Engine, def)
	}
	if cfg.HTTP.Addr != ":8080" {
		t.Errorf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.Store.Driver != "memory" {
		t.Errorf("store.driver = %q", cfg.Store.Driver)
	}
	if !cfg.Metrics.Enabled || cfg.Metrics.Path != "/metrics" {
		t.Errorf("metrics = %+v", cfg.Metrics)
	}
}

func TestLoadConfig_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "resthookd.yaml")
	yaml := `
engine:
  concurrency: 4
  max_attempts: 5
  base_delay: 500ms
http:
  addr: ":9090"
log:
  format: json
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("RESTHOOK_ENGINE_MAX_ATTEMPTS", "7")
	t.Setenv("RESTHOOK_RATE_LIMIT_PER_MINUTE", "120")

	cfg, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig: %v", err)
	}

	if cfg.Engine.Concurrency != 4 {
		t.Errorf("concurrency = %d, want 4", cfg.Engine.Concurrency)
	}
	if cfg.Engine.MaxAttempts != 7 {
		t.Errorf("max_attempts = %d, want env value 7", cfg.Engine.MaxAttempts)
	}
	if cfg.Engine.BaseDelay != 500*time.Millisecond {
		t.Errorf("base_delay = %v", cfg.Engine.BaseDelay)
	}
	if cfg.HTTP.Addr != ":9090" {
		t.Errorf("http.addr = %q", cfg.HTTP.Addr)
	}
	if cfg.RateLimit.PerMinute != 120 {
		t.Errorf("rate_limit.per_minute = %d", cfg.RateLimit.PerMinute)
	}
	if cfg.Log.Format != "json" {
		t.Errorf("log.format = %q", cfg.Log.Format)
	}
}

func TestLoadConfig_Invalid(t *testing.T) {
	t.Setenv("RESTHOOK_ENGINE_CONCURRENCY", "0")

	if _, err := loadConfig(""); err == nil {
		t.Fatal("expected error for zero concurrency")
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer

	logger, err := newLogger(logConfig{Level: "warn", Format: "json"}, &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}
	logger.Info("dropped")
	logger.Warn("kept", "job_id", "job_1")

	out := buf.String()
	if strings.Contains(out, "dropped") {
		t.Error("info record should be filtered at warn level")
	}
	if !strings.Contains(out, `"msg":"kept"`) || !strings.Contains(out, `"job_id":"job_1"`) {
		t.Errorf("unexpected output %q", out)
	}

	if _, err := newLogger(logConfig{Level: "info", Format: "xml"}, &buf); err == nil {
		t.Error("expected error for unknown format")
	}
	if _, err := newLogger(logConfig{Level: "loud"}, &buf); err == nil {
		t.Error("expected error for unknown level")
	}
}

func TestSigningSecretCmd(t *testing.T) {
	var out bytes.Buffer

	root := newRootCmd()
	root.SetOut(&out)
	root.SetArgs([]string{"signing-secret"})
	if err := root.Execute(); err != nil {
		t.Fatalf("execute: %v", err)
	}

	if !strings.HasPrefix(out.String(), "whsec_") {
		t.Errorf("secret = %q", out.String())
	}
}
