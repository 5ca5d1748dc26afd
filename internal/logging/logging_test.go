package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name     string
		level    LogLevel
		expected slog.Level
	}{
		{"debug level", LevelDebug, slog.LevelDebug},
		{"info level", LevelInfo, slog.LevelInfo},
		{"warn level", LevelWarn, slog.LevelWarn},
		{"warning alias", "WARNING", slog.LevelWarn},
		{"error level", LevelError, slog.LevelError},
		{"unknown falls back to info", "verbose", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseLevel(tt.level); got != tt.expected {
				t.Errorf("Expected %v, got %v", tt.expected, got)
			}
		})
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	if cfg.Level != LevelInfo {
		t.Errorf("Expected default level %s, got %s", LevelInfo, cfg.Level)
	}
	if cfg.Format != FormatText {
		t.Errorf("Expected default format %s, got %s", FormatText, cfg.Format)
	}
	if cfg.Output != "stdout" {
		t.Errorf("Expected default output stdout, got %s", cfg.Output)
	}
}

func TestJSONOutputCarriesFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelDebug, Format: FormatJSON}, &buf)

	logger.WithComponent("orchestrator").WithScanID("abc").InfoScan("sweep started", "10.0.0.0/30", "hosts", 2)

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	for key, want := range map[string]any{
		"msg":       "sweep started",
		"component": "orchestrator",
		"scan_id":   "abc",
		"range":     "10.0.0.0/30",
		"hosts":     float64(2),
	} {
		if entry[key] != want {
			t.Errorf("field %s = %v, want %v", key, entry[key], want)
		}
	}
}

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(Config{Level: LevelWarn, Format: FormatText}, &buf)

	logger.DebugProbe("no reply", "10.0.0.1")
	logger.Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("expected nothing below warn, got %q", buf.String())
	}

	logger.ErrorDatabase("upsert failed", errors.New("boom"))
	out := buf.String()
	if !strings.Contains(out, "upsert failed") || !strings.Contains(out, "component=database") {
		t.Errorf("unexpected output %q", out)
	}
}

func TestFileOutputCreatesDirectory(t *testing.T) {
	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.Output = filepath.Join(dir, "nested", "netsweep.log")

	logger, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	logger.Info("hello")
	if logger.Config().Output != cfg.Output {
		t.Errorf("config not retained")
	}
}

func TestDefaultLoggerSwap(t *testing.T) {
	orig := Default()
	defer SetDefault(orig)

	var buf bytes.Buffer
	SetDefault(NewWithWriter(Config{Level: LevelInfo, Format: FormatText}, &buf))
	InfoScan("sweep done", "192.168.1.0/30")
	if !strings.Contains(buf.String(), "range=192.168.1.0/30") {
		t.Errorf("default logger not used: %q", buf.String())
	}
}
