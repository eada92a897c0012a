package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("expected defaults to load, got %v", err)
	}

	if cfg.Analyzer.Timeout != 120*time.Second {
		t.Fatalf("expected 120s analyzer timeout, got %s", cfg.Analyzer.Timeout)
	}
	if cfg.Storage.MaxUploadBytes != 5*1024*1024 {
		t.Fatalf("expected 5 MiB upload limit, got %d", cfg.Storage.MaxUploadBytes)
	}
	if cfg.LogLevel != zapcore.InfoLevel {
		t.Fatalf("expected info level, got %s", cfg.LogLevel)
	}
	if !filepath.IsAbs(cfg.Storage.AppRoot) {
		t.Fatalf("expected absolute app root, got %s", cfg.Storage.AppRoot)
	}
	want := filepath.Join(cfg.Storage.AppRoot, "public", "uploads")
	if got := cfg.Storage.UploadDir(); got != want {
		t.Fatalf("expected upload dir %s, got %s", want, got)
	}
	if cfg.HTTP.CORSAllowedOrigins != nil {
		t.Fatalf("expected CORS disabled by default, got %v", cfg.HTTP.CORSAllowedOrigins)
	}
}

func TestLoadReadsEnvironment(t *testing.T) {
	root := t.TempDir()
	t.Setenv("APP_ROOT", root)
	t.Setenv("PUBLIC_DIR", "/srv/static")
	t.Setenv("ANALYZER_TIMEOUT", "3s")
	t.Setenv("PUBLIC_BASE_URL", "https://plants.example.com/")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example.com, ,https://b.example.com")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := load(viper.New())
	if err != nil {
		t.Fatalf("expected config to load, got %v", err)
	}

	if cfg.Analyzer.Timeout != 3*time.Second {
		t.Fatalf("expected 3s timeout, got %s", cfg.Analyzer.Timeout)
	}
	if cfg.HTTP.PublicBaseURL != "https://plants.example.com" {
		t.Fatalf("expected trailing slash trimmed, got %s", cfg.HTTP.PublicBaseURL)
	}
	if len(cfg.HTTP.CORSAllowedOrigins) != 2 {
		t.Fatalf("expected 2 origins, got %v", cfg.HTTP.CORSAllowedOrigins)
	}
	if got := cfg.Storage.UploadDir(); got != filepath.Join("/srv/static", "uploads") {
		t.Fatalf("expected absolute public dir to be kept, got %s", got)
	}
	if cfg.LogLevel != zapcore.DebugLevel {
		t.Fatalf("expected debug level, got %s", cfg.LogLevel)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Setenv("ANALYZER_TIMEOUT", "0s")
	t.Setenv("MAX_UPLOAD_BYTES", "-1")

	_, err := load(viper.New())
	if err == nil {
		t.Fatal("expected validation error, got nil")
	}
	for _, key := range []string{"ANALYZER_TIMEOUT", "MAX_UPLOAD_BYTES"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error to mention %s, got %v", key, err)
		}
	}
}

func TestLoadRejectsUnitlessDurations(t *testing.T) {
	t.Setenv("ANALYZER_TIMEOUT", "120")
	t.Setenv("SHUTDOWN_TIMEOUT", "15")

	_, err := load(viper.New())
	if err == nil {
		t.Fatal("expected unitless durations to be rejected")
	}
	for _, key := range []string{"ANALYZER_TIMEOUT", "SHUTDOWN_TIMEOUT"} {
		if !strings.Contains(err.Error(), key) {
			t.Fatalf("expected error to mention %s, got %v", key, err)
		}
	}
}

func TestLoadRejectsUnknownLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")

	if _, err := load(viper.New()); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}
