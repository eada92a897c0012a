package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Config holds every runtime setting of the service.
type Config struct {
	HTTP     HTTPConfig
	Storage  StorageConfig
	Analyzer AnalyzerConfig
	Flash    FlashConfig
	LogLevel zapcore.Level
}

type HTTPConfig struct {
	Addr               string
	PublicBaseURL      string
	CORSAllowedOrigins []string
	ShutdownTimeout    time.Duration
}

type StorageConfig struct {
	AppRoot        string
	PublicDir      string
	UploadSubdir   string
	MaxUploadBytes int64
}

type AnalyzerConfig struct {
	Path    string
	Timeout time.Duration
}

type FlashConfig struct {
	RedisAddr string
	TTL       time.Duration
}

// UploadDir is the absolute directory uploaded images are written to.
func (s StorageConfig) UploadDir() string {
	return filepath.Join(s.publicRoot(), s.UploadSubdir)
}

func (s StorageConfig) publicRoot() string {
	if filepath.IsAbs(s.PublicDir) {
		return s.PublicDir
	}
	return filepath.Join(s.AppRoot, s.PublicDir)
}

// Load reads configuration from the environment on top of built-in defaults.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("APP_ROOT", ".")
	v.SetDefault("PUBLIC_DIR", "public")
	v.SetDefault("UPLOAD_SUBDIR", "uploads")
	v.SetDefault("PUBLIC_BASE_URL", "")
	v.SetDefault("ANALYZER_PATH", "analyzer/run_analyzer")
	v.SetDefault("ANALYZER_TIMEOUT", "120s")
	v.SetDefault("MAX_UPLOAD_BYTES", 5*1024*1024)
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("FLASH_TTL", "5m")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("SHUTDOWN_TIMEOUT", "15s")

	v.AutomaticEnv()

	appRoot, err := filepath.Abs(v.GetString("APP_ROOT"))
	if err != nil {
		return nil, fmt.Errorf("resolve APP_ROOT: %w", err)
	}

	level, err := zapcore.ParseLevel(v.GetString("LOG_LEVEL"))
	if err != nil {
		return nil, fmt.Errorf("invalid LOG_LEVEL: %w", err)
	}

	cfg := &Config{
		HTTP: HTTPConfig{
			Addr:               v.GetString("HTTP_ADDR"),
			PublicBaseURL:      strings.TrimRight(v.GetString("PUBLIC_BASE_URL"), "/"),
			CORSAllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			ShutdownTimeout:    v.GetDuration("SHUTDOWN_TIMEOUT"),
		},
		Storage: StorageConfig{
			AppRoot:        appRoot,
			PublicDir:      v.GetString("PUBLIC_DIR"),
			UploadSubdir:   strings.Trim(v.GetString("UPLOAD_SUBDIR"), "/"),
			MaxUploadBytes: v.GetInt64("MAX_UPLOAD_BYTES"),
		},
		Analyzer: AnalyzerConfig{
			Path:    v.GetString("ANALYZER_PATH"),
			Timeout: v.GetDuration("ANALYZER_TIMEOUT"),
		},
		Flash: FlashConfig{
			RedisAddr: v.GetString("REDIS_ADDR"),
			TTL:       v.GetDuration("FLASH_TTL"),
		},
		LogLevel: level,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var errs []error
	if c.Analyzer.Path == "" {
		errs = append(errs, errors.New("ANALYZER_PATH must not be empty"))
	}
	if err := atLeast("ANALYZER_TIMEOUT", c.Analyzer.Timeout); err != nil {
		errs = append(errs, err)
	}
	if c.Storage.MaxUploadBytes <= 0 {
		errs = append(errs, errors.New("MAX_UPLOAD_BYTES must be positive"))
	}
	if c.Storage.UploadSubdir == "" {
		errs = append(errs, errors.New("UPLOAD_SUBDIR must not be empty"))
	}
	if err := atLeast("FLASH_TTL", c.Flash.TTL); err != nil {
		errs = append(errs, err)
	}
	if err := atLeast("SHUTDOWN_TIMEOUT", c.HTTP.ShutdownTimeout); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// minDuration rejects unitless values, which viper reads as nanoseconds.
const minDuration = time.Second

func atLeast(key string, d time.Duration) error {
	if d < minDuration {
		return fmt.Errorf("%s must be at least %s, got %s (use a unit, e.g. 120s)", key, minDuration, d)
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
