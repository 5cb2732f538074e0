package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/xraph/resthook"
)

// daemonConfig is the file/env configuration of resthookd. Every key can be
// set through RESTHOOK_<SECTION>_<KEY>, e.g. RESTHOOK_ENGINE_MAX_ATTEMPTS.
type daemonConfig struct {
	Engine    resthook.Config `mapstructure:"engine"`
	HTTP      httpConfig      `mapstructure:"http"`
	Store     storeConfig     `mapstructure:"store"`
	Log       logConfig       `mapstructure:"log"`
	RateLimit rateLimitConfig `mapstructure:"rate_limit"`
	Metrics   metricsConfig   `mapstructure:"metrics"`
}

type httpConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
}

type storeConfig struct {
	// Driver is "memory", "redis", "sqlite" or "postgres".
	Driver   string `mapstructure:"driver"`
	RedisURL string `mapstructure:"redis_url"`
	// DSN is the connection string of the sqlite and postgres drivers.
	DSN string `mapstructure:"dsn"`
}

type logConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type rateLimitConfig struct {
	PerMinute int `mapstructure:"per_minute"`
}

type metricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	def := resthook.DefaultConfig()
	v.SetDefault("engine.concurrency", def.Concurrency)
	v.SetDefault("engine.poll_interval", def.PollInterval)
	v.SetDefault("engine.batch_size", def.BatchSize)
	v.SetDefault("engine.lease_duration", def.LeaseDuration)
	v.SetDefault("engine.request_timeout", def.RequestTimeout)
	v.SetDefault("engine.max_attempts", def.MaxAttempts)
	v.SetDefault("engine.base_delay", def.BaseDelay)
	v.SetDefault("engine.max_delay", def.MaxDelay)
	v.SetDefault("engine.retention", def.Retention)
	v.SetDefault("engine.prune_interval", def.PruneInterval)
	v.SetDefault("engine.shutdown_timeout", def.ShutdownTimeout)
	v.SetDefault("engine.key_environment", def.KeyEnvironment)
	v.SetDefault("engine.signing_secret", "")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 15*time.Second)
	v.SetDefault("http.write_timeout", 15*time.Second)
	v.SetDefault("http.idle_timeout", 60*time.Second)

	v.SetDefault("store.driver", "memory")
	v.SetDefault("store.redis_url", "redis://localhost:6379/0")
	v.SetDefault("store.dsn", "resthook.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")

	v.SetDefault("rate_limit.per_minute", 0)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
}

// loadConfig reads an optional .env file, then path (when set), then the
// RESTHOOK_* environment.
func loadConfig(path string) (*daemonConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix("RESTHOOK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg daemonConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// newLogger builds the slog handler selected by log.level and log.format.
func newLogger(cfg logConfig, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log.level: %w", err)
	}

	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "text", "":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("log.format: unknown format %q", cfg.Format)
	}
}
