package resthook

import "time"

// Config holds the configuration for a Relay instance. The struct tags let
// the daemon load it from YAML, JSON or RESTHOOK_* environment variables.
type Config struct {
	// Concurrency is the number of deliveries attempted at once.
	Concurrency int `json:"concurrency" mapstructure:"concurrency" yaml:"concurrency"`

	// PollInterval is how often the engine looks for due jobs.
	PollInterval time.Duration `json:"poll_interval" mapstructure:"poll_interval" yaml:"poll_interval"`

	// BatchSize caps the jobs claimed per poll.
	BatchSize int `json:"batch_size" mapstructure:"batch_size" yaml:"batch_size"`

	// LeaseDuration is how long a claimed job stays invisible to other
	// workers. It must exceed RequestTimeout.
	LeaseDuration time.Duration `json:"lease_duration" mapstructure:"lease_duration" yaml:"lease_duration"`

	// RequestTimeout bounds each outbound webhook request.
	RequestTimeout time.Duration `json:"request_timeout" mapstructure:"request_timeout" yaml:"request_timeout"`

	// MaxAttempts is the number of attempts per job, the first included.
	MaxAttempts int `json:"max_attempts" mapstructure:"max_attempts" yaml:"max_attempts"`

	// BaseDelay is the wait after the first failed attempt; it doubles on
	// each further failure up to MaxDelay.
	BaseDelay time.Duration `json:"base_delay" mapstructure:"base_delay" yaml:"base_delay"`
	MaxDelay  time.Duration `json:"max_delay" mapstructure:"max_delay" yaml:"max_delay"`

	// Retention is how long finished jobs are kept before the janitor
	// removes them. Delivery log entries are kept.
	Retention     time.Duration `json:"retention" mapstructure:"retention" yaml:"retention"`
	PruneInterval time.Duration `json:"prune_interval" mapstructure:"prune_interval" yaml:"prune_interval"`

	// ShutdownTimeout bounds how long Stop waits for running attempts.
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout" yaml:"shutdown_timeout"`

	// KeyEnvironment is the "<env>" segment of issued API keys.
	KeyEnvironment string `json:"key_environment" mapstructure:"key_environment" yaml:"key_environment"`

	// SigningSecret enables HMAC signing of deliveries when non-empty.
	SigningSecret string `json:"signing_secret" mapstructure:"signing_secret" yaml:"signing_secret"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Concurrency:     10,
		PollInterval:    1 * time.Second,
		BatchSize:       50,
		LeaseDuration:   2 * time.Minute,
		RequestTimeout:  10 * time.Second,
		MaxAttempts:     3,
		BaseDelay:       2 * time.Second,
		MaxDelay:        1 * time.Hour,
		Retention:       1 * time.Hour,
		PruneInterval:   5 * time.Minute,
		ShutdownTimeout: 30 * time.Second,
		KeyEnvironment:  "live",
	}
}

// Validate reports configuration values the engine cannot run with.
func (c Config) Validate() error {
	switch {
	case c.Concurrency < 1:
		return configError("concurrency must be at least 1")
	case c.PollInterval <= 0:
		return configError("poll_interval must be positive")
	case c.BatchSize < 1:
		return configError("batch_size must be at least 1")
	case c.MaxAttempts < 1:
		return configError("max_attempts must be at least 1")
	case c.RequestTimeout <= 0:
		return configError("request_timeout must be positive")
	case c.LeaseDuration <= c.RequestTimeout:
		return configError("lease_duration must exceed request_timeout")
	case c.BaseDelay < 0:
		return configError("base_delay must not be negative")
	}
	return nil
}

type configError string

func (e configError) Error() string { return "resthook: invalid config: " + string(e) }
