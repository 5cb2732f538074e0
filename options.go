package resthook

import (
	"log/slog"
	"time"

	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/observability"
	"github.com/xraph/resthook/store"
	"github.com/xraph/resthook/subscription"
)

// Relay wires the Key Vault, the Subscription Registry, the delivery queue
// and its worker pool, and the delivery log around one store.
type Relay struct {
	config    Config
	store     store.Store
	validator *catalog.Validator
	keys      *apikey.Service
	subs      *subscription.Service
	logs      *deliverylog.Service
	engine    *delivery.Engine
	metrics   *observability.Metrics
	tracer    *observability.Tracer
	logger    *slog.Logger
}

// Option configures a Relay instance.
type Option func(*Relay) error

// New creates a Relay with the given options.
func New(opts ...Option) (*Relay, error) {
	r := &Relay{
		config: DefaultConfig(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if err := opt(r); err != nil {
			return nil, err
		}
	}
	if r.store == nil {
		return nil, ErrNoStore
	}
	if err := r.config.Validate(); err != nil {
		return nil, err
	}
	if err := r.wireServices(); err != nil {
		return nil, err
	}
	return r, nil
}

// WithStore sets the persistence backend.
func WithStore(s store.Store) Option {
	return func(r *Relay) error {
		r.store = s
		return nil
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Relay) error {
		if logger != nil {
			r.logger = logger
		}
		return nil
	}
}

// WithConfig replaces the whole configuration, e.g. one loaded from a file.
func WithConfig(cfg Config) Option {
	return func(r *Relay) error {
		r.config = cfg
		return nil
	}
}

// WithMetrics enables Prometheus instrumentation.
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Relay) error {
		r.metrics = m
		return nil
	}
}

// WithTracer enables OpenTelemetry spans.
func WithTracer(t *observability.Tracer) Option {
	return func(r *Relay) error {
		r.tracer = t
		return nil
	}
}

// WithConcurrency sets the number of deliveries attempted at once.
func WithConcurrency(n int) Option {
	return func(r *Relay) error {
		r.config.Concurrency = n
		return nil
	}
}

// WithPollInterval sets how often the engine looks for due jobs.
func WithPollInterval(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.PollInterval = d
		return nil
	}
}

// WithRequestTimeout sets the timeout of each outbound request.
func WithRequestTimeout(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.RequestTimeout = d
		return nil
	}
}

// WithRetry sets the attempt budget and the exponential backoff base.
func WithRetry(maxAttempts int, baseDelay time.Duration) Option {
	return func(r *Relay) error {
		r.config.MaxAttempts = maxAttempts
		r.config.BaseDelay = baseDelay
		return nil
	}
}

// WithRetention sets how long finished jobs are kept.
func WithRetention(d time.Duration) Option {
	return func(r *Relay) error {
		r.config.Retention = d
		return nil
	}
}

// WithKeyEnvironment sets the environment segment of issued API keys.
func WithKeyEnvironment(env string) Option {
	return func(r *Relay) error {
		r.config.KeyEnvironment = env
		return nil
	}
}

// WithSigningSecret enables HMAC signing of outbound deliveries.
func WithSigningSecret(secret string) Option {
	return func(r *Relay) error {
		r.config.SigningSecret = secret
		return nil
	}
}
