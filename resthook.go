package resthook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
	"github.com/xraph/resthook/observability"
	"github.com/xraph/resthook/signature"
	"github.com/xraph/resthook/store"
	"github.com/xraph/resthook/subscription"
)

// TriggerResult reports what one Trigger call queued.
type TriggerResult struct {
	EventID           id.ID `json:"event_id"`
	Queued            int   `json:"queued"`
	SubscriptionCount int   `json:"subscription_count"`
}

// wireServices initializes the internal services after options have been applied.
func (r *Relay) wireServices() error {
	keys, err := apikey.NewService(r.store, apikey.Config{
		Environment: r.config.KeyEnvironment,
	}, r.logger)
	if err != nil {
		return err
	}
	r.keys = keys

	r.validator = catalog.NewValidator()
	r.subs = subscription.NewService(r.store, r.logger)
	r.logs = deliverylog.NewService(r.store, r.store, r.logger)

	r.engine = delivery.NewEngine(r.store, delivery.EngineConfig{
		Concurrency:    r.config.Concurrency,
		PollInterval:   r.config.PollInterval,
		BatchSize:      r.config.BatchSize,
		LeaseDuration:  r.config.LeaseDuration,
		RequestTimeout: r.config.RequestTimeout,
		BaseDelay:      r.config.BaseDelay,
		MaxDelay:       r.config.MaxDelay,
		Retention:      r.config.Retention,
		PruneInterval:  r.config.PruneInterval,
		Signer:         signature.NewSigner(r.config.SigningSecret),
		Metrics:        r.metrics,
		Tracer:         r.tracer,
	}, r.logger)

	return nil
}

// Start begins the delivery engine.
func (r *Relay) Start(ctx context.Context) {
	r.engine.Start(ctx)
}

// Stop shuts down the delivery engine, waiting at most ShutdownTimeout for
// running attempts. Jobs it does not wait for are reclaimed once their
// lease expires.
func (r *Relay) Stop(ctx context.Context) error {
	if r.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.config.ShutdownTimeout)
		defer cancel()
	}
	return r.engine.Stop(ctx)
}

// TriggerPayload is Trigger for a typed payload; the event type comes from
// the payload itself.
func (r *Relay) TriggerPayload(ctx context.Context, tenantID string, p catalog.Payload) (TriggerResult, error) {
	return r.Trigger(ctx, tenantID, p.EventType(), p)
}

// Trigger fans an event out to the tenant's active subscriptions for
// eventType, one queued job per subscription.
//
// Unknown event types and payloads that do not encode or fail the event
// schema are rejected before anything is queued. A job that cannot be
// enqueued is logged and left out of Queued; it never fails the call.
func (r *Relay) Trigger(ctx context.Context, tenantID string, eventType catalog.EventType, payload any) (res TriggerResult, err error) {
	ctx, span := r.tracer.StartTrigger(ctx, tenantID, string(eventType))
	defer func() { r.tracer.EndTrigger(span, res.SubscriptionCount, res.Queued, err) }()

	if !eventType.Valid() {
		return res, fmt.Errorf("%w: %q", ErrUnknownEventType, eventType)
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return res, fmt.Errorf("%w: %w", ErrInvalidPayload, err)
	}

	if err := r.validator.Validate(eventType, raw); err != nil {
		return res, fmt.Errorf("%w: %s", ErrPayloadValidationFailed, err.Error())
	}

	subs, err := r.store.ListActive(ctx, tenantID, &eventType)
	if err != nil {
		return res, fmt.Errorf("resthook: list subscriptions: %w", err)
	}

	res.SubscriptionCount = len(subs)
	if len(subs) == 0 {
		r.metrics.RecordTrigger(0, 0)
		return res, nil
	}

	res.EventID = id.NewEventID()
	now := time.Now().UTC()
	failed := 0

	for _, sub := range subs {
		j := &delivery.Job{
			Entity:         entity.New(),
			ID:             id.NewJobID(),
			EventID:        res.EventID,
			SubscriptionID: sub.ID,
			TenantID:       tenantID,
			EventType:      eventType,
			TargetURL:      sub.TargetURL,
			Payload:        raw,
			Attempt:        1,
			MaxAttempts:    r.config.MaxAttempts,
			State:          delivery.StateQueued,
			NextAttemptAt:  now,
		}

		if enqueueErr := r.store.Enqueue(ctx, j); enqueueErr != nil {
			failed++
			r.logger.ErrorContext(ctx, "enqueue failed",
				"subscription_id", sub.ID.String(),
				"event_id", res.EventID.String(),
				"error", enqueueErr,
			)
			continue
		}
		res.Queued++
	}

	r.metrics.RecordTrigger(res.Queued, failed)

	r.logger.DebugContext(ctx, "event triggered",
		"event_id", res.EventID.String(),
		"tenant_id", tenantID,
		"event_type", string(eventType),
		"subscriptions", res.SubscriptionCount,
		"queued", res.Queued,
	)

	return res, nil
}

// Replay requeues a failed job with a fresh MaxAttempts budget.
func (r *Relay) Replay(ctx context.Context, jobID id.ID) (*delivery.Job, error) {
	j, err := delivery.Replay(ctx, r.store, jobID, r.config.MaxAttempts)
	if err != nil {
		return nil, err
	}

	r.logger.InfoContext(ctx, "job replayed",
		"job_id", j.ID.String(),
		"tenant_id", j.TenantID,
		"attempt", j.Attempt,
	)
	return j, nil
}

// Keys returns the Key Vault.
func (r *Relay) Keys() *apikey.Service { return r.keys }

// Subscriptions returns the Subscription Registry.
func (r *Relay) Subscriptions() *subscription.Service { return r.subs }

// DeliveryLog returns the delivery log service.
func (r *Relay) DeliveryLog() *deliverylog.Service { return r.logs }

// Engine returns the delivery worker pool.
func (r *Relay) Engine() *delivery.Engine { return r.engine }

// Metrics returns the Prometheus instruments, or nil when disabled.
func (r *Relay) Metrics() *observability.Metrics { return r.metrics }

// Store returns the underlying store.
func (r *Relay) Store() store.Store { return r.store }

// Config returns the effective configuration.
func (r *Relay) Config() Config { return r.config }
