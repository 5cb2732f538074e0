package delivery

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
	"github.com/xraph/resthook/observability"
	"github.com/xraph/resthook/signature"
)

// EngineStore is what the worker pool needs from persistence: the queue,
// the subscription bookkeeping and the attempt log.
type EngineStore interface {
	Dequeue(ctx context.Context, limit int, lease time.Duration) ([]*Job, error)
	UpdateJob(ctx context.Context, j *Job) error
	PruneJobs(ctx context.Context, before time.Time) (int64, error)
	CountPending(ctx context.Context) (int64, error)

	RecordSuccess(ctx context.Context, subID id.ID, at time.Time) error
	RecordFailure(ctx context.Context, subID id.ID, errText string) error
	Deactivate(ctx context.Context, tenantID, targetURL string, eventType *catalog.EventType) (int64, error)

	CreateEntry(ctx context.Context, e *deliverylog.Entry) error
	CompleteEntry(ctx context.Context, e *deliverylog.Entry) error
}

// EngineConfig holds engine configuration.
type EngineConfig struct {
	Concurrency    int
	PollInterval   time.Duration
	BatchSize      int
	LeaseDuration  time.Duration
	RequestTimeout time.Duration
	BaseDelay      time.Duration
	MaxDelay       time.Duration
	Retention      time.Duration
	PruneInterval  time.Duration
	Signer         *signature.Signer
	Metrics        *observability.Metrics
	Tracer         *observability.Tracer
}

// Engine is the delivery worker pool.
type Engine struct {
	store   EngineStore
	sender  *Sender
	retrier *Retrier
	config  EngineConfig
	logger  *slog.Logger
	sem     chan struct{}

	mu      sync.Mutex
	cancel  context.CancelFunc
	loops   sync.WaitGroup
	workers sync.WaitGroup
}

// NewEngine creates a delivery engine.
func NewEngine(store EngineStore, cfg EngineConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = cfg.Concurrency
	}
	if cfg.LeaseDuration <= 0 {
		cfg.LeaseDuration = 5 * time.Minute
	}
	return &Engine{
		store:   store,
		sender:  NewSender(cfg.RequestTimeout, cfg.Signer),
		retrier: NewRetrier(cfg.BaseDelay, cfg.MaxDelay),
		config:  cfg,
		logger:  logger,
		sem:     make(chan struct{}, cfg.Concurrency),
	}
}

// Start launches the poll loop and, when a retention window is configured,
// the janitor. Calling Start on a running engine is a no-op.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.cancel != nil {
		return
	}
	ctx, e.cancel = context.WithCancel(ctx)

	e.loops.Add(1)
	go func() {
		defer e.loops.Done()
		e.pollLoop(ctx)
	}()

	if e.config.Retention > 0 && e.config.PruneInterval > 0 {
		e.loops.Add(1)
		go func() {
			defer e.loops.Done()
			e.janitorLoop(ctx)
		}()
	}
}

// Stop cancels the loops and waits for running attempts to finish, or for
// ctx to end, whichever comes first.
func (e *Engine) Stop(ctx context.Context) error {
	e.mu.Lock()
	cancel := e.cancel
	e.cancel = nil
	e.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		e.loops.Wait()
		e.workers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine) pollLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.dispatch(ctx)
		}
	}
}

// dispatch claims at most as many jobs as there are free worker slots so a
// claimed job never waits for a slot while its lease runs down.
func (e *Engine) dispatch(ctx context.Context) {
	free := cap(e.sem) - len(e.sem)
	if free <= 0 {
		return
	}

	batch, err := e.store.Dequeue(ctx, min(free, e.config.BatchSize), e.config.LeaseDuration)
	if err != nil {
		e.logger.ErrorContext(ctx, "dequeue failed", "error", err)
		return
	}

	for _, j := range batch {
		select {
		case <-ctx.Done():
			// The lease expires and another poll reclaims the job.
			return
		case e.sem <- struct{}{}:
		}

		e.workers.Add(1)
		go func(j *Job) {
			defer e.workers.Done()
			defer func() { <-e.sem }()
			e.process(context.WithoutCancel(ctx), j)
		}(j)
	}
}

// RunOnce claims one batch and processes it synchronously. It returns the
// number of jobs attempted.
func (e *Engine) RunOnce(ctx context.Context) (int, error) {
	batch, err := e.store.Dequeue(ctx, e.config.BatchSize, e.config.LeaseDuration)
	if err != nil {
		return 0, err
	}

	var wg sync.WaitGroup
	for _, j := range batch {
		e.sem <- struct{}{}
		wg.Add(1)
		go func(j *Job) {
			defer wg.Done()
			defer func() { <-e.sem }()
			e.process(ctx, j)
		}(j)
	}
	wg.Wait()

	return len(batch), nil
}

// process runs one attempt of j: log it as pending, send, record the
// outcome on the log entry and the subscription, then reschedule or finish
// the job.
func (e *Engine) process(ctx context.Context, j *Job) {
	e.config.Metrics.AttemptStarted()
	defer e.config.Metrics.AttemptFinished()

	ctx, span := e.config.Tracer.StartAttempt(ctx, j.ID.String(), j.DeliveryKey(), j.Attempt)

	entry := &deliverylog.Entry{
		Entity:         entity.New(),
		ID:             id.NewLogEntryID(),
		JobID:          j.ID,
		SubscriptionID: j.SubscriptionID,
		TenantID:       j.TenantID,
		EventType:      j.EventType,
		Payload:        j.Payload,
		Attempt:        j.Attempt,
		Status:         deliverylog.StatusPending,
	}
	if err := e.store.CreateEntry(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "create log entry failed",
			"job_id", j.ID.String(), "error", err)
		entry = nil
	}

	result := e.sender.Send(ctx, j)
	now := time.Now().UTC()

	if entry != nil {
		entry.StatusCode = result.StatusCode
		entry.ResponseBody = result.Response
		entry.Error = result.Error
		entry.LatencyMs = result.LatencyMs
		entry.CompletedAt = &now
		entry.Status = deliverylog.StatusFailed
		if result.OK() {
			entry.Status = deliverylog.StatusSuccess
		}
		if err := e.store.CompleteEntry(ctx, entry); err != nil {
			e.logger.ErrorContext(ctx, "complete log entry failed",
				"job_id", j.ID.String(), "entry_id", entry.ID.String(), "error", err)
		}
	}

	j.LastStatusCode = result.StatusCode
	j.LastError = result.Error
	j.LeaseExpiresAt = nil

	decision := e.retrier.Decide(result, j)

	if decision == Delivered {
		if err := e.store.RecordSuccess(ctx, j.SubscriptionID, now); err != nil {
			e.logger.ErrorContext(ctx, "record success failed",
				"subscription_id", j.SubscriptionID.String(), "error", err)
		}
	} else if err := e.store.RecordFailure(ctx, j.SubscriptionID, result.Error); err != nil {
		e.logger.ErrorContext(ctx, "record failure failed",
			"subscription_id", j.SubscriptionID.String(), "error", err)
	}

	outcome := observability.OutcomeExhausted

	switch decision {
	case Delivered:
		outcome = observability.OutcomeDelivered
		j.State = StateSucceeded
		j.CompletedAt = &now
		e.logger.DebugContext(ctx, "delivered",
			"job_id", j.ID.String(), "status", result.StatusCode, "latency_ms", result.LatencyMs)

	case Retry:
		outcome = observability.OutcomeRetry
		j.NextAttemptAt = e.retrier.NextAttemptAt(j.Attempt)
		j.Attempt++
		j.State = StateQueued
		e.logger.DebugContext(ctx, "retry scheduled",
			"job_id", j.ID.String(), "attempt", j.Attempt, "next_at", j.NextAttemptAt)

	case Exhausted:
		j.State = StateFailed
		j.CompletedAt = &now
		e.logger.WarnContext(ctx, "delivery failed permanently",
			"job_id", j.ID.String(), "attempts", j.Attempt, "error", result.Error)

	case Gone:
		outcome = observability.OutcomeGone
		j.State = StateFailed
		j.CompletedAt = &now
		eventType := j.EventType
		if _, err := e.store.Deactivate(ctx, j.TenantID, j.TargetURL, &eventType); err != nil {
			e.logger.ErrorContext(ctx, "deactivate subscription failed",
				"subscription_id", j.SubscriptionID.String(), "error", err)
		}
		e.logger.WarnContext(ctx, "receiver answered 410, subscription deactivated",
			"subscription_id", j.SubscriptionID.String(), "job_id", j.ID.String())
	}

	e.config.Metrics.RecordAttempt(outcome, float64(result.LatencyMs)/1000.0)
	e.config.Tracer.EndAttempt(span, result.StatusCode, result.LatencyMs, result.Error)

	j.Touch()
	if err := e.store.UpdateJob(ctx, j); err != nil {
		e.logger.ErrorContext(ctx, "update job failed",
			"job_id", j.ID.String(), "error", err)
	}
}

func (e *Engine) janitorLoop(ctx context.Context) {
	ticker := time.NewTicker(e.config.PruneInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.Prune(ctx)
		}
	}
}

// Prune deletes terminal jobs older than the retention window.
func (e *Engine) Prune(ctx context.Context) int64 {
	n, err := e.store.PruneJobs(ctx, time.Now().UTC().Add(-e.config.Retention))
	if err != nil {
		e.logger.ErrorContext(ctx, "prune jobs failed", "error", err)
		return 0
	}

	pending, err := e.store.CountPending(ctx)
	if err != nil {
		e.logger.WarnContext(ctx, "count pending jobs failed", "error", err)
	}
	e.config.Metrics.RecordPrune(n, pending)

	if n > 0 {
		e.logger.DebugContext(ctx, "pruned jobs", "count", n)
	}
	return n
}
