// Package observability holds the metrics and OpenTelemetry spans of the
// trigger path and the delivery engine. Both are optional: every method is
// safe on a nil receiver. Metrics are built on a go-utils MetricFactory and
// can be exported to a Prometheus registry through Collector.
package observability

import (
	gu "github.com/xraph/go-utils/metrics"
)

// Attempt outcomes.
const (
	OutcomeDelivered = "delivered"
	OutcomeRetry     = "retry"
	OutcomeExhausted = "exhausted"
	OutcomeGone      = "gone"
)

// Outcomes lists every attempt outcome in a stable order.
var Outcomes = []string{OutcomeDelivered, OutcomeRetry, OutcomeExhausted, OutcomeGone}

// Metrics holds the resthook instruments, backed by any go-utils
// MetricFactory.
type Metrics struct {
	TriggersTotal       gu.Counter
	JobsEnqueuedTotal   gu.Counter
	EnqueueFailures     gu.Counter
	AttemptsTotal       map[string]gu.Counter
	AttemptLatency      gu.Histogram
	InFlight            gu.Gauge
	PendingJobs         gu.Gauge
	PrunedJobsTotal     gu.Counter
	RateLimitedRequests gu.Counter
}

// NewMetrics creates the instruments on factory. Use
// gu.NewMetricsCollector for standalone processes.
func NewMetrics(factory gu.MetricFactory) *Metrics {
	attempts := make(map[string]gu.Counter, len(Outcomes))
	for _, o := range Outcomes {
		attempts[o] = factory.Counter("resthook_delivery_attempts_"+o+"_total",
			gu.WithDescription("Delivery attempts with outcome "+o+"."),
			gu.WithLabel("outcome", o))
	}

	return &Metrics{
		TriggersTotal: factory.Counter("resthook_triggers_total",
			gu.WithDescription("Trigger calls.")),
		JobsEnqueuedTotal: factory.Counter("resthook_jobs_enqueued_total",
			gu.WithDescription("Delivery jobs written to the queue.")),
		EnqueueFailures: factory.Counter("resthook_enqueue_failures_total",
			gu.WithDescription("Delivery jobs that could not be written to the queue.")),
		AttemptsTotal: attempts,
		AttemptLatency: factory.Histogram("resthook_delivery_latency_seconds",
			gu.WithDescription("Latency of outbound webhook requests."),
			gu.WithUnit("seconds"),
			gu.WithExponentialBuckets(0.005, 2, 12)),
		InFlight: factory.Gauge("resthook_deliveries_in_flight",
			gu.WithDescription("Delivery attempts currently running.")),
		PendingJobs: factory.Gauge("resthook_pending_jobs",
			gu.WithDescription("Jobs queued or in flight at the last janitor pass.")),
		PrunedJobsTotal: factory.Counter("resthook_pruned_jobs_total",
			gu.WithDescription("Terminal jobs removed after their retention window.")),
		RateLimitedRequests: factory.Counter("resthook_api_rate_limited_total",
			gu.WithDescription("Inbound API requests rejected by the per-tenant limiter.")),
	}
}

// RecordTrigger counts one trigger call and the jobs it produced.
func (m *Metrics) RecordTrigger(queued, failed int) {
	if m == nil {
		return
	}
	m.TriggersTotal.Inc()
	m.JobsEnqueuedTotal.Add(float64(queued))
	m.EnqueueFailures.Add(float64(failed))
}

// RecordAttempt counts one delivery attempt.
func (m *Metrics) RecordAttempt(outcome string, latencySeconds float64) {
	if m == nil {
		return
	}
	if c, ok := m.AttemptsTotal[outcome]; ok {
		c.Inc()
	}
	m.AttemptLatency.Observe(latencySeconds)
}

// AttemptStarted and AttemptFinished bracket a running attempt.
func (m *Metrics) AttemptStarted() {
	if m != nil {
		m.InFlight.Inc()
	}
}

func (m *Metrics) AttemptFinished() {
	if m != nil {
		m.InFlight.Dec()
	}
}

// RecordPrune records a janitor pass.
func (m *Metrics) RecordPrune(pruned int64, pending int64) {
	if m == nil {
		return
	}
	m.PrunedJobsTotal.Add(float64(pruned))
	m.PendingJobs.Set(float64(pending))
}

// RecordRateLimited counts one throttled API request.
func (m *Metrics) RecordRateLimited() {
	if m != nil {
		m.RateLimitedRequests.Inc()
	}
}
