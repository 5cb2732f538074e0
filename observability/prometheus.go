package observability

import (
	"sort"

	"github.com/prometheus/client_golang/prometheus"
	gu "github.com/xraph/go-utils/metrics"
)

// Collector exposes Metrics to a Prometheus registry.
type Collector struct {
	m *Metrics

	triggers     *prometheus.Desc
	enqueued     *prometheus.Desc
	enqueueFails *prometheus.Desc
	attempts     *prometheus.Desc
	latency      *prometheus.Desc
	inFlight     *prometheus.Desc
	pending      *prometheus.Desc
	pruned       *prometheus.Desc
	rateLimited  *prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector returns a prometheus.Collector reading from m.
func NewCollector(m *Metrics) *Collector {
	return &Collector{
		m:            m,
		triggers:     prometheus.NewDesc("resthook_triggers_total", "Trigger calls.", nil, nil),
		enqueued:     prometheus.NewDesc("resthook_jobs_enqueued_total", "Delivery jobs written to the queue.", nil, nil),
		enqueueFails: prometheus.NewDesc("resthook_enqueue_failures_total", "Delivery jobs that could not be written to the queue.", nil, nil),
		attempts:     prometheus.NewDesc("resthook_delivery_attempts_total", "Delivery attempts by outcome.", []string{"outcome"}, nil),
		latency:      prometheus.NewDesc("resthook_delivery_latency_seconds", "Latency of outbound webhook requests.", nil, nil),
		inFlight:     prometheus.NewDesc("resthook_deliveries_in_flight", "Delivery attempts currently running.", nil, nil),
		pending:      prometheus.NewDesc("resthook_pending_jobs", "Jobs queued or in flight at the last janitor pass.", nil, nil),
		pruned:       prometheus.NewDesc("resthook_pruned_jobs_total", "Terminal jobs removed after their retention window.", nil, nil),
		rateLimited:  prometheus.NewDesc("resthook_api_rate_limited_total", "Inbound API requests rejected by the per-tenant limiter.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.triggers, c.enqueued, c.enqueueFails, c.attempts, c.latency,
		c.inFlight, c.pending, c.pruned, c.rateLimited,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	m := c.m

	counter := func(d *prometheus.Desc, v gu.Counter, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v.Value(), labels...)
	}
	gauge := func(d *prometheus.Desc, v gu.Gauge) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v.Value())
	}

	counter(c.triggers, m.TriggersTotal)
	counter(c.enqueued, m.JobsEnqueuedTotal)
	counter(c.enqueueFails, m.EnqueueFailures)
	for _, o := range Outcomes {
		if v, ok := m.AttemptsTotal[o]; ok {
			counter(c.attempts, v, o)
		}
	}
	counter(c.pruned, m.PrunedJobsTotal)
	counter(c.rateLimited, m.RateLimitedRequests)
	gauge(c.inFlight, m.InFlight)
	gauge(c.pending, m.PendingJobs)

	ch <- prometheus.MustNewConstHistogram(c.latency,
		m.AttemptLatency.Count(), m.AttemptLatency.Sum(), cumulative(m.AttemptLatency.Buckets()))
}

// cumulative turns per-bucket counts into the running totals Prometheus
// expects.
func cumulative(buckets map[float64]uint64) map[float64]uint64 {
	bounds := make([]float64, 0, len(buckets))
	for b := range buckets {
		bounds = append(bounds, b)
	}
	sort.Float64s(bounds)

	out := make(map[float64]uint64, len(buckets))
	var total uint64
	for _, b := range bounds {
		total += buckets[b]
		out[b] = total
	}
	return out
}
