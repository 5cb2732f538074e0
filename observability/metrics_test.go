package observability

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	gu "github.com/xraph/go-utils/metrics"
)

func newMetrics() *Metrics {
	return NewMetrics(gu.NewMetricsCollector("resthook-test"))
}

func gather(t *testing.T, m *Metrics) map[string]map[string]float64 {
	t.Helper()

	reg := prometheus.NewRegistry()
	reg.MustRegister(NewCollector(m))

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}

	out := make(map[string]map[string]float64)
	for _, f := range families {
		series := make(map[string]float64)
		for _, pm := range f.GetMetric() {
			key := ""
			for _, lp := range pm.GetLabel() {
				key = lp.GetValue()
			}
			switch {
			case pm.GetCounter() != nil:
				series[key] = pm.GetCounter().GetValue()
			case pm.GetGauge() != nil:
				series[key] = pm.GetGauge().GetValue()
			case pm.GetHistogram() != nil:
				series[key] = float64(pm.GetHistogram().GetSampleCount())
			}
		}
		out[f.GetName()] = series
	}
	return out
}

func TestRecordTrigger(t *testing.T) {
	m := newMetrics()

	m.RecordTrigger(3, 1)
	m.RecordTrigger(2, 0)

	if v := m.TriggersTotal.Value(); v != 2 {
		t.Fatalf("triggers = %v", v)
	}
	if v := m.JobsEnqueuedTotal.Value(); v != 5 {
		t.Fatalf("jobs enqueued = %v", v)
	}
	if v := m.EnqueueFailures.Value(); v != 1 {
		t.Fatalf("enqueue failures = %v", v)
	}
}

func TestRecordAttempt(t *testing.T) {
	m := newMetrics()

	m.RecordAttempt(OutcomeDelivered, 0.5)
	m.RecordAttempt(OutcomeRetry, 1.2)
	m.RecordAttempt(OutcomeRetry, 0.3)
	m.RecordAttempt(OutcomeGone, 0.1)
	m.RecordAttempt("unknown", 0.1)

	if v := m.AttemptsTotal[OutcomeRetry].Value(); v != 2 {
		t.Fatalf("retry attempts = %v", v)
	}
	if v := m.AttemptsTotal[OutcomeGone].Value(); v != 1 {
		t.Fatalf("gone attempts = %v", v)
	}
	if v := m.AttemptsTotal[OutcomeExhausted].Value(); v != 0 {
		t.Fatalf("exhausted attempts = %v", v)
	}
	if n := m.AttemptLatency.Count(); n != 5 {
		t.Fatalf("latency sample count = %d", n)
	}
}

func TestCollectorExportsToPrometheus(t *testing.T) {
	m := newMetrics()

	m.RecordTrigger(1, 0)
	m.RecordAttempt(OutcomeDelivered, 0.01)
	m.RecordAttempt(OutcomeGone, 0.02)
	m.AttemptStarted()
	m.AttemptStarted()
	m.AttemptFinished()
	m.RecordPrune(4, 7)
	m.RecordRateLimited()

	got := gather(t, m)

	attempts := got["resthook_delivery_attempts_total"]
	if len(attempts) != len(Outcomes) {
		t.Fatalf("expected one series per outcome, got %v", attempts)
	}
	if attempts[OutcomeDelivered] != 1 || attempts[OutcomeGone] != 1 || attempts[OutcomeRetry] != 0 {
		t.Fatalf("attempts = %v", attempts)
	}
	if v := got["resthook_delivery_latency_seconds"][""]; v != 2 {
		t.Fatalf("latency sample count = %v", v)
	}
	if v := got["resthook_deliveries_in_flight"][""]; v != 1 {
		t.Fatalf("in_flight = %v", v)
	}
	if v := got["resthook_pending_jobs"][""]; v != 7 {
		t.Fatalf("pending_jobs = %v", v)
	}
	if v := got["resthook_pruned_jobs_total"][""]; v != 4 {
		t.Fatalf("pruned_jobs_total = %v", v)
	}
	if v := got["resthook_api_rate_limited_total"][""]; v != 1 {
		t.Fatalf("rate_limited = %v", v)
	}
	if v := got["resthook_triggers_total"][""]; v != 1 {
		t.Fatalf("triggers = %v", v)
	}
}

func TestCumulativeBuckets(t *testing.T) {
	got := cumulative(map[float64]uint64{0.1: 2, 0.5: 0, 1: 3})
	want := map[float64]uint64{0.1: 2, 0.5: 2, 1: 5}
	for b, n := range want {
		if got[b] != n {
			t.Errorf("bucket %v = %d, want %d", b, got[b], n)
		}
	}
}

func TestNilReceiversAreNoops(t *testing.T) {
	var m *Metrics
	m.RecordTrigger(1, 0)
	m.RecordAttempt(OutcomeDelivered, 0.1)
	m.AttemptStarted()
	m.AttemptFinished()
	m.RecordPrune(1, 1)
	m.RecordRateLimited()

	var tr *Tracer
	ctx, span := tr.StartAttempt(context.Background(), "job_1", "sub_1.evt_1", 1)
	tr.EndAttempt(span, 200, 12, "")
	_, span = tr.StartTrigger(ctx, "tenant-1", "booking.created")
	tr.EndTrigger(span, 1, 1, errors.New("boom"))
}
