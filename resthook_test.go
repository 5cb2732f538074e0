package resthook_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/store/memory"
)

func ctx() context.Context { return context.Background() }

func setup(t *testing.T, opts ...resthook.Option) (*resthook.Relay, *memory.Store) {
	t.Helper()
	s := memory.New()
	opts = append([]resthook.Option{
		resthook.WithStore(s),
		resthook.WithPollInterval(20 * time.Millisecond),
		resthook.WithRetry(3, 10*time.Millisecond),
		resthook.WithKeyEnvironment("dev"),
	}, opts...)

	r, err := resthook.New(opts...)
	if err != nil {
		t.Fatal(err)
	}
	return r, s
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.After(timeout)
	for !cond() {
		select {
		case <-deadline:
			t.Fatal("timeout waiting for condition")
		default:
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestNewRequiresStore(t *testing.T) {
	if _, err := resthook.New(); !errors.Is(err, resthook.ErrNoStore) {
		t.Fatalf("expected ErrNoStore, got %v", err)
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	if _, err := resthook.New(resthook.WithStore(memory.New()), resthook.WithConcurrency(0)); err == nil {
		t.Fatal("expected config error")
	}
	if _, err := resthook.New(resthook.WithStore(memory.New()), resthook.WithKeyEnvironment("NOT OK")); err == nil {
		t.Fatal("expected key environment error")
	}
}

func TestTriggerWithoutSubscriptions(t *testing.T) {
	r, s := setup(t)

	res, err := r.Trigger(ctx(), "t1", catalog.EventBookingCreated, map[string]any{"bookingId": "bk_1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Queued != 0 || res.SubscriptionCount != 0 {
		t.Fatalf("unexpected result %+v", res)
	}
	if !res.EventID.IsNil() {
		t.Fatal("no event id should be assigned when nothing is queued")
	}

	pending, _ := s.CountPending(ctx())
	if pending != 0 {
		t.Fatalf("expected no jobs, got %d", pending)
	}
}

func TestTriggerRejectsBadInput(t *testing.T) {
	r, s := setup(t)
	_, _ = r.Subscriptions().Subscribe(ctx(), "t1", catalog.EventBookingCreated, "https://a.example/hook")

	_, err := r.Trigger(ctx(), "t1", "invoice.created", map[string]any{})
	if !errors.Is(err, resthook.ErrUnknownEventType) {
		t.Fatalf("expected ErrUnknownEventType, got %v", err)
	}

	_, err = r.Trigger(ctx(), "t1", catalog.EventBookingCreated, make(chan int))
	if !errors.Is(err, resthook.ErrInvalidPayload) {
		t.Fatalf("expected ErrInvalidPayload, got %v", err)
	}

	_, err = r.Trigger(ctx(), "t1", catalog.EventBookingCreated, map[string]any{"customerId": "c1"})
	if !errors.Is(err, resthook.ErrPayloadValidationFailed) {
		t.Fatalf("expected ErrPayloadValidationFailed, got %v", err)
	}

	pending, _ := s.CountPending(ctx())
	if pending != 0 {
		t.Fatalf("rejected triggers must not queue, got %d", pending)
	}
}

func TestTriggerFansOutPerSubscription(t *testing.T) {
	r, s := setup(t)

	_, _ = r.Subscriptions().Subscribe(ctx(), "t1", catalog.EventPaymentReceived, "https://a.example/hook")
	_, _ = r.Subscriptions().Subscribe(ctx(), "t1", catalog.EventPaymentReceived, "https://b.example/hook")
	_, _ = r.Subscriptions().Subscribe(ctx(), "t1", catalog.EventBookingCreated, "https://c.example/hook")
	_, _ = r.Subscriptions().Subscribe(ctx(), "t2", catalog.EventPaymentReceived, "https://d.example/hook")

	res, err := r.TriggerPayload(ctx(), "t1", catalog.PaymentReceived{PaymentID: "pay_1", BookingID: "bk_1", Amount: "100.00", Currency: "EUR"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Queued != 2 || res.SubscriptionCount != 2 {
		t.Fatalf("unexpected result %+v", res)
	}

	jobs, _ := s.ListJobsByEvent(ctx(), res.EventID)
	if len(jobs) != 2 {
		t.Fatalf("expected 2 jobs, got %d", len(jobs))
	}
	for _, j := range jobs {
		if j.TenantID != "t1" || j.Attempt != 1 || j.MaxAttempts != 3 || j.State != delivery.StateQueued {
			t.Fatalf("unexpected job %+v", j)
		}
		var data map[string]any
		if err := json.Unmarshal(j.Payload, &data); err != nil || data["paymentId"] != "pay_1" {
			t.Fatalf("unexpected payload %s", j.Payload)
		}
	}
}

// flakyStore fails to enqueue jobs for one target URL.
type flakyStore struct {
	*memory.Store
	failURL string
}

func (f *flakyStore) Enqueue(ctx context.Context, j *delivery.Job) error {
	if j.TargetURL == f.failURL {
		return errors.New("queue unavailable")
	}
	return f.Store.Enqueue(ctx, j)
}

func TestTriggerReportsPartialEnqueue(t *testing.T) {
	fs := &flakyStore{Store: memory.New(), failURL: "https://b.example/hook"}
	r, err := resthook.New(resthook.WithStore(fs))
	if err != nil {
		t.Fatal(err)
	}

	_, _ = r.Subscriptions().Subscribe(ctx(), "t1", catalog.EventTripCreated, "https://a.example/hook")
	_, _ = r.Subscriptions().Subscribe(ctx(), "t1", catalog.EventTripCreated, "https://b.example/hook")

	res, err := r.Trigger(ctx(), "t1", catalog.EventTripCreated, map[string]any{"tripId": "trip_1"})
	if err != nil {
		t.Fatalf("enqueue failures must not fail the trigger: %v", err)
	}
	if res.SubscriptionCount != 2 || res.Queued != 1 {
		t.Fatalf("unexpected result %+v", res)
	}
}

func TestBookingScenario(t *testing.T) {
	var (
		mu       sync.Mutex
		received []byte
		headers  http.Header
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		body, _ := io.ReadAll(req.Body)
		mu.Lock()
		received, headers = body, req.Header
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	r, s := setup(t)

	secret, _, err := r.Keys().Issue(ctx(), "tenant-1", apikey.IssueInput{Label: "zapier"})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(secret, "zap_dev_") {
		t.Fatalf("unexpected secret %q", secret)
	}
	tenantID, err := r.Keys().Validate(ctx(), secret)
	if err != nil || tenantID != "tenant-1" {
		t.Fatalf("validate: %q %v", tenantID, err)
	}

	if _, err := r.Subscriptions().Subscribe(ctx(), tenantID, catalog.EventBookingCreated, srv.URL+"/abc"); err != nil {
		t.Fatal(err)
	}

	res, err := r.Trigger(ctx(), tenantID, catalog.EventBookingCreated, map[string]any{"bookingId": "bk_1"})
	if err != nil {
		t.Fatal(err)
	}
	if res.Queued != 1 {
		t.Fatalf("expected 1 queued, got %d", res.Queued)
	}

	r.Start(ctx())
	defer func() { _ = r.Stop(ctx()) }()

	waitFor(t, 2*time.Second, func() bool {
		pending, _ := s.CountPending(ctx())
		return pending == 0
	})

	mu.Lock()
	var env struct {
		Event     string         `json:"event"`
		Timestamp string         `json:"timestamp"`
		Data      map[string]any `json:"data"`
	}
	if err := json.Unmarshal(received, &env); err != nil {
		mu.Unlock()
		t.Fatal(err)
	}
	eventHeader := headers.Get(delivery.HeaderEvent)
	mu.Unlock()

	if env.Event != "booking.created" || env.Data["bookingId"] != "bk_1" || env.Timestamp == "" {
		t.Fatalf("unexpected envelope %+v", env)
	}
	if eventHeader != "booking.created" {
		t.Fatalf("event header = %q", eventHeader)
	}

	stats, err := r.DeliveryLog().Stats(ctx(), tenantID)
	if err != nil {
		t.Fatal(err)
	}
	if stats.TotalDeliveries != 1 || stats.SuccessfulDeliveries != 1 || stats.FailedDeliveries != 0 {
		t.Fatalf("unexpected stats %+v", stats)
	}
	if len(stats.RecentDeliveries) != 1 {
		t.Fatalf("expected 1 recent delivery, got %d", len(stats.RecentDeliveries))
	}
	if e := stats.RecentDeliveries[0]; e.Status != deliverylog.StatusSuccess || e.StatusCode != 200 {
		t.Fatalf("unexpected entry %+v", e)
	}
}

func TestUnavailableReceiverScenario(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	r, s := setup(t)

	sub, err := r.Subscriptions().Subscribe(ctx(), "tenant-1", catalog.EventBookingCreated, srv.URL)
	if err != nil {
		t.Fatal(err)
	}

	res, err := r.Trigger(ctx(), "tenant-1", catalog.EventBookingCreated, map[string]any{"bookingId": "bk_1"})
	if err != nil {
		t.Fatal(err)
	}

	r.Start(ctx())
	defer func() { _ = r.Stop(ctx()) }()

	waitFor(t, 5*time.Second, func() bool {
		pending, _ := s.CountPending(ctx())
		return pending == 0
	})

	got, err := r.Subscriptions().Get(ctx(), sub.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.FailureCount != 3 {
		t.Fatalf("failure count = %d, want 3", got.FailureCount)
	}
	if !strings.Contains(got.LastError, "HTTP 503") {
		t.Fatalf("last error = %q", got.LastError)
	}

	jobs, _ := s.ListJobsByEvent(ctx(), res.EventID)
	if len(jobs) != 1 || jobs[0].State != delivery.StateFailed {
		t.Fatalf("unexpected jobs %+v", jobs)
	}

	entries, _ := r.DeliveryLog().Attempts(ctx(), jobs[0].ID)
	if len(entries) != 3 {
		t.Fatalf("expected 3 log rows, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Attempt != i+1 || e.Status != deliverylog.StatusFailed || e.StatusCode != 503 {
			t.Fatalf("row %d: %+v", i, e)
		}
	}
}
