package delivery_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/delivery"
	"github.com/xraph/resthook/id"
	"github.com/xraph/resthook/internal/entity"
	"github.com/xraph/resthook/signature"
)

func newTestJob(url string) *delivery.Job {
	return &delivery.Job{
		Entity:         entity.New(),
		ID:             id.NewJobID(),
		EventID:        id.NewEventID(),
		SubscriptionID: id.NewSubscriptionID(),
		TenantID:       "tenant-1",
		EventType:      catalog.EventBookingCreated,
		TargetURL:      url,
		Payload:        json.RawMessage(`{"bookingId":"b-1"}`),
		Attempt:        2,
		MaxAttempts:    3,
		State:          delivery.StateInFlight,
	}
}

func TestSenderHappyPath(t *testing.T) {
	var receivedHeaders http.Header
	var receivedBody []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedHeaders = r.Header
		receivedBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer srv.Close()

	sender := delivery.NewSender(5*time.Second, nil)
	j := newTestJob(srv.URL)

	res := sender.Send(context.Background(), j)

	if res.StatusCode != 200 || !res.OK() {
		t.Fatalf("expected 200, got %d (%s)", res.StatusCode, res.Error)
	}
	if res.Error != "" {
		t.Fatalf("unexpected error %q", res.Error)
	}
	if res.Response != "ok" {
		t.Fatalf("response = %q", res.Response)
	}

	if got := receivedHeaders.Get("Content-Type"); got != "application/json" {
		t.Errorf("Content-Type = %q", got)
	}
	if got := receivedHeaders.Get("User-Agent"); got != delivery.UserAgent {
		t.Errorf("User-Agent = %q", got)
	}
	if got := receivedHeaders.Get(delivery.HeaderEvent); got != "booking.created" {
		t.Errorf("%s = %q", delivery.HeaderEvent, got)
	}
	if got := receivedHeaders.Get(delivery.HeaderDelivery); got != j.DeliveryKey() {
		t.Errorf("%s = %q, want %q", delivery.HeaderDelivery, got, j.DeliveryKey())
	}
	if got := receivedHeaders.Get(delivery.HeaderAttempt); got != "2" {
		t.Errorf("%s = %q", delivery.HeaderAttempt, got)
	}
	if receivedHeaders.Get(signature.HeaderSignature) != "" {
		t.Error("unsigned sender must not send a signature")
	}

	var env struct {
		Event     string          `json:"event"`
		Timestamp string          `json:"timestamp"`
		Data      json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(receivedBody, &env); err != nil {
		t.Fatal(err)
	}
	if env.Event != "booking.created" {
		t.Errorf("event = %q", env.Event)
	}
	if string(env.Data) != `{"bookingId":"b-1"}` {
		t.Errorf("data = %s", env.Data)
	}
	if _, err := time.Parse(time.RFC3339Nano, env.Timestamp); err != nil {
		t.Errorf("timestamp %q is not RFC 3339: %v", env.Timestamp, err)
	}
	if !strings.HasSuffix(env.Timestamp, "Z") {
		t.Errorf("timestamp %q is not UTC", env.Timestamp)
	}
}

func TestSenderSignsRequests(t *testing.T) {
	secret := signature.GenerateSecret()
	var sig, ts string
	var body []byte

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sig = r.Header.Get(signature.HeaderSignature)
		ts = r.Header.Get(signature.HeaderTimestamp)
		body, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := delivery.NewSender(5*time.Second, signature.NewSigner(secret))
	res := sender.Send(context.Background(), newTestJob(srv.URL))
	if !res.OK() {
		t.Fatalf("expected success, got %d", res.StatusCode)
	}

	unix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		t.Fatalf("bad timestamp header %q", ts)
	}
	if !signature.NewSigner(secret).Verify(body, unix, sig) {
		t.Fatal("signature did not verify against the received body")
	}
}

func TestSenderNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(strings.Repeat("x", 4096)))
	}))
	defer srv.Close()

	res := delivery.NewSender(5*time.Second, nil).Send(context.Background(), newTestJob(srv.URL))

	if res.OK() {
		t.Fatal("503 must not be OK")
	}
	if res.StatusCode != 503 {
		t.Fatalf("status = %d", res.StatusCode)
	}
	if res.Error != "HTTP 503" {
		t.Fatalf("error = %q", res.Error)
	}
	if len(res.Response) != 1024 {
		t.Fatalf("response should be truncated to 1024 bytes, got %d", len(res.Response))
	}
}

func TestSenderTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(500 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	res := delivery.NewSender(50*time.Millisecond, nil).Send(context.Background(), newTestJob(srv.URL))

	if res.StatusCode != 0 {
		t.Fatalf("expected no status code, got %d", res.StatusCode)
	}
	if res.Error == "" {
		t.Fatal("expected a transport error")
	}
}

func TestSenderConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	url := srv.URL
	srv.Close()

	res := delivery.NewSender(time.Second, nil).Send(context.Background(), newTestJob(url))
	if res.OK() || res.Error == "" {
		t.Fatalf("expected failure, got %+v", res)
	}
}
