package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/api"
	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/ratelimit"
	"github.com/xraph/resthook/store/memory"
)

type testEnv struct {
	srv    *httptest.Server
	relay  *resthook.Relay
	secret string
}

// newTestEnv creates a Handler backed by a memory store and issues a key
// for tenant "org_1".
func newTestEnv(t *testing.T, limiter *ratelimit.Limiter) *testEnv {
	t.Helper()

	r, err := resthook.New(
		resthook.WithStore(memory.New()),
		resthook.WithKeyEnvironment("dev"),
	)
	if err != nil {
		t.Fatalf("resthook.New: %v", err)
	}

	secret, _, err := r.Keys().Issue(context.Background(), "org_1", apikey.IssueInput{Label: "zapier"})
	if err != nil {
		t.Fatalf("issue key: %v", err)
	}

	srv := httptest.NewServer(api.NewHandler(r, limiter, nil))
	t.Cleanup(srv.Close)

	return &testEnv{srv: srv, relay: r, secret: secret}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	return doJSON(t, method, e.srv.URL+path, e.secret, body)
}

func doJSON(t *testing.T, method, url, key string, body any) *http.Response {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		r = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(context.Background(), method, url, r)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set(api.HeaderAPIKey, key)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("do: %v", err)
	}
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func expectStatus(t *testing.T, resp *http.Response, want int) {
	t.Helper()
	if resp.StatusCode != want {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		t.Fatalf("expected %d, got %d: %s", want, resp.StatusCode, body)
	}
}

// --- Auth ---

func TestAuth_Rejected(t *testing.T) {
	env := newTestEnv(t, nil)

	revokedSecret, k, err := env.relay.Keys().Issue(context.Background(), "org_1", apikey.IssueInput{})
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := env.relay.Keys().Revoke(context.Background(), k.ID, "org_1"); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	tests := []struct {
		name string
		key  string
	}{
		{"missing", ""},
		{"unknown", "zap_dev_" + "00000000000000000000000000000000000000000000000000000000000000ff"},
		{"revoked", revokedSecret},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := doJSON(t, "GET", env.srv.URL+"/test", tt.key, nil)
			expectStatus(t, resp, http.StatusUnauthorized)

			var body map[string]string
			decodeBody(t, resp, &body)
			if body["error"] != "Invalid or missing API key" {
				t.Errorf("error = %q", body["error"])
			}
		})
	}
}

func TestAuth_Test(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, "GET", "/test", nil)
	expectStatus(t, resp, http.StatusOK)

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["tenant_id"] != "org_1" {
		t.Errorf("tenant_id = %v", body["tenant_id"])
	}
	if body["authenticated"] != true {
		t.Errorf("authenticated = %v", body["authenticated"])
	}
	if body["key_prefix"] != env.secret[:16] {
		t.Errorf("key_prefix = %v, want %q", body["key_prefix"], env.secret[:16])
	}
}

// --- Triggers ---

func TestTriggers_List(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, "GET", "/triggers", nil)
	expectStatus(t, resp, http.StatusOK)

	var body struct {
		Triggers []struct {
			Key         string          `json:"key"`
			Name        string          `json:"name"`
			Description string          `json:"description"`
			Sample      json.RawMessage `json:"sample"`
		} `json:"triggers"`
		Count int `json:"count"`
	}
	decodeBody(t, resp, &body)

	if body.Count != len(catalog.All()) || len(body.Triggers) != body.Count {
		t.Fatalf("count = %d, triggers = %d, want %d", body.Count, len(body.Triggers), len(catalog.All()))
	}
	if body.Triggers[0].Key != string(catalog.EventBookingCreated) {
		t.Errorf("first trigger = %q", body.Triggers[0].Key)
	}
	for _, tr := range body.Triggers {
		if tr.Name == "" || len(tr.Sample) == 0 {
			t.Errorf("trigger %q missing name or sample", tr.Key)
		}
	}
}

// --- Subscribe ---

func TestSubscribe_Lifecycle(t *testing.T) {
	env := newTestEnv(t, nil)

	sub := map[string]string{
		"event_type": "booking.created",
		"target_url": "https://hooks.example.com/a",
	}

	resp := env.do(t, "POST", "/subscribe", sub)
	expectStatus(t, resp, http.StatusOK)
	var first map[string]any
	decodeBody(t, resp, &first)
	if first["id"] == "" || first["event_type"] != "booking.created" || first["target_url"] != sub["target_url"] {
		t.Fatalf("unexpected subscribe body %v", first)
	}
	if _, ok := first["created_at"]; !ok {
		t.Error("expected created_at")
	}

	// Same triple returns the same subscription.
	resp = env.do(t, "POST", "/subscribe", sub)
	expectStatus(t, resp, http.StatusOK)
	var second map[string]any
	decodeBody(t, resp, &second)
	if second["id"] != first["id"] {
		t.Errorf("resubscribe id = %v, want %v", second["id"], first["id"])
	}

	resp = env.do(t, "GET", "/subscriptions", nil)
	expectStatus(t, resp, http.StatusOK)
	var list struct {
		Subscriptions []map[string]any `json:"subscriptions"`
		Count         int              `json:"count"`
	}
	decodeBody(t, resp, &list)
	if list.Count != 1 {
		t.Fatalf("subscriptions count = %d, want 1", list.Count)
	}

	resp = env.do(t, "DELETE", "/subscribe", map[string]string{"target_url": sub["target_url"]})
	expectStatus(t, resp, http.StatusOK)
	var ok map[string]bool
	decodeBody(t, resp, &ok)
	if !ok["success"] {
		t.Errorf("expected success, got %v", ok)
	}

	resp = env.do(t, "DELETE", "/subscribe", map[string]string{"target_url": sub["target_url"]})
	expectStatus(t, resp, http.StatusNotFound)
	var nf map[string]string
	decodeBody(t, resp, &nf)
	if nf["error"] != "Subscription not found" {
		t.Errorf("error = %q", nf["error"])
	}
}

func TestSubscribe_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	tests := []struct {
		name string
		body any
	}{
		{"missing event type", map[string]string{"target_url": "https://hooks.example.com/a"}},
		{"missing target url", map[string]string{"event_type": "booking.created"}},
		{"unknown event type", map[string]string{"event_type": "invoice.paid", "target_url": "https://hooks.example.com/a"}},
		{"relative url", map[string]string{"event_type": "booking.created", "target_url": "/hooks"}},
		{"malformed json", "not an object"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := env.do(t, "POST", "/subscribe", tt.body)
			expectStatus(t, resp, http.StatusBadRequest)

			var body map[string]string
			decodeBody(t, resp, &body)
			if body["error"] == "" {
				t.Error("expected error message")
			}
		})
	}

	subs, err := env.relay.Subscriptions().ListActive(context.Background(), "org_1", nil)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(subs) != 0 {
		t.Errorf("expected nothing persisted, got %d", len(subs))
	}
}

func TestUnsubscribe_Validation(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, "DELETE", "/subscribe", map[string]string{})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()

	resp = env.do(t, "DELETE", "/subscribe", map[string]string{
		"target_url": "https://hooks.example.com/a",
		"event_type": "invoice.paid",
	})
	expectStatus(t, resp, http.StatusBadRequest)
	resp.Body.Close()
}

func TestSubscriptions_TenantScoped(t *testing.T) {
	env := newTestEnv(t, nil)

	_, err := env.relay.Subscriptions().Subscribe(context.Background(), "org_2",
		catalog.EventPaymentReceived, "https://hooks.example.com/other")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	resp := env.do(t, "GET", "/subscriptions", nil)
	expectStatus(t, resp, http.StatusOK)
	var list struct {
		Count int `json:"count"`
	}
	decodeBody(t, resp, &list)
	if list.Count != 0 {
		t.Errorf("count = %d, want 0", list.Count)
	}

	// Another tenant's URL is not ours to remove.
	resp = env.do(t, "DELETE", "/subscribe", map[string]string{"target_url": "https://hooks.example.com/other"})
	expectStatus(t, resp, http.StatusNotFound)
	resp.Body.Close()
}

// --- Stats ---

func TestStats_Empty(t *testing.T) {
	env := newTestEnv(t, nil)

	resp := env.do(t, "GET", "/stats", nil)
	expectStatus(t, resp, http.StatusOK)

	var body map[string]any
	decodeBody(t, resp, &body)
	if body["total_subscriptions"] != float64(0) || body["total_deliveries"] != float64(0) {
		t.Errorf("unexpected stats %v", body)
	}
	recent, ok := body["recent_deliveries"].([]any)
	if !ok || len(recent) != 0 {
		t.Errorf("recent_deliveries = %v, want []", body["recent_deliveries"])
	}
}

// --- Rate limiting ---

func TestRateLimit(t *testing.T) {
	env := newTestEnv(t, ratelimit.New(2))

	for range 2 {
		resp := env.do(t, "GET", "/test", nil)
		expectStatus(t, resp, http.StatusOK)
		resp.Body.Close()
	}

	resp := env.do(t, "GET", "/test", nil)
	expectStatus(t, resp, http.StatusTooManyRequests)
	resp.Body.Close()
}
