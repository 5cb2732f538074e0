// Package api provides the tenant-facing REST-Hook HTTP API.
//
// Automation platforms call it with an API key in the X-API-Key header to
// discover the trigger catalogue and to subscribe or unsubscribe webhook
// URLs. Every route is scoped to the tenant that owns the key.
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/apikey"
	"github.com/xraph/resthook/deliverylog"
	"github.com/xraph/resthook/observability"
	"github.com/xraph/resthook/ratelimit"
	"github.com/xraph/resthook/subscription"
)

// HeaderAPIKey carries the tenant's API key on every request.
const HeaderAPIKey = "X-API-Key"

// Handler is the root HTTP handler for the REST-Hook API.
type Handler struct {
	keys    *apikey.Service
	subs    *subscription.Service
	logs    *deliverylog.Service
	limiter *ratelimit.Limiter
	metrics *observability.Metrics
	logger  *slog.Logger
	mux     *http.ServeMux
}

// NewHandler creates the API handler for r. A nil limiter disables
// throttling.
func NewHandler(r *resthook.Relay, limiter *ratelimit.Limiter, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handler{
		keys:    r.Keys(),
		subs:    r.Subscriptions(),
		logs:    r.DeliveryLog(),
		limiter: limiter,
		metrics: r.Metrics(),
		logger:  logger,
		mux:     http.NewServeMux(),
	}

	h.registerRoutes()
	return h
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /triggers", h.listTriggers)

	h.mux.HandleFunc("POST /subscribe", h.subscribe)
	h.mux.HandleFunc("DELETE /subscribe", h.unsubscribe)
	h.mux.HandleFunc("GET /subscriptions", h.listSubscriptions)

	h.mux.HandleFunc("GET /test", h.testAuth)
	h.mux.HandleFunc("GET /stats", h.getStats)
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.withMiddleware(h.mux).ServeHTTP(w, r)
}

func (h *Handler) withMiddleware(next http.Handler) http.Handler {
	return h.panicRecovery(h.logging(h.authenticate(h.rateLimit(next))))
}

// JSON helpers.

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best effort
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}
