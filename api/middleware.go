package api

import (
	"errors"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/xraph/resthook"
	"github.com/xraph/resthook/scope"
)

const msgUnauthenticated = "Invalid or missing API key"

func (h *Handler) logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rw, r)
		h.logger.Info("api request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.status,
			"tenant_id", rw.tenantID,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

func (h *Handler) panicRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				h.logger.Error("panic recovered",
					"error", rec,
					"stack", string(debug.Stack()),
				)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// authenticate resolves the X-API-Key header to a tenant and stores the
// caller on the request context. Every rejection gets the same message.
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secret := r.Header.Get(HeaderAPIKey)
		if secret == "" {
			writeError(w, http.StatusUnauthorized, msgUnauthenticated)
			return
		}

		k, err := h.keys.Authenticate(r.Context(), secret)
		if err != nil {
			if !errors.Is(err, resthook.ErrUnauthenticated) {
				h.logger.ErrorContext(r.Context(), "api: key lookup failed", "error", err)
			}
			writeError(w, http.StatusUnauthorized, msgUnauthenticated)
			return
		}

		if rw, ok := w.(*responseWriter); ok {
			rw.tenantID = k.TenantID
		}

		ctx := scope.WithCaller(r.Context(), scope.Caller{
			TenantID:  k.TenantID,
			KeyID:     k.ID.String(),
			KeyPrefix: k.Prefix,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (h *Handler) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !h.limiter.Allow(scope.TenantID(r.Context())) {
			h.metrics.RecordRateLimited()
			w.Header().Set("Retry-After", "60")
			writeError(w, http.StatusTooManyRequests, "Rate limit exceeded")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture the status code and
// the authenticated tenant for the request log.
type responseWriter struct {
	http.ResponseWriter
	status   int
	tenantID string
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}
