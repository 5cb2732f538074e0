package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/scope"
	"github.com/xraph/resthook/subscription"
)

type subscribeRequest struct {
	EventType string `json:"event_type"`
	TargetURL string `json:"target_url"`
}

type subscribeResponse struct {
	ID        string    `json:"id"`
	EventType string    `json:"event_type"`
	TargetURL string    `json:"target_url"`
	CreatedAt time.Time `json:"created_at"`
}

func (h *Handler) subscribe(w http.ResponseWriter, r *http.Request) {
	var req subscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	switch {
	case req.EventType == "":
		writeError(w, http.StatusBadRequest, "event_type is required")
		return
	case req.TargetURL == "":
		writeError(w, http.StatusBadRequest, "target_url is required")
		return
	}

	sub, err := h.subs.Subscribe(r.Context(), scope.TenantID(r.Context()),
		catalog.EventType(req.EventType), req.TargetURL)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subscribeResponse{
		ID:        sub.ID.String(),
		EventType: string(sub.EventType),
		TargetURL: sub.TargetURL,
		CreatedAt: sub.CreatedAt,
	})
}

type unsubscribeRequest struct {
	TargetURL string `json:"target_url"`
	EventType string `json:"event_type,omitempty"`
}

func (h *Handler) unsubscribe(w http.ResponseWriter, r *http.Request) {
	var req unsubscribeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	if req.TargetURL == "" {
		writeError(w, http.StatusBadRequest, "target_url is required")
		return
	}

	var eventType *catalog.EventType
	if req.EventType != "" {
		et := catalog.EventType(req.EventType)
		eventType = &et
	}

	found, err := h.subs.Unsubscribe(r.Context(), scope.TenantID(r.Context()), req.TargetURL, eventType)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "Subscription not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]bool{"success": true})
}

type subscriptionsResponse struct {
	Subscriptions []*subscription.Subscription `json:"subscriptions"`
	Count         int                          `json:"count"`
}

func (h *Handler) listSubscriptions(w http.ResponseWriter, r *http.Request) {
	var eventType *catalog.EventType
	if raw := r.URL.Query().Get("event_type"); raw != "" {
		et, err := catalog.Parse(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		eventType = &et
	}

	subs, err := h.subs.ListActive(r.Context(), scope.TenantID(r.Context()), eventType)
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, subscriptionsResponse{
		Subscriptions: subs,
		Count:         len(subs),
	})
}

// writeServiceError maps validation failures to 400 and everything else to
// 500 with the underlying message.
func (h *Handler) writeServiceError(w http.ResponseWriter, err error) {
	var verr *subscription.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Field+": "+verr.Message)
		return
	}

	h.logger.Error("api: request failed", "error", err)
	writeError(w, http.StatusInternalServerError, err.Error())
}
