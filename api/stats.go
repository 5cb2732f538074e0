package api

import (
	"net/http"

	"github.com/xraph/resthook/scope"
)

func (h *Handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.logs.Stats(r.Context(), scope.TenantID(r.Context()))
	if err != nil {
		h.writeServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, stats)
}
