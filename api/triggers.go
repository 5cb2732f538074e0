package api

import (
	"net/http"

	"github.com/xraph/resthook/catalog"
	"github.com/xraph/resthook/scope"
)

type triggersResponse struct {
	Triggers []catalog.Definition `json:"triggers"`
	Count    int                  `json:"count"`
}

func (h *Handler) listTriggers(w http.ResponseWriter, _ *http.Request) {
	defs := catalog.Definitions()
	writeJSON(w, http.StatusOK, triggersResponse{
		Triggers: defs,
		Count:    len(defs),
	})
}

type testResponse struct {
	TenantID      string `json:"tenant_id"`
	Authenticated bool   `json:"authenticated"`
	KeyPrefix     string `json:"key_prefix"`
}

func (h *Handler) testAuth(w http.ResponseWriter, r *http.Request) {
	c, _ := scope.FromContext(r.Context())
	writeJSON(w, http.StatusOK, testResponse{
		TenantID:      c.TenantID,
		Authenticated: true,
		KeyPrefix:     c.KeyPrefix,
	})
}
