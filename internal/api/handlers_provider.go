package api

import "net/http"

func (r *Router) handleProviderHealth(w http.ResponseWriter, req *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"providers": r.orch.Health().Status(),
		"cache":     r.orch.Cache().Stats(),
	})
}
