package api

import (
	"net/http"
	"strings"

	"github.com/kitsurai/torii/internal/provider"
)

// parseProviders turns a comma-separated providers parameter into names;
// empty means health-ranked defaults.
func parseProviders(req *http.Request) []provider.Name {
	raw := req.URL.Query().Get("providers")
	if raw == "" {
		return nil
	}
	var names []provider.Name
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			names = append(names, provider.Name(part))
		}
	}
	return names
}

func (r *Router) handleSearch(w http.ResponseWriter, req *http.Request) {
	query := strings.TrimSpace(req.URL.Query().Get("q"))
	if query == "" {
		writeError(w, http.StatusBadRequest, "missing query parameter q")
		return
	}
	limit := queryInt(req, "limit", 10)
	minQuality := queryFloat(req, "min_quality", r.quality.MinSearchScore)

	groups, err := r.orch.Search(req.Context(), query, limit, parseProviders(req))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	results := r.reconciler.Reconcile(query, groups, minQuality, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}

func (r *Router) handleTop(w http.ResponseWriter, req *http.Request) {
	page := queryInt(req, "page", 1)
	limit := queryInt(req, "limit", 25)

	groups, err := r.orch.GetTop(req.Context(), page, limit, parseProviders(req))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	results := r.reconciler.Reconcile("", groups, 0, limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"page":    page,
		"count":   len(results),
		"results": results,
	})
}

func (r *Router) handleSeasonal(w http.ResponseWriter, req *http.Request) {
	year := queryInt(req, "year", 0)
	if year == 0 {
		writeError(w, http.StatusBadRequest, "missing query parameter year")
		return
	}
	season := provider.Season(strings.ToLower(req.URL.Query().Get("season")))
	switch season {
	case provider.SeasonWinter, provider.SeasonSpring, provider.SeasonSummer, provider.SeasonFall:
	default:
		writeError(w, http.StatusBadRequest, "season must be winter, spring, summer, or fall")
		return
	}
	page := queryInt(req, "page", 1)

	groups, err := r.orch.GetSeasonal(req.Context(), year, season, page, parseProviders(req))
	if err != nil {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	results := r.reconciler.Reconcile("", groups, 0, 0)
	writeJSON(w, http.StatusOK, map[string]any{
		"year":    year,
		"season":  string(season),
		"count":   len(results),
		"results": results,
	})
}
