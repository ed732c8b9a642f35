package api

import (
	"errors"
	"net/http"

	"github.com/kitsurai/torii/internal/anime"
)

func (r *Router) handleRelations(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	tier := req.URL.Query().Get("tier")
	if tier == "" {
		tier = "basic"
	}

	var (
		payload any
		err     error
	)
	switch tier {
	case "basic":
		payload, err = r.relations.Basic(req.Context(), id)
	case "detailed":
		payload, err = r.relations.Detailed(req.Context(), id)
	case "franchise":
		payload, err = r.relations.Franchise(req.Context(), id)
	default:
		writeError(w, http.StatusBadRequest, "tier must be basic, detailed, or franchise")
		return
	}
	if err != nil {
		if errors.Is(err, anime.ErrNotFound) {
			writeError(w, http.StatusNotFound, "anime not found")
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"anime_id":  id,
		"tier":      tier,
		"relations": payload,
	})
}
