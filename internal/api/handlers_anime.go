package api

import (
	"errors"
	"net/http"

	"github.com/kitsurai/torii/internal/anime"
)

func (r *Router) handleListAnime(w http.ResponseWriter, req *http.Request) {
	query := req.URL.Query().Get("q")
	limit := queryInt(req, "limit", 50)
	offset := queryInt(req, "offset", 0)

	var (
		records []anime.Record
		err     error
	)
	if query != "" {
		records, err = r.repo.Search(req.Context(), query, limit)
	} else {
		records, err = r.repo.GetAll(req.Context(), offset, limit)
	}
	if err != nil {
		r.logger.Error("listing anime", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"count":   len(records),
		"results": records,
	})
}

func (r *Router) handleGetAnime(w http.ResponseWriter, req *http.Request) {
	rec, err := r.repo.FindByID(req.Context(), req.PathValue("id"))
	if err != nil {
		if errors.Is(err, anime.ErrNotFound) {
			writeError(w, http.StatusNotFound, "anime not found")
			return
		}
		r.logger.Error("getting anime", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (r *Router) handleDeleteAnime(w http.ResponseWriter, req *http.Request) {
	id := req.PathValue("id")
	if err := r.repo.Delete(req.Context(), id); err != nil {
		if errors.Is(err, anime.ErrNotFound) {
			writeError(w, http.StatusNotFound, "anime not found")
			return
		}
		r.logger.Error("deleting anime", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	r.relations.Invalidate(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
