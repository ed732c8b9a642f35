package api

import (
	"errors"
	"net/http"

	"github.com/kitsurai/torii/internal/jobs"
)

func (r *Router) handleJobStats(w http.ResponseWriter, req *http.Request) {
	stats, err := r.jobStore.Statistics(req.Context())
	if err != nil {
		r.logger.Error("reading job statistics", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

func (r *Router) handlePendingJobs(w http.ResponseWriter, req *http.Request) {
	pending, err := r.jobStore.Pending(req.Context(), queryInt(req, "limit", 50))
	if err != nil {
		r.logger.Error("listing pending jobs", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"count": len(pending),
		"jobs":  pending,
	})
}

func (r *Router) handleGetJob(w http.ResponseWriter, req *http.Request) {
	job, err := r.jobStore.GetByID(req.Context(), req.PathValue("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			writeError(w, http.StatusNotFound, "job not found")
			return
		}
		r.logger.Error("getting job", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, job)
}
