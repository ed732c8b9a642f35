package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kitsurai/torii/internal/ingest"
	"github.com/kitsurai/torii/internal/provider"
)

func (r *Router) handleIngest(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Title             string `json:"title"`
		Provider          string `json:"provider"`
		ExternalID        string `json:"external_id"`
		DiscoverRelations bool   `json:"discover_relations"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	opts := ingest.Options{
		DiscoverRelations: body.DiscoverRelations,
		Source:            "api",
	}

	var (
		result *ingest.Result
		err    error
	)
	switch {
	case body.Provider != "" && body.ExternalID != "":
		result, err = r.pipeline.IngestByID(req.Context(), provider.Name(body.Provider), body.ExternalID, opts)
	case body.Title != "":
		result, err = r.pipeline.IngestTitle(req.Context(), body.Title, opts)
	default:
		writeError(w, http.StatusBadRequest, "either title or provider+external_id is required")
		return
	}
	if err != nil {
		if errors.Is(err, ingest.ErrNoMatch) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	status := http.StatusCreated
	if result.Outcome == ingest.OutcomeSkipped {
		status = http.StatusOK
	}
	writeJSON(w, status, map[string]any{
		"outcome": string(result.Outcome),
		"anime":   result.Record,
	})
}

func (r *Router) handleIngestBatch(w http.ResponseWriter, req *http.Request) {
	var body struct {
		Titles            []string `json:"titles"`
		DiscoverRelations bool     `json:"discover_relations"`
	}
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(body.Titles) == 0 {
		writeError(w, http.StatusBadRequest, "titles must not be empty")
		return
	}

	result := r.pipeline.IngestBatch(req.Context(), body.Titles, ingest.Options{
		DiscoverRelations: body.DiscoverRelations,
		Source:            "batch",
	})
	writeJSON(w, http.StatusOK, result)
}
