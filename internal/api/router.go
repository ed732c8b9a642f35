// Package api exposes the catalog over JSON HTTP.
package api

import (
	"log/slog"
	"net/http"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/api/middleware"
	"github.com/kitsurai/torii/internal/config"
	"github.com/kitsurai/torii/internal/ingest"
	"github.com/kitsurai/torii/internal/jobs"
	"github.com/kitsurai/torii/internal/provider"
	"github.com/kitsurai/torii/internal/reconcile"
	"github.com/kitsurai/torii/internal/relations"
)

// RouterDeps bundles all dependencies needed by the HTTP router.
type RouterDeps struct {
	Repo       *anime.Repository
	Orch       *provider.Orchestrator
	Reconciler *reconcile.Reconciler
	Pipeline   *ingest.Pipeline
	Relations  *relations.Service
	JobStore   *jobs.Store
	Quality    config.QualityConfig
	Logger     *slog.Logger
}

// Router sets up all HTTP routes for the application.
type Router struct {
	repo       *anime.Repository
	orch       *provider.Orchestrator
	reconciler *reconcile.Reconciler
	pipeline   *ingest.Pipeline
	relations  *relations.Service
	jobStore   *jobs.Store
	quality    config.QualityConfig
	logger     *slog.Logger
}

// NewRouter creates a new Router with all routes configured.
func NewRouter(deps RouterDeps) *Router {
	return &Router{
		repo:       deps.Repo,
		orch:       deps.Orch,
		reconciler: deps.Reconciler,
		pipeline:   deps.Pipeline,
		relations:  deps.Relations,
		jobStore:   deps.JobStore,
		quality:    deps.Quality,
		logger:     deps.Logger,
	}
}

// Handler returns the fully configured HTTP handler with middleware applied.
func (r *Router) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/health", r.handleHealth)

	mux.HandleFunc("GET /api/v1/search", r.handleSearch)
	mux.HandleFunc("GET /api/v1/top", r.handleTop)
	mux.HandleFunc("GET /api/v1/seasonal", r.handleSeasonal)

	mux.HandleFunc("GET /api/v1/anime", r.handleListAnime)
	mux.HandleFunc("GET /api/v1/anime/{id}", r.handleGetAnime)
	mux.HandleFunc("DELETE /api/v1/anime/{id}", r.handleDeleteAnime)
	mux.HandleFunc("POST /api/v1/anime", r.handleIngest)
	mux.HandleFunc("POST /api/v1/anime/batch", r.handleIngestBatch)

	mux.HandleFunc("GET /api/v1/anime/{id}/relations", r.handleRelations)

	mux.HandleFunc("GET /api/v1/jobs/stats", r.handleJobStats)
	mux.HandleFunc("GET /api/v1/jobs/pending", r.handlePendingJobs)
	mux.HandleFunc("GET /api/v1/jobs/{id}", r.handleGetJob)

	mux.HandleFunc("GET /api/v1/providers/health", r.handleProviderHealth)

	var handler http.Handler = mux
	handler = middleware.Logging(r.logger)(handler)
	handler = middleware.Recover(r.logger)(handler)
	return handler
}
