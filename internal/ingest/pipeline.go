// Package ingest turns a title, an external id, or an already-fetched
// record into a persisted catalog entry: resolve, fill gaps from other
// providers, score, store, and queue follow-up work.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/config"
	"github.com/kitsurai/torii/internal/event"
	"github.com/kitsurai/torii/internal/jobs"
	"github.com/kitsurai/torii/internal/provider"
	"github.com/kitsurai/torii/internal/reconcile"
	"github.com/kitsurai/torii/internal/retry"
)

// ErrNoMatch is returned when no provider yields a usable record for the
// requested title.
var ErrNoMatch = errors.New("no matching anime found")

// Outcome classifies what the pipeline did with one item.
type Outcome string

// Outcomes.
const (
	OutcomeImported Outcome = "imported"
	OutcomeSkipped  Outcome = "skipped"
)

// Options tunes one ingestion run.
type Options struct {
	// Providers restricts which providers are queried; empty means the
	// orchestrator's health-ranked order.
	Providers []provider.Name
	// DiscoverRelations queues a relations-discovery job after persisting.
	DiscoverRelations bool
	// Priority is passed through to any queued jobs.
	Priority int
	// Source labels where the request came from (api, batch, relations).
	Source string
}

// Result is the pipeline's answer for one item.
type Result struct {
	Record  *anime.Record
	Outcome Outcome
}

// Pipeline is the single-item ingestion flow.
type Pipeline struct {
	repo        *anime.Repository
	orch        *provider.Orchestrator
	reconciler  *reconcile.Reconciler
	queue       *jobs.Store
	bus         *event.Bus
	quality     config.QualityConfig
	maxAttempts int
	logger      *slog.Logger
}

// NewPipeline wires the ingestion pipeline.
func NewPipeline(repo *anime.Repository, orch *provider.Orchestrator, reconciler *reconcile.Reconciler, queue *jobs.Store, bus *event.Bus, quality config.QualityConfig, maxAttempts int, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		repo:        repo,
		orch:        orch,
		reconciler:  reconciler,
		queue:       queue,
		bus:         bus,
		quality:     quality,
		maxAttempts: maxAttempts,
		logger:      logger.With(slog.String("component", "ingest")),
	}
}

// IngestTitle resolves a title to a record and ingests it. A record already
// stored under any of its title variations is returned as skipped.
func (p *Pipeline) IngestTitle(ctx context.Context, title string, opts Options) (*Result, error) {
	if title == "" {
		return nil, errors.New("empty title")
	}

	if existing, err := p.repo.FindByTitleVariations(ctx, title); err == nil && existing != nil {
		p.logger.Debug("title already in catalog",
			slog.String("title", title), slog.String("anime_id", existing.ID))
		return &Result{Record: existing, Outcome: OutcomeSkipped}, nil
	}

	rec, err := p.resolveByTitle(ctx, title, opts.Providers)
	if err != nil {
		p.bus.Publish(event.IngestFailed, map[string]any{"title": title, "error": err.Error()})
		return nil, err
	}
	return p.ingest(ctx, rec, opts)
}

// IngestByID fetches one record from a specific provider and ingests it.
func (p *Pipeline) IngestByID(ctx context.Context, name provider.Name, id string, opts Options) (*Result, error) {
	if existing, err := p.repo.FindByExternalID(ctx, string(name), id); err == nil && existing != nil {
		return &Result{Record: existing, Outcome: OutcomeSkipped}, nil
	}

	var rec *anime.Record
	err := retry.Do(ctx, func() error {
		var fetchErr error
		rec, fetchErr = p.orch.GetByID(ctx, name, id)
		return fetchErr
	})
	if err != nil {
		return nil, fmt.Errorf("fetching %s/%s: %w", name, id, err)
	}
	return p.ingest(ctx, rec, opts)
}

// IngestRecord ingests an already-fetched record.
func (p *Pipeline) IngestRecord(ctx context.Context, rec *anime.Record, opts Options) (*Result, error) {
	if rec == nil || rec.Titles.Main == "" {
		return nil, errors.New("record has no main title")
	}
	return p.ingest(ctx, rec, opts)
}

// resolveByTitle runs a reconciled provider search and takes the top hit.
func (p *Pipeline) resolveByTitle(ctx context.Context, title string, requested []provider.Name) (*anime.Record, error) {
	groups, err := p.orch.Search(ctx, title, 5, requested)
	if err != nil {
		return nil, fmt.Errorf("searching providers for %q: %w", title, err)
	}

	merged := p.reconciler.Reconcile(title, groups, 0, 1)
	if len(merged) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoMatch, title)
	}
	rec := merged[0]
	return &rec, nil
}

// ingest is the shared tail of every entry point: enhance, score, persist,
// queue follow-ups.
func (p *Pipeline) ingest(ctx context.Context, rec *anime.Record, opts Options) (*Result, error) {
	p.bus.Publish(event.IngestStarted, map[string]any{
		"title":  rec.Titles.Main,
		"source": opts.Source,
	})
	start := time.Now()

	p.enhance(ctx, rec, opts.Providers)
	anime.AssessQuality(rec)

	// Save re-checks the external ids right before inserting, so two
	// concurrent ingestions of the same title converge on one row.
	rec.Provenance.FetchTimeMS = time.Since(start).Milliseconds()
	if err := p.repo.Save(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting %q: %w", rec.Titles.Main, err)
	}

	p.queueFollowUps(ctx, rec, opts)

	p.bus.Publish(event.IngestCompleted, map[string]any{
		"anime_id": rec.ID,
		"title":    rec.Titles.Main,
		"quality":  rec.Quality.Score,
		"tier":     string(rec.Tier),
	})
	p.logger.Info("anime ingested",
		slog.String("anime_id", rec.ID),
		slog.String("title", rec.Titles.Main),
		slog.Float64("quality", rec.Quality.Score),
		slog.String("source", opts.Source))
	return &Result{Record: rec, Outcome: OutcomeImported}, nil
}

// queueFollowUps enqueues background work for the stored record. Enqueue
// failures are logged, never surfaced: the record itself is already safe.
func (p *Pipeline) queueFollowUps(ctx context.Context, rec *anime.Record, opts Options) {
	if rec.Quality.Score < p.quality.EnrichmentThreshold {
		_, err := p.queue.Enqueue(ctx, jobs.TypeEnrichment, jobs.AnimePayload{AnimeID: rec.ID}, opts.Priority, p.maxAttempts)
		if err != nil {
			p.logger.Warn("queueing enrichment job",
				slog.String("anime_id", rec.ID), slog.String("error", err.Error()))
		}
	}
	if opts.DiscoverRelations {
		_, err := p.queue.Enqueue(ctx, jobs.TypeRelationsDiscovery, jobs.AnimePayload{AnimeID: rec.ID}, opts.Priority, p.maxAttempts)
		if err != nil {
			p.logger.Warn("queueing relations job",
				slog.String("anime_id", rec.ID), slog.String("error", err.Error()))
		}
	}
}
