package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/provider"
	"github.com/kitsurai/torii/internal/retry"
)

// EnrichmentHandler fills a whitelisted set of gap fields (synopsis,
// genres, studios, age rating) on a stored record from the secondary
// providers it is already known at. Fields that are populated are never
// overwritten; the record is persisted only when something changed.
type EnrichmentHandler struct {
	repo   *anime.Repository
	orch   *provider.Orchestrator
	logger *slog.Logger
}

// NewEnrichmentHandler creates the handler for enrichment jobs.
func NewEnrichmentHandler(repo *anime.Repository, orch *provider.Orchestrator, logger *slog.Logger) *EnrichmentHandler {
	return &EnrichmentHandler{
		repo:   repo,
		orch:   orch,
		logger: logger.With(slog.String("component", "enrichment")),
	}
}

// Handle processes one enrichment job.
func (h *EnrichmentHandler) Handle(ctx context.Context, job *Job) error {
	var payload AnimePayload
	if err := job.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}

	rec, err := h.repo.FindByID(ctx, payload.AnimeID)
	if err != nil {
		return fmt.Errorf("loading anime: %w", err)
	}

	changed := false
	for providerName, externalID := range rec.ExternalIDs {
		if providerName == rec.Provenance.PrimaryProvider || externalID == "" {
			continue
		}

		var supplement *anime.Record
		err := retry.Do(ctx, func() error {
			var fetchErr error
			supplement, fetchErr = h.orch.GetByID(ctx, provider.Name(providerName), externalID)
			return fetchErr
		})
		if err != nil {
			h.logger.Warn("supplementary fetch failed",
				slog.String("anime_id", rec.ID),
				slog.String("provider", providerName),
				slog.String("error", err.Error()))
			continue
		}

		if fillGaps(rec, supplement) {
			changed = true
		}
	}

	if !changed {
		h.logger.Debug("nothing to enrich", slog.String("anime_id", rec.ID))
		return nil
	}

	anime.AssessQuality(rec)
	if err := h.repo.Update(ctx, rec); err != nil {
		return fmt.Errorf("persisting enriched anime: %w", err)
	}
	h.logger.Info("anime enriched",
		slog.String("anime_id", rec.ID),
		slog.Float64("quality", rec.Quality.Score))
	return nil
}

// fillGaps copies the whitelisted fields from src into dst where dst has
// none, reporting whether anything changed.
func fillGaps(dst, src *anime.Record) bool {
	changed := false
	if dst.Synopsis == "" && src.Synopsis != "" {
		dst.Synopsis = src.Synopsis
		changed = true
	}
	if len(dst.Genres) == 0 && len(src.Genres) > 0 {
		dst.Genres = append([]string(nil), src.Genres...)
		changed = true
	}
	if len(dst.Studios) == 0 && len(src.Studios) > 0 {
		dst.Studios = append([]string(nil), src.Studios...)
		changed = true
	}
	if dst.AgeRating == "" && src.AgeRating != "" {
		dst.AgeRating = src.AgeRating
		changed = true
	}
	return changed
}
