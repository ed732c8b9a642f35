package relations

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kitsurai/torii/internal/jobs"
)

// DiscoveryHandler runs queued relations-discovery jobs against the service.
type DiscoveryHandler struct {
	service *Service
	logger  *slog.Logger
}

// NewDiscoveryHandler creates the handler for relations-discovery jobs.
func NewDiscoveryHandler(service *Service, logger *slog.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{
		service: service,
		logger:  logger.With(slog.String("component", "relations-discovery")),
	}
}

// Handle discovers and persists the relation edges for the job's anime.
func (h *DiscoveryHandler) Handle(ctx context.Context, job *jobs.Job) error {
	var payload jobs.AnimePayload
	if err := job.DecodePayload(&payload); err != nil {
		return fmt.Errorf("decoding payload: %w", err)
	}

	edges, err := h.service.Discover(ctx, payload.AnimeID)
	if err != nil {
		return fmt.Errorf("discovering relations for %s: %w", payload.AnimeID, err)
	}
	h.logger.Debug("discovery job finished",
		slog.String("anime_id", payload.AnimeID),
		slog.Int("edges", len(edges)))
	return nil
}
