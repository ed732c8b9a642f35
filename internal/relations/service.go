package relations

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/event"
	"github.com/kitsurai/torii/internal/ingest"
	"github.com/kitsurai/torii/internal/provider"
)

// enrichConcurrency caps simultaneous provider lookups while enriching
// detailed relations or ingesting discovered titles.
const enrichConcurrency = 3

// discoveredPriority keeps relation-sourced background jobs behind
// user-initiated work in the queue.
const discoveredPriority = -1

// Service answers franchise-graph queries in three tiers, each with its own
// cache: basic edges, edges with metadata, and the complete franchise.
type Service struct {
	store    *Store
	repo     *anime.Repository
	orch     *provider.Orchestrator
	pipeline *ingest.Pipeline
	bus      *event.Bus
	logger   *slog.Logger

	basic     *tierCache[[]Edge]
	detailed  *tierCache[[]Detail]
	franchise *tierCache[*Franchise]
}

// NewService wires the relations service.
func NewService(store *Store, repo *anime.Repository, orch *provider.Orchestrator, pipeline *ingest.Pipeline, bus *event.Bus, logger *slog.Logger) *Service {
	return &Service{
		store:     store,
		repo:      repo,
		orch:      orch,
		pipeline:  pipeline,
		bus:       bus,
		logger:    logger.With(slog.String("component", "relations")),
		basic:     newTierCache[[]Edge](basicTTL),
		detailed:  newTierCache[[]Detail](detailedTTL),
		franchise: newTierCache[*Franchise](franchiseTTL),
	}
}

// Basic returns the direct relation edges of an anime: from cache, else the
// store, else fresh provider discovery.
func (s *Service) Basic(ctx context.Context, animeID string) ([]Edge, error) {
	if edges, ok := s.basic.get(animeID); ok {
		return edges, nil
	}

	edges, err := s.store.ListByAnime(ctx, animeID)
	if err != nil {
		return nil, err
	}
	if len(edges) > 0 {
		s.basic.set(animeID, edges)
		return edges, nil
	}

	return s.Discover(ctx, animeID)
}

// Detailed returns the direct edges with a metadata snapshot per target,
// resolved with bounded concurrency. An edge whose target cannot be resolved
// degrades to a placeholder instead of failing the response.
func (s *Service) Detailed(ctx context.Context, animeID string) ([]Detail, error) {
	if details, ok := s.detailed.get(animeID); ok {
		return details, nil
	}

	edges, err := s.Basic(ctx, animeID)
	if err != nil {
		return nil, err
	}

	details := make([]Detail, len(edges))
	workers := pool.New().WithMaxGoroutines(enrichConcurrency)
	for i, edge := range edges {
		workers.Go(func() {
			details[i] = s.resolveDetail(ctx, edge)
		})
	}
	workers.Wait()

	s.detailed.set(animeID, details)
	return details, nil
}

// resolveDetail snapshots one edge's target: catalog first, provider second,
// placeholder last.
func (s *Service) resolveDetail(ctx context.Context, edge Edge) Detail {
	detail := Detail{Edge: edge}

	if stored, err := s.repo.FindByExternalID(ctx, edge.Provider, edge.TargetExternalID); err == nil && stored != nil {
		fillDetail(&detail, stored)
		return detail
	}

	fetched, err := s.orch.GetByID(ctx, provider.Name(edge.Provider), edge.TargetExternalID)
	if err != nil {
		s.logger.Debug("relation target unresolved",
			slog.String("provider", edge.Provider),
			slog.String("target", edge.TargetExternalID),
			slog.String("error", err.Error()))
		detail.Placeholder = true
		return detail
	}
	fillDetail(&detail, fetched)
	return detail
}

func fillDetail(detail *Detail, rec *anime.Record) {
	detail.Title = rec.Titles.Main
	detail.Format = string(rec.Type)
	detail.Episodes = rec.Episodes
	detail.StartYear = rec.StartYear
	detail.Score = rec.Score
	detail.ImageURL = rec.ImageURL
}

// Franchise returns the complete franchise from one deep provider query,
// traversed cycle-safely and grouped by category in chronological order.
func (s *Service) Franchise(ctx context.Context, animeID string) (*Franchise, error) {
	if cached, ok := s.franchise.get(animeID); ok {
		return cached, nil
	}

	rec, err := s.repo.FindByID(ctx, animeID)
	if err != nil {
		return nil, err
	}

	seedProvider, seedID, rels, err := s.fetchRelations(ctx, rec, true)
	if err != nil {
		return nil, err
	}

	result := &Franchise{
		SeedID:     animeID,
		Categories: make(map[Category][]FranchiseEntry),
	}
	visited := map[string]struct{}{
		edgeKey(seedProvider, seedID): {},
	}
	s.collectFranchise(rels, visited, result)

	for category := range result.Categories {
		sortChronological(result.Categories[category])
	}

	s.franchise.set(animeID, result)
	return result, nil
}

// collectFranchise walks the nested relation tree, deduplicating targets by
// provider-scoped external id so cyclic graphs terminate.
func (s *Service) collectFranchise(rels []provider.Relation, visited map[string]struct{}, result *Franchise) {
	for _, rel := range rels {
		key := edgeKey(rel.Provider, rel.TargetID)
		if _, seen := visited[key]; seen {
			continue
		}
		visited[key] = struct{}{}

		category := Categorize(rel.Type, rel.Format)
		result.Categories[category] = append(result.Categories[category], FranchiseEntry{
			TargetExternalID: rel.TargetID,
			Title:            rel.TargetTitle,
			Type:             rel.Type,
			Format:           rel.Format,
			StartYear:        rel.StartYear,
			Provider:         rel.Provider,
		})
		result.Total++

		s.collectFranchise(rel.Relations, visited, result)
	}
}

// Discover queries a provider for the anime's direct relations, ingests the
// newly seen titles, and replaces the stored edge set.
func (s *Service) Discover(ctx context.Context, animeID string) ([]Edge, error) {
	rec, err := s.repo.FindByID(ctx, animeID)
	if err != nil {
		return nil, err
	}

	providerName, _, rels, err := s.fetchRelations(ctx, rec, false)
	if err != nil {
		return nil, err
	}

	edges := make([]Edge, 0, len(rels))
	for _, rel := range rels {
		edges = append(edges, Edge{
			AnimeID:          animeID,
			TargetExternalID: rel.TargetID,
			Type:             rel.Type,
			Category:         Categorize(rel.Type, rel.Format),
			Provider:         string(rel.Provider),
		})
	}

	// Pull the related titles into the catalog before the edges land, so a
	// reader following an edge finds its target. Relation fetching stays off
	// for these to bound the recursion to one hop.
	s.ingestDiscovered(ctx, rels)

	if err := s.store.Replace(ctx, animeID, edges); err != nil {
		return nil, fmt.Errorf("persisting relation edges: %w", err)
	}

	s.basic.set(animeID, edges)
	s.detailed.invalidate(animeID)
	s.franchise.invalidate(animeID)

	s.bus.Publish(event.RelationDiscovered, map[string]any{
		"anime_id": animeID,
		"provider": string(providerName),
		"edges":    len(edges),
	})
	s.logger.Info("relations discovered",
		slog.String("anime_id", animeID),
		slog.String("provider", string(providerName)),
		slog.Int("edges", len(edges)))
	return edges, nil
}

// fetchRelations finds a provider that both knows this record and supports
// relation queries, trying the record's primary provider first.
func (s *Service) fetchRelations(ctx context.Context, rec *anime.Record, deep bool) (provider.Name, string, []provider.Relation, error) {
	var lastErr error
	for _, name := range s.candidateProviders(rec) {
		id := rec.ExternalIDs[string(name)]
		if id == "" {
			continue
		}
		rels, err := s.orch.GetRelations(ctx, name, id, deep)
		if err != nil {
			lastErr = err
			continue
		}
		return name, id, rels, nil
	}
	if lastErr != nil {
		return "", "", nil, fmt.Errorf("no provider could resolve relations: %w", lastErr)
	}
	return "", "", nil, fmt.Errorf("anime %s has no relation-capable provider id", rec.ID)
}

// candidateProviders orders the record's providers primary-first.
func (s *Service) candidateProviders(rec *anime.Record) []provider.Name {
	names := []provider.Name{}
	primary := provider.Name(rec.Provenance.PrimaryProvider)
	if primary != "" {
		names = append(names, primary)
	}
	for _, name := range provider.AllNames() {
		if name != primary {
			names = append(names, name)
		}
	}
	return names
}

// ingestDiscovered imports relation targets that carry a title, with bounded
// concurrency. Failures are logged per title and never abort discovery.
func (s *Service) ingestDiscovered(ctx context.Context, rels []provider.Relation) {
	var imported int
	var mu sync.Mutex

	workers := pool.New().WithMaxGoroutines(enrichConcurrency)
	for _, rel := range rels {
		if rel.TargetID == "" || rel.TargetTitle == "" {
			continue
		}
		workers.Go(func() {
			result, err := s.pipeline.IngestByID(ctx, rel.Provider, rel.TargetID, ingest.Options{
				Priority: discoveredPriority,
				Source:   "relations",
			})
			if err != nil {
				s.logger.Debug("discovered title not ingested",
					slog.String("title", rel.TargetTitle),
					slog.String("error", err.Error()))
				return
			}
			if result.Outcome == ingest.OutcomeImported {
				mu.Lock()
				imported++
				mu.Unlock()
			}
		})
	}
	workers.Wait()

	if imported > 0 {
		s.logger.Info("discovered titles ingested", slog.Int("count", imported))
	}
}

// Invalidate drops all cached tiers for one anime.
func (s *Service) Invalidate(animeID string) {
	s.basic.invalidate(animeID)
	s.detailed.invalidate(animeID)
	s.franchise.invalidate(animeID)
}

func edgeKey(name provider.Name, id string) string {
	return string(name) + ":" + id
}

// sortChronological orders entries by start year ascending with unknown
// years last, ties broken by title.
func sortChronological(entries []FranchiseEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		a, b := entries[i], entries[j]
		switch {
		case a.StartYear == 0 && b.StartYear == 0:
			return a.Title < b.Title
		case a.StartYear == 0:
			return false
		case b.StartYear == 0:
			return true
		case a.StartYear != b.StartYear:
			return a.StartYear < b.StartYear
		}
		return a.Title < b.Title
	})
}
