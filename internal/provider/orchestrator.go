package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/kitsurai/torii/internal/anime"
)

// Orchestrator routes queries across registered providers: selection by
// health-ranked priority, response caching, rate limiting, and fallback.
// Individual provider failures are recorded and skipped; an operation only
// fails when no provider can serve it.
type Orchestrator struct {
	registry *Registry
	cache    *Cache
	health   *HealthRegistry
	logger   *slog.Logger
}

// ResultGroup is one provider's result set for a fan-out query, kept
// separate so the reconciler can attribute every record to its source.
type ResultGroup struct {
	Provider Name
	Records  []anime.Record
}

// NewOrchestrator creates a provider orchestrator. Rate limiting happens
// inside the adapters themselves; the orchestrator owns selection, caching,
// and health accounting.
func NewOrchestrator(registry *Registry, cache *Cache, health *HealthRegistry, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		registry: registry,
		cache:    cache,
		health:   health,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// Health returns the health registry for status reporting.
func (o *Orchestrator) Health() *HealthRegistry { return o.health }

// Cache returns the response cache for stats and sweeping.
func (o *Orchestrator) Cache() *Cache { return o.cache }

// SelectProviders resolves the providers to query. An explicit request
// keeps its order, filtered to registered adapters; otherwise providers
// are health-ranked by configured priority.
func (o *Orchestrator) SelectProviders(requested []Name) []Name {
	if len(requested) > 0 {
		var out []Name
		for _, name := range requested {
			if o.registry.Get(name) != nil {
				out = append(out, name)
			}
		}
		return out
	}

	var out []Name
	for _, name := range o.health.Ranked() {
		if o.registry.Get(name) != nil {
			out = append(out, name)
		}
	}
	return out
}

// Search fans a title query out to the selected providers and returns one
// result group per provider that responded. Returns an error only when
// every provider failed.
func (o *Orchestrator) Search(ctx context.Context, query string, limit int, requested []Name) ([]ResultGroup, error) {
	providers := o.SelectProviders(requested)
	if len(providers) == 0 {
		return nil, errors.New("no providers available")
	}

	var groups []ResultGroup
	var lastErr error
	for _, name := range providers {
		key := CacheKey(name, "search", query, limit)
		records, err := o.fetch(ctx, name, key, func(a Adapter) ([]anime.Record, error) {
			return a.Search(ctx, query, limit)
		})
		if err != nil {
			o.logger.Warn("provider search failed",
				slog.String("provider", string(name)),
				slog.String("query", query),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		groups = append(groups, ResultGroup{Provider: name, Records: records})
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("all providers failed: %w", lastErr)
	}
	return groups, nil
}

// GetByID fetches one title from a specific provider.
func (o *Orchestrator) GetByID(ctx context.Context, name Name, id string) (*anime.Record, error) {
	adapter := o.registry.Get(name)
	if adapter == nil {
		return nil, fmt.Errorf("provider %s not registered", name)
	}

	key := CacheKey(name, "id", id)
	records, err := o.fetch(ctx, name, key, func(a Adapter) ([]anime.Record, error) {
		rec, err := a.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return []anime.Record{*rec}, nil
	})
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, &ErrNotFound{Provider: name, ID: id}
	}
	rec := records[0]
	return &rec, nil
}

// GetDetails walks the fallback chain for a title known under external
// ids, returning the first provider's record. Providers the title has no
// id for are skipped.
func (o *Orchestrator) GetDetails(ctx context.Context, externalIDs map[string]string, requested []Name) (*anime.Record, error) {
	providers := o.SelectProviders(requested)

	var lastErr error
	for _, name := range providers {
		id, ok := externalIDs[string(name)]
		if !ok || id == "" {
			continue
		}
		rec, err := o.GetByID(ctx, name, id)
		if err != nil {
			o.logger.Warn("provider details failed, trying next",
				slog.String("provider", string(name)),
				slog.String("id", id),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		return rec, nil
	}
	if lastErr != nil {
		return nil, fmt.Errorf("all providers failed: %w", lastErr)
	}
	return nil, errors.New("no provider id available")
}

// GetTop fetches a page of top-ranked titles from the selected providers.
func (o *Orchestrator) GetTop(ctx context.Context, page, limit int, requested []Name) ([]ResultGroup, error) {
	return o.fanOut(ctx, requested, "top", func(name Name, a Adapter) (string, func() ([]anime.Record, error)) {
		return CacheKey(name, "top", page, limit), func() ([]anime.Record, error) {
			return a.GetTop(ctx, page, limit)
		}
	})
}

// GetSeasonal fetches a page of seasonal titles from the selected
// providers.
func (o *Orchestrator) GetSeasonal(ctx context.Context, year int, season Season, page int, requested []Name) ([]ResultGroup, error) {
	return o.fanOut(ctx, requested, "seasonal", func(name Name, a Adapter) (string, func() ([]anime.Record, error)) {
		return CacheKey(name, "seasonal", year, string(season), page), func() ([]anime.Record, error) {
			return a.GetSeasonal(ctx, year, season, page)
		}
	})
}

// GetRelations fetches relation edges from one provider, if it supports
// franchise discovery.
func (o *Orchestrator) GetRelations(ctx context.Context, name Name, id string, deep bool) ([]Relation, error) {
	adapter := o.registry.Get(name)
	if adapter == nil {
		return nil, fmt.Errorf("provider %s not registered", name)
	}
	source, ok := adapter.(RelationSource)
	if !ok {
		return nil, fmt.Errorf("provider %s does not expose relations", name)
	}

	start := time.Now()
	relations, err := source.GetRelations(ctx, id, deep)
	if err != nil {
		o.recordOutcome(name, err)
		return nil, err
	}
	o.health.RecordSuccess(name, time.Since(start))
	return relations, nil
}

func (o *Orchestrator) fanOut(ctx context.Context, requested []Name, op string, build func(Name, Adapter) (string, func() ([]anime.Record, error))) ([]ResultGroup, error) {
	providers := o.SelectProviders(requested)
	if len(providers) == 0 {
		return nil, errors.New("no providers available")
	}

	var groups []ResultGroup
	var lastErr error
	for _, name := range providers {
		adapter := o.registry.Get(name)
		key, call := build(name, adapter)
		records, err := o.fetch(ctx, name, key, func(Adapter) ([]anime.Record, error) { return call() })
		if err != nil {
			o.logger.Warn("provider query failed",
				slog.String("provider", string(name)),
				slog.String("op", op),
				slog.String("error", err.Error()))
			lastErr = err
			continue
		}
		groups = append(groups, ResultGroup{Provider: name, Records: records})
	}
	if len(groups) == 0 {
		return nil, fmt.Errorf("all providers failed: %w", lastErr)
	}
	return groups, nil
}

// fetch serves one provider call through the cache, in-flight markers, and
// rate limiter, recording the outcome in the health registry. A not-found
// result is cached as an empty payload, not counted against health.
func (o *Orchestrator) fetch(ctx context.Context, name Name, key string, call func(Adapter) ([]anime.Record, error)) ([]anime.Record, error) {
	if records, ok := o.cache.Get(key); ok {
		return records, nil
	}

	if !o.cache.TryMarkInFlight(key) {
		if records, ok := o.cache.WaitInFlight(ctx, key); ok {
			return records, nil
		}
		// The other request did not land a result; issue our own.
	}

	adapter := o.registry.Get(name)
	if adapter == nil {
		o.cache.ClearInFlight(key)
		return nil, fmt.Errorf("provider %s not registered", name)
	}

	start := time.Now()
	records, err := call(adapter)
	if err != nil {
		var notFound *ErrNotFound
		if errors.As(err, &notFound) {
			o.health.RecordSuccess(name, time.Since(start))
			o.cache.Set(key, []anime.Record{})
			return nil, err
		}
		o.cache.ClearInFlight(key)
		o.recordOutcome(name, err)
		return nil, err
	}

	o.health.RecordSuccess(name, time.Since(start))
	if records == nil {
		records = []anime.Record{}
	}
	o.cache.Set(key, records)
	return records, nil
}

func (o *Orchestrator) recordOutcome(name Name, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return
	}
	o.health.RecordFailure(name, err)
}
