package reconcile

import (
	"log/slog"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/config"
	"github.com/kitsurai/torii/internal/provider"
)

// Reconciler runs the full pipeline over per-provider result groups:
// dedup by normalized title, merge each group, rank against the query,
// filter by quality, truncate.
type Reconciler struct {
	normalizer         *Normalizer
	merger             *Merger
	languagePreference string
	logger             *slog.Logger
}

// New creates a reconciler from the merge and ranking preferences.
func New(cfg config.ReconcileConfig, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		normalizer:         NewNormalizer(cfg.FranchiseKeywords),
		merger:             NewMerger(cfg.PreferredRatingProvider, cfg.PreferredImageProvider),
		languagePreference: cfg.LanguagePreference,
		logger:             logger.With(slog.String("component", "reconciler")),
	}
}

// Reconcile produces at most limit records, one per logical title group,
// dropping records below minQuality. Deterministic for identical inputs.
func (r *Reconciler) Reconcile(query string, groups []provider.ResultGroup, minQuality float64, limit int) []anime.Record {
	keyed := r.group(groups)

	merged := make([]anime.Record, 0, len(keyed.order))
	for _, key := range keyed.order {
		merged = append(merged, r.merger.Merge(keyed.byKey[key]))
	}

	Rank(merged, query, r.languagePreference)

	out := merged[:0]
	for _, rec := range merged {
		if rec.Quality.Score < minQuality {
			continue
		}
		out = append(out, rec)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	r.logger.Debug("reconciled results",
		slog.String("query", query),
		slog.Int("groups", len(keyed.order)),
		slog.Int("returned", len(out)))

	return out
}

type grouped struct {
	byKey map[string][]anime.Record
	order []string
}

// group flattens the provider result groups into dedup groups keyed by
// normalized main title, preserving first-seen order for determinism.
func (r *Reconciler) group(groups []provider.ResultGroup) grouped {
	g := grouped{byKey: make(map[string][]anime.Record)}
	for _, rg := range groups {
		for _, rec := range rg.Records {
			key := r.normalizer.Key(rec.Titles.Main)
			if key == "" {
				continue
			}
			if _, ok := g.byKey[key]; !ok {
				g.order = append(g.order, key)
			}
			g.byKey[key] = append(g.byKey[key], rec)
		}
	}
	return g
}
