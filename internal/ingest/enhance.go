package ingest

import (
	"context"
	"log/slog"
	"strings"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/provider"
	"github.com/kitsurai/torii/internal/reconcile"
)

// Match-score weights for picking an enhancement donor.
const (
	weightTitle        = 0.4
	weightYearExact    = 0.3
	weightYearAdjacent = 0.15
	weightEpisodes     = 0.2
	weightGenres       = 0.1
	acceptThreshold    = 0.7
)

// gapFillers maps a missing-field name from the quality assessment to the
// copy that fills it. Only these fields are ever touched by enhancement.
var gapFillers = map[string]func(dst, src *anime.Record) bool{
	"synopsis": func(dst, src *anime.Record) bool {
		if len(src.Synopsis) > len(dst.Synopsis) {
			dst.Synopsis = src.Synopsis
			return true
		}
		return false
	},
	"episodes": func(dst, src *anime.Record) bool {
		if dst.Episodes == 0 && src.Episodes > 0 {
			dst.Episodes = src.Episodes
			return true
		}
		return false
	},
	"genres": func(dst, src *anime.Record) bool {
		if len(dst.Genres) == 0 && len(src.Genres) > 0 {
			dst.Genres = append([]string(nil), src.Genres...)
			return true
		}
		return false
	},
	"studios": func(dst, src *anime.Record) bool {
		if len(dst.Studios) == 0 && len(src.Studios) > 0 {
			dst.Studios = append([]string(nil), src.Studios...)
			return true
		}
		return false
	},
	"score": func(dst, src *anime.Record) bool {
		if dst.Score == 0 && src.Score > 0 {
			dst.Score = src.Score
			return true
		}
		return false
	},
	"image": func(dst, src *anime.Record) bool {
		if dst.ImageURL == "" && src.ImageURL != "" {
			dst.ImageURL = src.ImageURL
			return true
		}
		return false
	},
	"age_rating": func(dst, src *anime.Record) bool {
		if dst.AgeRating == "" && src.AgeRating != "" {
			dst.AgeRating = src.AgeRating
			return true
		}
		return false
	},
	"aired": func(dst, src *anime.Record) bool {
		changed := false
		if dst.AiredFrom == "" && src.AiredFrom != "" {
			dst.AiredFrom = src.AiredFrom
			changed = true
		}
		if dst.StartYear == 0 && src.StartYear > 0 {
			dst.StartYear = src.StartYear
			changed = true
		}
		return changed
	},
}

// enhance fills the record's gap fields from the best cross-provider match
// for the same title. Populated fields are never overwritten; any provider
// failure leaves the record as it was.
func (p *Pipeline) enhance(ctx context.Context, rec *anime.Record, requested []provider.Name) {
	gaps := gapFields(rec, p.quality.GapThreshold)
	if len(gaps) == 0 {
		return
	}

	groups, err := p.orch.Search(ctx, rec.Titles.Main, 5, requested)
	if err != nil {
		p.logger.Debug("enhancement search failed",
			slog.String("title", rec.Titles.Main), slog.String("error", err.Error()))
		return
	}

	donor, score := bestMatch(rec, groups)
	if donor == nil || score <= acceptThreshold {
		p.logger.Debug("no enhancement donor accepted",
			slog.String("title", rec.Titles.Main), slog.Float64("best_score", score))
		return
	}

	filled := 0
	for _, gap := range gaps {
		if fill, ok := gapFillers[gap]; ok && fill(rec, donor) {
			filled++
		}
	}
	if filled > 0 {
		p.logger.Debug("gaps filled from cross-provider match",
			slog.String("title", rec.Titles.Main),
			slog.Int("fields", filled),
			slog.Float64("match_score", score))
	}
}

// synopsisTarget is the synopsis length that earns a full field grade.
const synopsisTarget = 200

// fillOrder fixes the iteration order over the fillable fields.
var fillOrder = []string{
	"synopsis", "episodes", "genres", "studios",
	"score", "image", "age_rating", "aired",
}

// fieldGrades score each fillable field in [0, 1]. Most fields are simply
// present or absent; synopsis earns partial credit by length and aired by
// how much of the date information is known.
var fieldGrades = map[string]func(*anime.Record) float64{
	"synopsis": func(r *anime.Record) float64 {
		if len(r.Synopsis) >= synopsisTarget {
			return 1
		}
		return float64(len(r.Synopsis)) / synopsisTarget
	},
	"episodes":   presence(func(r *anime.Record) bool { return r.Episodes > 0 }),
	"genres":     presence(func(r *anime.Record) bool { return len(r.Genres) > 0 }),
	"studios":    presence(func(r *anime.Record) bool { return len(r.Studios) > 0 }),
	"score":      presence(func(r *anime.Record) bool { return r.Score > 0 }),
	"image":      presence(func(r *anime.Record) bool { return r.ImageURL != "" }),
	"age_rating": presence(func(r *anime.Record) bool { return r.AgeRating != "" }),
	"aired": func(r *anime.Record) float64 {
		var grade float64
		if r.AiredFrom != "" {
			grade += 0.5
		}
		if r.StartYear > 0 {
			grade += 0.5
		}
		return grade
	},
}

func presence(present func(*anime.Record) bool) func(*anime.Record) float64 {
	return func(r *anime.Record) float64 {
		if present(r) {
			return 1
		}
		return 0
	}
}

// gapFields returns the fillable fields whose grade falls below the
// configured threshold. A threshold of zero disables enhancement.
func gapFields(rec *anime.Record, threshold float64) []string {
	var gaps []string
	for _, name := range fillOrder {
		if fieldGrades[name](rec) < threshold {
			gaps = append(gaps, name)
		}
	}
	return gaps
}

// bestMatch scores every candidate against the record and returns the top
// scorer. Candidates from the record's own primary provider are skipped.
func bestMatch(rec *anime.Record, groups []provider.ResultGroup) (*anime.Record, float64) {
	var best *anime.Record
	var bestScore float64
	for _, group := range groups {
		if string(group.Provider) == rec.Provenance.PrimaryProvider {
			continue
		}
		for i := range group.Records {
			candidate := &group.Records[i]
			if score := matchScore(rec, candidate); score > bestScore {
				best, bestScore = candidate, score
			}
		}
	}
	return best, bestScore
}

// matchScore is the weighted same-title heuristic: title similarity, start
// year, episode count, genre overlap.
func matchScore(rec, candidate *anime.Record) float64 {
	var titleSim float64
	for _, a := range rec.Titles.Variants() {
		for _, b := range candidate.Titles.Variants() {
			if sim := reconcile.Similarity(a, b); sim > titleSim {
				titleSim = sim
			}
		}
	}
	score := weightTitle * titleSim

	if rec.StartYear > 0 && candidate.StartYear > 0 {
		diff := rec.StartYear - candidate.StartYear
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff == 0:
			score += weightYearExact
		case diff == 1:
			score += weightYearAdjacent
		}
	}

	if rec.Episodes > 0 && candidate.Episodes > 0 {
		diff := rec.Episodes - candidate.Episodes
		if diff < 0 {
			diff = -diff
		}
		switch {
		case diff == 0:
			score += weightEpisodes
		case diff <= 2:
			score += weightEpisodes / 2
		}
	}

	if len(rec.Genres) > 0 && len(candidate.Genres) > 0 {
		score += weightGenres * genreOverlap(rec.Genres, candidate.Genres)
	}
	return score
}

// genreOverlap is |intersection| / |smaller set|, case-insensitive.
func genreOverlap(a, b []string) float64 {
	set := make(map[string]struct{}, len(a))
	for _, g := range a {
		set[strings.ToLower(g)] = struct{}{}
	}
	shared := 0
	for _, g := range b {
		if _, ok := set[strings.ToLower(g)]; ok {
			shared++
		}
	}
	smaller := len(a)
	if len(b) < smaller {
		smaller = len(b)
	}
	return float64(shared) / float64(smaller)
}
