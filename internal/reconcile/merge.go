package reconcile

import (
	"math"
	"sort"
	"strings"

	"github.com/kitsurai/torii/internal/anime"
)

// defaultFavoritesWeight stands in for a source with no favorites count
// when computing the weighted score.
const defaultFavoritesWeight = 100

// bannerProviders supply real banner art; banner URLs from anywhere else
// are ignored during merge.
var bannerProviders = []string{"anilist", "kitsu"}

// Merger folds a dedup group of per-provider records into one.
type Merger struct {
	preferredRatingProvider string
	preferredImageProvider  string
}

// NewMerger creates a merger with the configured provider preferences for
// age rating and cover image.
func NewMerger(preferredRatingProvider, preferredImageProvider string) *Merger {
	return &Merger{
		preferredRatingProvider: preferredRatingProvider,
		preferredImageProvider:  preferredImageProvider,
	}
}

// Merge folds a group into a single record. Single-member groups pass
// through unchanged. The merge is seeded from the highest-quality member,
// so a degenerate group still yields that member.
func (m *Merger) Merge(group []anime.Record) anime.Record {
	if len(group) == 1 {
		return group[0]
	}

	// Highest quality first; the seed wins all first-available fields.
	sorted := make([]anime.Record, len(group))
	copy(sorted, group)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Quality.Score > sorted[j].Quality.Score
	})

	merged := sorted[0]
	merged.Genres = append([]string(nil), sorted[0].Genres...)
	merged.Studios = append([]string(nil), sorted[0].Studios...)
	merged.Titles.Synonyms = append([]string(nil), sorted[0].Titles.Synonyms...)
	merged.ExternalIDs = make(map[string]string, len(sorted[0].ExternalIDs))
	for k, v := range sorted[0].ExternalIDs {
		merged.ExternalIDs[k] = v
	}

	for _, rec := range sorted[1:] {
		mergeTitles(&merged, &rec)
		mergeMetadata(&merged, &rec)
		mergeCollections(&merged, &rec)
		for k, v := range rec.ExternalIDs {
			if _, ok := merged.ExternalIDs[k]; !ok && v != "" {
				merged.ExternalIDs[k] = v
			}
		}
	}
	m.mergeRating(&merged, sorted)
	m.mergeMedia(&merged, sorted)

	mergeProvenance(&merged, sorted)
	anime.AssessQuality(&merged)
	return merged
}

// mergeTitles fills missing variants from the other record and unions
// synonyms with exact-string dedup.
func mergeTitles(dst, src *anime.Record) {
	if dst.Titles.English == "" {
		dst.Titles.English = src.Titles.English
	}
	if dst.Titles.Japanese == "" {
		dst.Titles.Japanese = src.Titles.Japanese
	}
	if dst.Titles.Romaji == "" {
		dst.Titles.Romaji = src.Titles.Romaji
	}
	if dst.Titles.Native == "" {
		dst.Titles.Native = src.Titles.Native
	}

	seen := make(map[string]bool, len(dst.Titles.Synonyms))
	for _, s := range dst.Titles.Synonyms {
		seen[s] = true
	}
	for _, s := range src.Titles.Synonyms {
		if s != "" && !seen[s] {
			dst.Titles.Synonyms = append(dst.Titles.Synonyms, s)
			seen[s] = true
		}
	}
}

// mergeMetadata prefers the longer synopsis, first-available fills the
// scalar fields, and overwrites status/type only while unknown.
func mergeMetadata(dst, src *anime.Record) {
	if len(src.Synopsis) > len(dst.Synopsis) {
		dst.Synopsis = src.Synopsis
	}
	if dst.SourceMaterial == "" {
		dst.SourceMaterial = src.SourceMaterial
	}
	if dst.DurationMin == 0 {
		dst.DurationMin = src.DurationMin
	}
	if dst.Episodes == 0 {
		dst.Episodes = src.Episodes
	}
	if dst.StartYear == 0 {
		dst.StartYear = src.StartYear
	}
	if dst.AiredFrom == "" {
		dst.AiredFrom = src.AiredFrom
	}
	if dst.AiredTo == "" {
		dst.AiredTo = src.AiredTo
	}
	if dst.Status == anime.StatusUnknown || dst.Status == "" {
		dst.Status = src.Status
	}
	if dst.Type == anime.TypeUnknown || dst.Type == "" {
		dst.Type = src.Type
	}
}

// mergeCollections unions genres by exact name and studios by a
// punctuation-insensitive key, so "J.C.Staff" and "J.C.STAFF" collapse.
func mergeCollections(dst, src *anime.Record) {
	seenGenres := make(map[string]bool, len(dst.Genres))
	for _, g := range dst.Genres {
		seenGenres[g] = true
	}
	for _, g := range src.Genres {
		if g != "" && !seenGenres[g] {
			dst.Genres = append(dst.Genres, g)
			seenGenres[g] = true
		}
	}

	dst.Studios = unionStudios(dst.Studios, src.Studios)
}

func unionStudios(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string(nil), a...), b...) {
		key := studioKey(s)
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, s)
	}
	return out
}

// studioKey lowercases and strips the punctuation studios vary on across
// providers.
func studioKey(s string) string {
	s = strings.ToLower(s)
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '-', '_', ' ':
			return -1
		}
		return r
	}, s)
}

// mergeRating takes the age rating from the preferred provider, computes
// the favorites-weighted mean score, and sums favorites across sources.
func (m *Merger) mergeRating(dst *anime.Record, group []anime.Record) {
	if rated := fromProvider(group, m.preferredRatingProvider, func(r *anime.Record) bool { return r.AgeRating != "" }); rated != nil {
		dst.AgeRating = rated.AgeRating
	}

	var weightedSum, weightTotal float64
	favorites := 0
	for i := range group {
		rec := &group[i]
		favorites += rec.Favorites
		if rec.Score <= 0 {
			continue
		}
		weight := float64(rec.Favorites)
		if weight <= 0 {
			weight = defaultFavoritesWeight
		}
		weightedSum += rec.Score * weight
		weightTotal += weight
	}
	if weightTotal > 0 {
		dst.Score = math.Round(weightedSum/weightTotal*100) / 100
	}
	dst.Favorites = favorites
}

// mergeMedia takes the cover image from the preferred provider, the banner
// only from providers that supply real banner art, and the first trailer.
func (m *Merger) mergeMedia(dst *anime.Record, group []anime.Record) {
	if img := fromProvider(group, m.preferredImageProvider, func(r *anime.Record) bool { return r.ImageURL != "" }); img != nil {
		dst.ImageURL = img.ImageURL
	}

	dst.BannerURL = ""
	for _, provider := range bannerProviders {
		for i := range group {
			if group[i].Provenance.PrimaryProvider == provider && group[i].BannerURL != "" {
				dst.BannerURL = group[i].BannerURL
				break
			}
		}
		if dst.BannerURL != "" {
			break
		}
	}

	if dst.TrailerURL == "" {
		for i := range group {
			if group[i].TrailerURL != "" {
				dst.TrailerURL = group[i].TrailerURL
				break
			}
		}
	}
}

// fromProvider returns the group member from the preferred provider that
// satisfies ok, else the first member that does.
func fromProvider(group []anime.Record, preferred string, ok func(*anime.Record) bool) *anime.Record {
	for i := range group {
		if group[i].Provenance.PrimaryProvider == preferred && ok(&group[i]) {
			return &group[i]
		}
	}
	for i := range group {
		if ok(&group[i]) {
			return &group[i]
		}
	}
	return nil
}

// mergeProvenance recomputes providers_used and confidence from every
// contributing source.
func mergeProvenance(dst *anime.Record, group []anime.Record) {
	seen := make(map[string]bool)
	var used []string
	var qualities []float64
	for i := range group {
		qualities = append(qualities, group[i].Quality.Score)
		for _, p := range group[i].Provenance.ProvidersUsed {
			if !seen[p] {
				seen[p] = true
				used = append(used, p)
			}
		}
	}
	dst.Provenance.ProvidersUsed = used
	dst.Provenance.Confidence = anime.Confidence(qualities)
}
