package reconcile

import (
	"sort"

	"github.com/kitsurai/torii/internal/anime"
)

// variantsByPreference returns a record's title variants in the order the
// configured language preference wants them compared. Auto tries every
// variant, main title first.
func variantsByPreference(rec *anime.Record, languagePreference string) []string {
	t := rec.Titles
	var ordered []string
	switch languagePreference {
	case "english":
		ordered = []string{t.English, t.Main, t.Romaji, t.Japanese, t.Native}
	case "romaji":
		ordered = []string{t.Romaji, t.Main, t.English, t.Japanese, t.Native}
	case "japanese":
		ordered = []string{t.Japanese, t.Native, t.Main, t.Romaji, t.English}
	default: // auto
		ordered = []string{t.Main, t.English, t.Romaji, t.Japanese, t.Native}
	}

	var out []string
	seen := make(map[string]bool)
	for _, v := range ordered {
		if v != "" && !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	for _, v := range t.Synonyms {
		if v != "" && !seen[v] {
			out = append(out, v)
			seen[v] = true
		}
	}
	return out
}

// Rank scores each record's best title-variant similarity against the
// query, sets relevance, and stable-sorts by relevance then quality.
func Rank(records []anime.Record, query, languagePreference string) {
	for i := range records {
		best := 0.0
		for _, variant := range variantsByPreference(&records[i], languagePreference) {
			if sim := Similarity(query, variant); sim > best {
				best = sim
			}
		}
		records[i].Quality.RelevanceScore = best * 100
	}

	sort.SliceStable(records, func(i, j int) bool {
		if records[i].Quality.RelevanceScore != records[j].Quality.RelevanceScore {
			return records[i].Quality.RelevanceScore > records[j].Quality.RelevanceScore
		}
		return records[i].Quality.Score > records[j].Quality.Score
	})
}
