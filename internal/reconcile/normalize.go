// Package reconcile turns per-provider result groups into a single record
// per logical title: normalize-and-group, field merge, fuzzy relevance
// ranking, quality filtering.
package reconcile

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// formatTokens are dropped from titles before grouping: media-format and
// season markers that differ across providers for the same logical title.
var formatTokens = map[string]bool{
	"tv":      true,
	"movie":   true,
	"ova":     true,
	"ona":     true,
	"special": true,
	"season":  true,
	"part":    true,
	"cour":    true,
}

// stopWords are skipped when picking the significant words of a long
// title.
var stopWords = map[string]bool{
	"the":  true,
	"and":  true,
	"for":  true,
	"with": true,
	"from": true,
	"that": true,
	"this": true,
	"wo":   true,
	"no":   true,
	"ni":   true,
}

// Normalizer reduces title variants to a dedup group key.
type Normalizer struct {
	franchiseKeywords []string
	fold              transform.Transformer
}

// NewNormalizer creates a normalizer. Franchise keywords collapse long
// title variants ("Naruto Shippuden the Movie 3: ...") into one group.
func NewNormalizer(franchiseKeywords []string) *Normalizer {
	keywords := make([]string, 0, len(franchiseKeywords))
	for _, kw := range franchiseKeywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" {
			keywords = append(keywords, kw)
		}
	}
	return &Normalizer{
		franchiseKeywords: keywords,
		fold:              transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
	}
}

// Key normalizes a title to its dedup group key: lowercase, accents
// folded, format and season tokens stripped, punctuation removed. Titles
// longer than four words collapse to a franchise keyword when one matches,
// else to their first two significant words.
func (n *Normalizer) Key(title string) string {
	lowered := strings.ToLower(strings.TrimSpace(title))
	if folded, _, err := transform.String(n.fold, lowered); err == nil {
		lowered = folded
	}

	var b strings.Builder
	for _, r := range lowered {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		default:
			b.WriteByte(' ')
		}
	}

	var words []string
	for _, w := range strings.Fields(b.String()) {
		if formatTokens[w] {
			continue
		}
		words = append(words, w)
	}

	if len(words) > 4 {
		joined := strings.Join(words, " ")
		for _, kw := range n.franchiseKeywords {
			if strings.Contains(joined, kw) {
				return kw
			}
		}
		words = significantWords(words, 2)
	}
	return strings.Join(words, " ")
}

// significantWords returns up to max words of length >= 4 that are not
// stop words, falling back to the leading words when none qualify.
func significantWords(words []string, max int) []string {
	var out []string
	for _, w := range words {
		if len(w) < 4 || stopWords[w] {
			continue
		}
		out = append(out, w)
		if len(out) == max {
			return out
		}
	}
	if len(out) > 0 {
		return out
	}
	if len(words) > max {
		return words[:max]
	}
	return words
}
