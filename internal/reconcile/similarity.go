package reconcile

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// jaroWinklerPrefixScale is the standard Winkler bonus weight for a shared
// prefix of up to four characters.
const jaroWinklerPrefixScale = 0.1

// containmentFloor is the base score for a whole-word prefix match. A short
// franchise query against a long season title ("naruto" vs
// "naruto: shippuden") scores poorly on pure edit metrics, so containment
// floors it near the top while keeping it below an exact match.
const containmentFloor = 0.9

// Similarity combines Jaro-Winkler with normalized edit similarity,
// weighted 0.7/0.3, floored by whole-word prefix containment. Both inputs
// are compared case-insensitively. Returns a value in [0, 1].
func Similarity(a, b string) float64 {
	a = strings.ToLower(strings.TrimSpace(a))
	b = strings.ToLower(strings.TrimSpace(b))
	if a == b {
		return 1
	}
	if a == "" || b == "" {
		return 0
	}
	combined := 0.7*jaroWinkler(a, b) + 0.3*editSimilarity(a, b)
	if floor := prefixContainment(a, b); floor > combined {
		return floor
	}
	return combined
}

// prefixContainment returns a floor score when the shorter string is a
// whole-word prefix of the longer one, growing with the covered share of
// the longer title. Returns 0 when the prefix ends mid-word ("b" against
// "bleach" is not a containment match).
func prefixContainment(a, b string) float64 {
	short, long := a, b
	if len(short) > len(long) {
		short, long = long, short
	}
	if !strings.HasPrefix(long, short) {
		return 0
	}
	next, _ := utf8.DecodeRuneInString(long[len(short):])
	if unicode.IsLetter(next) || unicode.IsDigit(next) {
		return 0
	}
	return containmentFloor + (1-containmentFloor)*float64(len(short))/float64(len(long))
}

func jaroWinkler(a, b string) float64 {
	j := jaro(a, b)
	if j == 0 {
		return 0
	}

	prefix := 0
	for i := 0; i < len(a) && i < len(b) && i < 4; i++ {
		if a[i] != b[i] {
			break
		}
		prefix++
	}
	return j + float64(prefix)*jaroWinklerPrefixScale*(1-j)
}

func jaro(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	la, lb := len(ra), len(rb)

	window := max(la, lb)/2 - 1
	if window < 0 {
		window = 0
	}

	matchedA := make([]bool, la)
	matchedB := make([]bool, lb)
	matches := 0
	for i := 0; i < la; i++ {
		lo := max(0, i-window)
		hi := min(lb, i+window+1)
		for j := lo; j < hi; j++ {
			if matchedB[j] || ra[i] != rb[j] {
				continue
			}
			matchedA[i] = true
			matchedB[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	j := 0
	for i := 0; i < la; i++ {
		if !matchedA[i] {
			continue
		}
		for !matchedB[j] {
			j++
		}
		if ra[i] != rb[j] {
			transpositions++
		}
		j++
	}

	m := float64(matches)
	return (m/float64(la) + m/float64(lb) + (m-float64(transpositions)/2)/m) / 3
}

// editSimilarity is 1 - levenshtein/maxLen.
func editSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(ra, rb))/float64(longest)
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(a); i++ {
		curr[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, min(curr[j-1]+1, prev[j-1]+cost))
		}
		prev, curr = curr, prev
	}
	return prev[len(b)]
}
