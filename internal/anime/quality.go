package anime

import "math"

// scoredField describes one field contributing to the completeness score.
type scoredField struct {
	name    string
	weight  float64
	present func(*Record) bool
}

var scoredFields = []scoredField{
	{"title", 0.15, func(r *Record) bool { return r.Titles.Main != "" }},
	{"synopsis", 0.20, func(r *Record) bool { return len(r.Synopsis) >= 40 }},
	{"episodes", 0.10, func(r *Record) bool { return r.Episodes > 0 }},
	{"genres", 0.15, func(r *Record) bool { return len(r.Genres) > 0 }},
	{"studios", 0.10, func(r *Record) bool { return len(r.Studios) > 0 }},
	{"score", 0.10, func(r *Record) bool { return r.Score > 0 }},
	{"image", 0.10, func(r *Record) bool { return r.ImageURL != "" }},
	{"age_rating", 0.05, func(r *Record) bool { return r.AgeRating != "" }},
	{"aired", 0.05, func(r *Record) bool { return r.AiredFrom != "" || r.StartYear > 0 }},
}

// AssessQuality recomputes the record's quality block in place. Relevance is
// left untouched; the reconciler owns it.
func AssessQuality(r *Record) {
	var completeness float64
	var missing []string
	for _, f := range scoredFields {
		if f.present(r) {
			completeness += f.weight
		} else {
			missing = append(missing, f.name)
		}
	}

	consistency := assessConsistency(r)

	r.Quality.Completeness = round2(completeness)
	r.Quality.Consistency = round2(consistency)
	r.Quality.MissingFields = missing
	// Composite score leans on completeness; consistency knocks off points
	// for internally contradictory data.
	r.Quality.Score = round2(0.7*completeness + 0.3*consistency)
	r.Tier = tierFor(r.Quality.Score)
}

// assessConsistency checks the record for internal contradictions.
func assessConsistency(r *Record) float64 {
	score := 1.0
	if r.Type == TypeMovie && r.Episodes > 1 {
		score -= 0.2
	}
	if r.Status == StatusFinished && r.AiredTo == "" && r.AiredFrom == "" {
		score -= 0.1
	}
	if r.Status == StatusUpcoming && r.Score > 0 {
		score -= 0.2
	}
	if r.Score < 0 || r.Score > 10 {
		score -= 0.3
	}
	if score < 0 {
		return 0
	}
	return score
}

func tierFor(score float64) Tier {
	switch {
	case score >= 0.85:
		return TierGold
	case score >= 0.65:
		return TierSilver
	case score >= 0.4:
		return TierBronze
	default:
		return TierStub
	}
}

// Confidence derives the provenance confidence for a merged record: the mean
// per-source quality plus 0.1 per extra contributing source (cap +0.3),
// capped at 1.0.
func Confidence(sourceQualities []float64) float64 {
	if len(sourceQualities) == 0 {
		return 0
	}
	var sum float64
	for _, q := range sourceQualities {
		sum += q
	}
	conf := sum / float64(len(sourceQualities))

	bonus := 0.1 * float64(len(sourceQualities)-1)
	if bonus > 0.3 {
		bonus = 0.3
	}
	conf += bonus
	if conf > 1 {
		conf = 1
	}
	return round2(conf)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
