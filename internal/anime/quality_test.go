package anime

import "testing"

func TestAssessQualityCompleteRecord(t *testing.T) {
	rec := testRecord("Monster")
	rec.AgeRating = "R"
	rec.ImageURL = "https://example.org/monster.jpg"
	rec.AiredFrom = "2004-04-07"

	AssessQuality(rec)

	if rec.Quality.Completeness != 1.0 {
		t.Errorf("Completeness = %v, want 1.0 (missing %v)", rec.Quality.Completeness, rec.Quality.MissingFields)
	}
	if rec.Quality.Consistency != 1.0 {
		t.Errorf("Consistency = %v, want 1.0", rec.Quality.Consistency)
	}
	if rec.Tier != TierGold {
		t.Errorf("Tier = %q, want gold", rec.Tier)
	}
}

func TestAssessQualityMissingFields(t *testing.T) {
	rec := &Record{Titles: Titles{Main: "Unknown Show"}, Status: StatusUnknown, Type: TypeUnknown}
	AssessQuality(rec)

	if rec.Quality.Completeness >= 0.5 {
		t.Errorf("Completeness = %v, want < 0.5", rec.Quality.Completeness)
	}
	if len(rec.Quality.MissingFields) == 0 {
		t.Error("expected missing fields to be reported")
	}
	if rec.Tier == TierGold {
		t.Error("sparse record must not be gold tier")
	}
}

func TestAssessConsistencyPenalties(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Record)
		wantLT float64
	}{
		{"movie with many episodes", func(r *Record) { r.Type = TypeMovie; r.Episodes = 24 }, 1.0},
		{"upcoming with score", func(r *Record) { r.Status = StatusUpcoming; r.Score = 8.0; r.AiredFrom = "" }, 1.0},
		{"score out of range", func(r *Record) { r.Score = 11.5 }, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := testRecord("X")
			tt.mutate(rec)
			if got := assessConsistency(rec); got >= tt.wantLT {
				t.Errorf("consistency = %v, want < %v", got, tt.wantLT)
			}
		})
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		name      string
		qualities []float64
		want      float64
	}{
		{"no sources", nil, 0},
		{"single source", []float64{0.6}, 0.6},
		{"two sources adds bonus", []float64{0.6, 0.8}, 0.8}, // avg 0.7 + 0.1
		{"bonus capped at 0.3", []float64{0.5, 0.5, 0.5, 0.5, 0.5, 0.5}, 0.8},
		{"capped at 1.0", []float64{0.95, 0.95, 0.95, 0.95}, 1.0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Confidence(tt.qualities); got != tt.want {
				t.Errorf("Confidence(%v) = %v, want %v", tt.qualities, got, tt.want)
			}
		})
	}
}

func TestTierFor(t *testing.T) {
	tests := []struct {
		score float64
		want  Tier
	}{
		{0.9, TierGold},
		{0.85, TierGold},
		{0.7, TierSilver},
		{0.5, TierBronze},
		{0.1, TierStub},
	}
	for _, tt := range tests {
		if got := tierFor(tt.score); got != tt.want {
			t.Errorf("tierFor(%v) = %q, want %q", tt.score, got, tt.want)
		}
	}
}
