package ingest

import (
	"context"
	"strings"
	"testing"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/provider"
)

func TestGapFieldsHonorsThreshold(t *testing.T) {
	shortSynopsis := completeRecord("Show", "jikan", "1")
	shortSynopsis.Synopsis = strings.Repeat("x", 50)

	noGenres := completeRecord("Show", "jikan", "1")
	noGenres.Genres = nil

	tests := []struct {
		name      string
		rec       anime.Record
		threshold float64
		want      []string
	}{
		{"complete record has no gaps", completeRecord("Show", "jikan", "1"), 0.5, nil},
		{"short synopsis is a gap at the default", shortSynopsis, 0.5, []string{"synopsis"}},
		{"lower threshold accepts the short synopsis", shortSynopsis, 0.2, nil},
		{"absent field is a gap at any positive threshold", noGenres, 0.1, []string{"genres"}},
		{"zero threshold disables gap detection", anime.Record{}, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := gapFields(&tt.rec, tt.threshold)
			if len(got) != len(tt.want) {
				t.Fatalf("gapFields() = %v, want %v", got, tt.want)
			}
			for i := range tt.want {
				if got[i] != tt.want[i] {
					t.Errorf("gapFields()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEnhanceReplacesShortSynopsisFromDonor(t *testing.T) {
	rec := completeRecord("Planetes", "jikan", "329")
	rec.Synopsis = "Debris collectors in orbit."

	donor := completeRecord("Planetes", "anilist", "3002")
	donor.Synopsis = "In 2075, debris collectors aboard the station Seven clear " +
		"the orbital lanes of space junk while chasing their own ambitions " +
		"among the stars."

	fx := newFixture(t,
		&fakeAdapter{
			name: provider.NameJikan,
			byID: map[string]*anime.Record{"329": &rec},
		},
		&fakeAdapter{
			name:    provider.NameAniList,
			results: map[string][]anime.Record{"Planetes": {donor}},
		})

	result, err := fx.pipeline.IngestByID(context.Background(), provider.NameJikan, "329", Options{})
	if err != nil {
		t.Fatalf("IngestByID: %v", err)
	}
	if result.Record.Synopsis != donor.Synopsis {
		t.Errorf("Synopsis = %q, want the donor's longer text", result.Record.Synopsis)
	}

	stored, err := fx.repo.FindByTitleVariations(context.Background(), "Planetes")
	if err != nil || stored == nil {
		t.Fatalf("record not persisted: %v", err)
	}
	if stored.Synopsis != donor.Synopsis {
		t.Errorf("stored Synopsis = %q, want the donor's longer text", stored.Synopsis)
	}
}
