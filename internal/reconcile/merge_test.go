package reconcile

import (
	"testing"

	"github.com/kitsurai/torii/internal/anime"
)

func sourceRecord(providerName, title string) anime.Record {
	rec := anime.Record{
		Titles:      anime.Titles{Main: title},
		Status:      anime.StatusFinished,
		Type:        anime.TypeTV,
		ExternalIDs: map[string]string{providerName: "1"},
		Provenance: anime.Provenance{
			PrimaryProvider: providerName,
			ProvidersUsed:   []string{providerName},
		},
	}
	return rec
}

func newTestMerger() *Merger {
	return NewMerger("jikan", "anilist")
}

func TestMergeSingleMemberPassesThrough(t *testing.T) {
	rec := sourceRecord("jikan", "Monster")
	rec.Episodes = 74

	got := newTestMerger().Merge([]anime.Record{rec})
	if got.Episodes != 74 || got.Titles.Main != "Monster" {
		t.Errorf("single-member group must pass through unchanged, got %+v", got)
	}
}

func TestMergeFillsMissingTitlesAndUnionsSynonyms(t *testing.T) {
	a := sourceRecord("jikan", "Naruto")
	a.Titles.Japanese = "ナルト"
	a.Titles.Synonyms = []string{"NARUTO"}
	a.Quality.Score = 0.8

	b := sourceRecord("anilist", "NARUTO")
	b.Titles.Romaji = "Naruto"
	b.Titles.Native = "ナルト"
	b.Titles.Synonyms = []string{"NARUTO", "Naruto 2002"}
	b.Quality.Score = 0.5

	got := newTestMerger().Merge([]anime.Record{a, b})

	if got.Titles.Main != "Naruto" {
		t.Errorf("Main = %q, want seed (higher quality) title", got.Titles.Main)
	}
	if got.Titles.Romaji != "Naruto" || got.Titles.Native != "ナルト" {
		t.Errorf("missing variants not filled: %+v", got.Titles)
	}
	if len(got.Titles.Synonyms) != 2 {
		t.Errorf("Synonyms = %v, want exact-dedup union of 2", got.Titles.Synonyms)
	}
}

func TestMergePrefersLongerSynopsis(t *testing.T) {
	a := sourceRecord("jikan", "X")
	a.Synopsis = "Short."
	a.Quality.Score = 0.9

	b := sourceRecord("anilist", "X")
	b.Synopsis = "A considerably longer synopsis with actual detail about the plot."

	got := newTestMerger().Merge([]anime.Record{a, b})
	if got.Synopsis != b.Synopsis {
		t.Errorf("Synopsis = %q, want the longer one", got.Synopsis)
	}
}

func TestMergeOverwritesEnumsOnlyWhenUnknown(t *testing.T) {
	a := sourceRecord("jikan", "X")
	a.Status = anime.StatusUnknown
	a.Type = anime.TypeTV
	a.Quality.Score = 0.9

	b := sourceRecord("anilist", "X")
	b.Status = anime.StatusFinished
	b.Type = anime.TypeMovie

	got := newTestMerger().Merge([]anime.Record{a, b})
	if got.Status != anime.StatusFinished {
		t.Errorf("Status = %q, want unknown overwritten", got.Status)
	}
	if got.Type != anime.TypeTV {
		t.Errorf("Type = %q, want populated value kept", got.Type)
	}
}

func TestMergeStudioUnionCollapsesPunctuation(t *testing.T) {
	a := sourceRecord("jikan", "X")
	a.Studios = []string{"J.C.Staff", "Bones"}
	a.Quality.Score = 0.9

	b := sourceRecord("anilist", "X")
	b.Studios = []string{"J.C.STAFF"}

	got := newTestMerger().Merge([]anime.Record{a, b})
	if len(got.Studios) != 2 {
		t.Errorf("Studios = %v, want exactly 2 unique studios", got.Studios)
	}
}

func TestMergeWeightedScore(t *testing.T) {
	a := sourceRecord("jikan", "X")
	a.Score = 8.0
	a.Favorites = 200
	a.Quality.Score = 0.9

	b := sourceRecord("anilist", "X")
	b.Score = 6.0
	b.Favorites = 100

	got := newTestMerger().Merge([]anime.Record{a, b})
	// (8*200 + 6*100) / 300 = 7.33
	if got.Score != 7.33 {
		t.Errorf("Score = %v, want 7.33", got.Score)
	}
	if got.Favorites != 300 {
		t.Errorf("Favorites = %d, want summed 300", got.Favorites)
	}
}

func TestMergeScoreDefaultsWeightWhenFavoritesMissing(t *testing.T) {
	a := sourceRecord("jikan", "X")
	a.Score = 8.0
	a.Quality.Score = 0.9

	b := sourceRecord("anilist", "X")
	b.Score = 6.0

	got := newTestMerger().Merge([]anime.Record{a, b})
	// Equal default weights: plain average.
	if got.Score != 7.0 {
		t.Errorf("Score = %v, want 7.0", got.Score)
	}
}

func TestMergeRatingAndImageFromPreferredProvider(t *testing.T) {
	a := sourceRecord("kitsu", "X")
	a.AgeRating = "G"
	a.ImageURL = "https://kitsu.example/poster.png"
	a.Quality.Score = 0.9

	b := sourceRecord("jikan", "X")
	b.AgeRating = "PG-13"
	b.ImageURL = "https://jikan.example/poster.jpg"

	c := sourceRecord("anilist", "X")
	c.ImageURL = "https://anilist.example/cover.jpg"
	c.BannerURL = "https://anilist.example/banner.jpg"

	got := newTestMerger().Merge([]anime.Record{a, b, c})
	if got.AgeRating != "PG-13" {
		t.Errorf("AgeRating = %q, want preferred provider jikan", got.AgeRating)
	}
	if got.ImageURL != "https://anilist.example/cover.jpg" {
		t.Errorf("ImageURL = %q, want preferred provider anilist", got.ImageURL)
	}
	if got.BannerURL != "https://anilist.example/banner.jpg" {
		t.Errorf("BannerURL = %q, want banner-capable provider only", got.BannerURL)
	}
}

func TestMergeIgnoresBannerFromNonBannerProvider(t *testing.T) {
	a := sourceRecord("jikan", "X")
	a.BannerURL = "https://jikan.example/banner.jpg"
	a.Quality.Score = 0.9

	b := sourceRecord("kitsu", "X")

	got := newTestMerger().Merge([]anime.Record{a, b})
	if got.BannerURL != "" {
		t.Errorf("BannerURL = %q, want empty (jikan supplies no real banners)", got.BannerURL)
	}
}

func TestMergeProvenance(t *testing.T) {
	a := sourceRecord("jikan", "X")
	a.Quality.Score = 0.8
	b := sourceRecord("anilist", "X")
	b.Quality.Score = 0.6
	b.ExternalIDs = map[string]string{"anilist": "77"}

	got := newTestMerger().Merge([]anime.Record{a, b})

	if len(got.Provenance.ProvidersUsed) != 2 {
		t.Errorf("ProvidersUsed = %v, want both sources", got.Provenance.ProvidersUsed)
	}
	// avg(0.8, 0.6) + 0.1 extra-source bonus.
	if got.Provenance.Confidence != 0.8 {
		t.Errorf("Confidence = %v, want 0.8", got.Provenance.Confidence)
	}
	if got.ExternalIDs["jikan"] != "1" || got.ExternalIDs["anilist"] != "77" {
		t.Errorf("ExternalIDs = %v, want union", got.ExternalIDs)
	}
}

func TestMergeIsDeterministic(t *testing.T) {
	a := sourceRecord("jikan", "X")
	a.Quality.Score = 0.8
	a.Studios = []string{"Bones"}
	b := sourceRecord("anilist", "X")
	b.Quality.Score = 0.6
	b.Studios = []string{"BONES", "Kyoto Animation"}

	first := newTestMerger().Merge([]anime.Record{a, b})
	second := newTestMerger().Merge([]anime.Record{a, b})

	if first.Score != second.Score || len(first.Studios) != len(second.Studios) ||
		first.Provenance.Confidence != second.Provenance.Confidence {
		t.Errorf("merge not deterministic: %+v vs %+v", first, second)
	}
}
