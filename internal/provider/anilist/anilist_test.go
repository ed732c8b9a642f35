package anilist

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/kitsurai/torii/internal/provider"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile("testdata/" + name)
	if err != nil {
		t.Fatalf("loading fixture %s: %v", name, err)
	}
	return data
}

// newTestServer routes GraphQL POSTs by inspecting the query text and
// variables, the way the single AniList endpoint multiplexes operations.
func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		body, _ := io.ReadAll(r.Body)
		var req graphqlRequest
		if err := json.Unmarshal(body, &req); err != nil {
			t.Errorf("malformed request body: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		switch {
		case strings.Contains(req.Query, "Page("):
			if req.Variables["search"] == "no-results-query" {
				w.Write([]byte(`{"data":{"Page":{"media":[]}}}`))
				return
			}
			w.Write(loadFixture(t, "search_naruto.json"))

		case strings.Contains(req.Query, "relations"):
			w.Write(loadFixture(t, "relations_20.json"))

		case strings.Contains(req.Query, "Media("):
			if id, ok := req.Variables["id"].(float64); ok && id == 404 {
				w.WriteHeader(http.StatusNotFound)
				w.Write(loadFixture(t, "not_found.json"))
				return
			}
			w.Write(loadFixture(t, "media_20.json"))

		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	}))
}

func newTestAdapter(t *testing.T, baseURL string) *Adapter {
	t.Helper()
	limiter := provider.NewRateLimiterMap(nil)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewWithBaseURL(limiter, logger, baseURL)
}

func TestName(t *testing.T) {
	a := newTestAdapter(t, "http://localhost")
	if a.Name() != provider.NameAniList {
		t.Errorf("expected %q, got %q", provider.NameAniList, a.Name())
	}
}

func TestSearch(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	records, err := a.Search(context.Background(), "naruto", 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("expected 1 result, got %d", len(records))
	}

	rec := records[0]
	if rec.Titles.Main != "NARUTO" {
		t.Errorf("Title = %q, want romaji as main", rec.Titles.Main)
	}
	if rec.Titles.Native != "ナルト" {
		t.Errorf("Native = %q", rec.Titles.Native)
	}
	if rec.Score != 7.9 {
		t.Errorf("Score = %v, want 7.9 (averageScore scaled to 0-10)", rec.Score)
	}
	if rec.Status != "finished" {
		t.Errorf("Status = %q", rec.Status)
	}
	if rec.AiredFrom != "2002-10-03" {
		t.Errorf("AiredFrom = %q", rec.AiredFrom)
	}
	if rec.BannerURL == "" {
		t.Error("expected banner URL")
	}
	if rec.TrailerURL != "https://www.youtube.com/watch?v=-G9BqkgZXRA" {
		t.Errorf("TrailerURL = %q", rec.TrailerURL)
	}
	if strings.Contains(rec.Synopsis, "<br>") {
		t.Error("synopsis should have HTML markup stripped")
	}
	if rec.ExternalIDs["anilist"] != "20" {
		t.Errorf("ExternalIDs = %v", rec.ExternalIDs)
	}
	if len(rec.Studios) != 1 || rec.Studios[0] != "Studio Pierrot" {
		t.Errorf("Studios = %v", rec.Studios)
	}
}

func TestSearchEmpty(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	records, err := a.Search(context.Background(), "no-results-query", 10)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(records) != 0 {
		t.Errorf("expected 0 results, got %d", len(records))
	}
}

func TestGetByID(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	rec, err := a.GetByID(context.Background(), "20")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if rec.Titles.English != "Naruto" {
		t.Errorf("English = %q", rec.Titles.English)
	}
	if rec.ImageURL != "https://s4.anilist.co/file/anilistcdn/media/anime/cover/large/bx20-dE6UHbFFg1A5.jpg" {
		t.Errorf("ImageURL = %q, want extraLarge variant", rec.ImageURL)
	}
}

func TestGetByIDNotFound(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	_, err := a.GetByID(context.Background(), "404")
	var notFound *provider.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %T: %v", err, err)
	}
}

func TestGetByIDRejectsNonNumericID(t *testing.T) {
	a := newTestAdapter(t, "http://localhost:1")

	_, err := a.GetByID(context.Background(), "not-an-id")
	var notFound *provider.ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %T: %v", err, err)
	}
}

func TestGetRelationsDeep(t *testing.T) {
	srv := newTestServer(t)
	defer srv.Close()
	a := newTestAdapter(t, srv.URL)

	relations, err := a.GetRelations(context.Background(), "20", true)
	if err != nil {
		t.Fatalf("GetRelations: %v", err)
	}
	// Manga adaptation is skipped; sequel and side story remain.
	if len(relations) != 2 {
		t.Fatalf("expected 2 relations, got %d: %+v", len(relations), relations)
	}

	sequel := relations[0]
	if sequel.Type != "SEQUEL" || sequel.TargetID != "1735" {
		t.Errorf("sequel = %+v", sequel)
	}
	if sequel.StartYear != 2007 {
		t.Errorf("sequel.StartYear = %d", sequel.StartYear)
	}
	if len(sequel.Relations) != 1 || sequel.Relations[0].TargetID != "21" {
		t.Errorf("nested relations = %+v, want Boruto one hop deeper", sequel.Relations)
	}

	side := relations[1]
	if side.Type != "SIDE_STORY" || side.Format != "MOVIE" {
		t.Errorf("side story = %+v", side)
	}
}

func TestStripMarkup(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"plain text", "plain text"},
		{"line<br>break", "line\nbreak"},
		{"<i>italic</i> note", "italic note"},
		{"trailing space <br> ", "trailing space"},
	}
	for _, tt := range tests {
		if got := stripMarkup(tt.in); got != tt.want {
			t.Errorf("stripMarkup(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFuzzyDateString(t *testing.T) {
	tests := []struct {
		date fuzzyDate
		want string
	}{
		{fuzzyDate{2002, 10, 3}, "2002-10-03"},
		{fuzzyDate{2002, 10, 0}, "2002-10"},
		{fuzzyDate{2002, 0, 0}, "2002"},
		{fuzzyDate{}, ""},
	}
	for _, tt := range tests {
		if got := tt.date.String(); got != tt.want {
			t.Errorf("fuzzyDate%+v.String() = %q, want %q", tt.date, got, tt.want)
		}
	}
}
