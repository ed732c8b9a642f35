package relations

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/config"
	"github.com/kitsurai/torii/internal/database"
	"github.com/kitsurai/torii/internal/ingest"
	"github.com/kitsurai/torii/internal/jobs"
	"github.com/kitsurai/torii/internal/provider"
	"github.com/kitsurai/torii/internal/reconcile"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// relAdapter is a fake provider with franchise support.
type relAdapter struct {
	name      provider.Name
	byID      map[string]*anime.Record
	relations map[string][]provider.Relation
}

func (a *relAdapter) Name() provider.Name { return a.name }

func (a *relAdapter) Search(ctx context.Context, query string, limit int) ([]anime.Record, error) {
	return nil, nil
}

func (a *relAdapter) GetByID(ctx context.Context, id string) (*anime.Record, error) {
	rec, ok := a.byID[id]
	if !ok {
		return nil, &provider.ErrNotFound{Provider: a.name, ID: id}
	}
	cp := *rec
	return &cp, nil
}

func (a *relAdapter) GetTop(ctx context.Context, page, limit int) ([]anime.Record, error) {
	return nil, nil
}

func (a *relAdapter) GetSeasonal(ctx context.Context, year int, season provider.Season, page int) ([]anime.Record, error) {
	return nil, nil
}

func (a *relAdapter) GetRelations(ctx context.Context, id string, deep bool) ([]provider.Relation, error) {
	rels, ok := a.relations[id]
	if !ok {
		return nil, &provider.ErrNotFound{Provider: a.name, ID: id}
	}
	return rels, nil
}

type fixture struct {
	service *Service
	store   *Store
	repo    *anime.Repository
}

func newFixture(t *testing.T, adapters ...provider.Adapter) *fixture {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatal(err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	registry := provider.NewRegistry()
	priorities := make(map[provider.Name]int)
	for i, a := range adapters {
		registry.Register(a)
		priorities[a.Name()] = i + 1
	}
	cache := provider.NewCache(time.Minute, time.Minute, 100, testLogger())
	health := provider.NewHealthRegistry(priorities, 3, 0.5, time.Minute, testLogger())
	orch := provider.NewOrchestrator(registry, cache, health, testLogger())

	cfg := config.Default()
	repo := anime.NewRepository(db)
	queue := jobs.NewStore(db)
	reconciler := reconcile.New(cfg.Reconcile, testLogger())
	pipeline := ingest.NewPipeline(repo, orch, reconciler, queue, nil, cfg.Quality, cfg.Jobs.MaxAttempts, testLogger())

	store := NewStore(db)
	service := NewService(store, repo, orch, pipeline, nil, testLogger())
	return &fixture{service: service, store: store, repo: repo}
}

func seedAnime(t *testing.T, repo *anime.Repository, id, title, providerName, externalID string) *anime.Record {
	t.Helper()
	rec := &anime.Record{
		ID:          id,
		Titles:      anime.Titles{Main: title},
		ExternalIDs: map[string]string{providerName: externalID},
		Provenance:  anime.Provenance{PrimaryProvider: providerName},
	}
	if err := repo.Save(context.Background(), rec); err != nil {
		t.Fatal(err)
	}
	return rec
}

func TestCategorize(t *testing.T) {
	tests := []struct {
		relationType string
		format       string
		want         Category
	}{
		{"SEQUEL", "TV", CategoryMainStory},
		{"PREQUEL", "TV", CategoryMainStory},
		{"PARENT_STORY", "TV", CategoryMainStory},
		{"FULL_STORY", "TV", CategoryMainStory},
		{"SIDE_STORY", "TV", CategorySideStory},
		{"SPIN_OFF", "TV", CategorySideStory},
		{"ALTERNATIVE", "TV", CategorySideStory},
		{"OTHER", "MOVIE", CategoryMovie},
		{"SUMMARY", "OVA", CategoryOVA},
		{"OTHER", "SPECIAL", CategoryOVA},
		{"CHARACTER", "TV", CategoryOther},
		// Type wins over format.
		{"SEQUEL", "MOVIE", CategoryMainStory},
	}
	for _, tt := range tests {
		if got := Categorize(tt.relationType, tt.format); got != tt.want {
			t.Errorf("Categorize(%q, %q) = %q, want %q", tt.relationType, tt.format, got, tt.want)
		}
	}
}

func TestDiscoverPersistsEdgesAndIngestsTargets(t *testing.T) {
	adapter := &relAdapter{
		name: provider.NameAniList,
		byID: map[string]*anime.Record{
			"21": {
				Titles:      anime.Titles{Main: "Sequel Season"},
				StartYear:   2007,
				ExternalIDs: map[string]string{"anilist": "21"},
				Provenance:  anime.Provenance{PrimaryProvider: "anilist"},
			},
		},
		relations: map[string][]provider.Relation{
			"20": {
				{TargetID: "21", TargetTitle: "Sequel Season", Type: "SEQUEL", Format: "TV", Provider: provider.NameAniList},
				{TargetID: "442", TargetTitle: "The Movie", Type: "OTHER", Format: "MOVIE", Provider: provider.NameAniList},
			},
		},
	}
	fx := newFixture(t, adapter)
	seedAnime(t, fx.repo, "anime-1", "Seed Show", "anilist", "20")

	edges, err := fx.service.Discover(context.Background(), "anime-1")
	if err != nil {
		t.Fatalf("Discover: %v", err)
	}
	if len(edges) != 2 {
		t.Fatalf("got %d edges, want 2", len(edges))
	}
	if edges[0].Category != CategoryMainStory {
		t.Errorf("sequel category = %q", edges[0].Category)
	}
	if edges[1].Category != CategoryMovie {
		t.Errorf("movie category = %q", edges[1].Category)
	}

	stored, err := fx.store.ListByAnime(context.Background(), "anime-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(stored) != 2 {
		t.Errorf("stored %d edges, want 2", len(stored))
	}

	// The resolvable target must have been pulled into the catalog.
	ingested, err := fx.repo.FindByExternalID(context.Background(), "anilist", "21")
	if err != nil || ingested == nil {
		t.Errorf("discovered sequel was not ingested: %v", err)
	}
}

func TestBasicPrefersStoreOverProvider(t *testing.T) {
	adapter := &relAdapter{name: provider.NameAniList, relations: map[string][]provider.Relation{}}
	fx := newFixture(t, adapter)
	seedAnime(t, fx.repo, "anime-1", "Seed Show", "anilist", "20")

	want := []Edge{{
		TargetExternalID: "21",
		Type:             "SEQUEL",
		Category:         CategoryMainStory,
		Provider:         "anilist",
	}}
	if err := fx.store.Replace(context.Background(), "anime-1", want); err != nil {
		t.Fatal(err)
	}

	// The adapter has no relations for id 20, so any provider call would
	// error; the stored edges must satisfy the request.
	edges, err := fx.service.Basic(context.Background(), "anime-1")
	if err != nil {
		t.Fatalf("Basic: %v", err)
	}
	if len(edges) != 1 || edges[0].TargetExternalID != "21" {
		t.Errorf("edges = %+v", edges)
	}
}

func TestDetailedFallsBackToPlaceholder(t *testing.T) {
	adapter := &relAdapter{
		name: provider.NameAniList,
		byID: map[string]*anime.Record{
			"21": {
				Titles:      anime.Titles{Main: "Sequel Season"},
				Episodes:    12,
				StartYear:   2007,
				ExternalIDs: map[string]string{"anilist": "21"},
			},
		},
		relations: map[string][]provider.Relation{
			"20": {
				{TargetID: "21", TargetTitle: "Sequel Season", Type: "SEQUEL", Format: "TV", Provider: provider.NameAniList},
				{TargetID: "9999", Type: "SIDE_STORY", Format: "TV", Provider: provider.NameAniList},
			},
		},
	}
	fx := newFixture(t, adapter)
	seedAnime(t, fx.repo, "anime-1", "Seed Show", "anilist", "20")

	details, err := fx.service.Detailed(context.Background(), "anime-1")
	if err != nil {
		t.Fatalf("Detailed: %v", err)
	}
	if len(details) != 2 {
		t.Fatalf("got %d details, want 2", len(details))
	}

	byTarget := make(map[string]Detail)
	for _, d := range details {
		byTarget[d.Edge.TargetExternalID] = d
	}
	resolved := byTarget["21"]
	if resolved.Placeholder || resolved.Title != "Sequel Season" || resolved.Episodes != 12 {
		t.Errorf("resolved detail = %+v", resolved)
	}
	unresolved := byTarget["9999"]
	if !unresolved.Placeholder {
		t.Errorf("unresolvable target must degrade to a placeholder, got %+v", unresolved)
	}
}

func TestFranchiseTraversalIsCycleSafe(t *testing.T) {
	// 20 → 21 → 20 (cycle) and 21 → 442; the traversal must terminate and
	// list each target once.
	adapter := &relAdapter{
		name: provider.NameAniList,
		relations: map[string][]provider.Relation{
			"20": {
				{
					TargetID: "21", TargetTitle: "Sequel", Type: "SEQUEL", Format: "TV",
					StartYear: 2007, Provider: provider.NameAniList,
					Relations: []provider.Relation{
						{TargetID: "20", TargetTitle: "Seed Show", Type: "PREQUEL", Format: "TV", StartYear: 2002, Provider: provider.NameAniList},
						{TargetID: "442", TargetTitle: "The Movie", Type: "OTHER", Format: "MOVIE", StartYear: 2004, Provider: provider.NameAniList},
					},
				},
				{TargetID: "761", TargetTitle: "Early Special", Type: "OTHER", Format: "SPECIAL", StartYear: 2003, Provider: provider.NameAniList},
				{TargetID: "762", TargetTitle: "Undated Special", Type: "OTHER", Format: "SPECIAL", Provider: provider.NameAniList},
			},
		},
	}
	fx := newFixture(t, adapter)
	seedAnime(t, fx.repo, "anime-1", "Seed Show", "anilist", "20")

	franchise, err := fx.service.Franchise(context.Background(), "anime-1")
	if err != nil {
		t.Fatalf("Franchise: %v", err)
	}
	if franchise.Total != 4 {
		t.Errorf("Total = %d, want 4 (seed excluded, no duplicates)", franchise.Total)
	}
	if n := len(franchise.Categories[CategoryMainStory]); n != 1 {
		t.Errorf("main story entries = %d, want 1", n)
	}
	if n := len(franchise.Categories[CategoryMovie]); n != 1 {
		t.Errorf("movie entries = %d, want 1", n)
	}

	specials := franchise.Categories[CategoryOVA]
	if len(specials) != 2 {
		t.Fatalf("ova/special entries = %d, want 2", len(specials))
	}
	if specials[0].Title != "Early Special" || specials[1].Title != "Undated Special" {
		t.Errorf("unknown year must sort last, got %q then %q", specials[0].Title, specials[1].Title)
	}
}

func TestFranchiseCachesResult(t *testing.T) {
	adapter := &relAdapter{
		name: provider.NameAniList,
		relations: map[string][]provider.Relation{
			"20": {{TargetID: "21", TargetTitle: "Sequel", Type: "SEQUEL", Format: "TV", Provider: provider.NameAniList}},
		},
	}
	fx := newFixture(t, adapter)
	seedAnime(t, fx.repo, "anime-1", "Seed Show", "anilist", "20")

	first, err := fx.service.Franchise(context.Background(), "anime-1")
	if err != nil {
		t.Fatal(err)
	}

	// Remove the provider data; the cached answer must still come back.
	delete(adapter.relations, "20")
	second, err := fx.service.Franchise(context.Background(), "anime-1")
	if err != nil {
		t.Fatalf("cached Franchise: %v", err)
	}
	if second.Total != first.Total {
		t.Errorf("cached Total = %d, want %d", second.Total, first.Total)
	}

	fx.service.Invalidate("anime-1")
	if _, err := fx.service.Franchise(context.Background(), "anime-1"); err == nil {
		t.Error("after invalidation the provider miss must surface")
	}
}
