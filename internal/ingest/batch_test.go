package ingest

import (
	"context"
	"testing"

	"github.com/kitsurai/torii/internal/anime"
	"github.com/kitsurai/torii/internal/provider"
)

func TestIngestBatchClassifiesItems(t *testing.T) {
	known := completeRecord("Known Show", "jikan", "1")
	fx := newFixture(t, &fakeAdapter{
		name: provider.NameJikan,
		results: map[string][]anime.Record{
			"Known Show": {known},
		},
	})

	existing := completeRecord("Already Stored", "jikan", "2")
	existing.ID = "existing-1"
	if err := fx.repo.Save(context.Background(), &existing); err != nil {
		t.Fatal(err)
	}

	result := fx.pipeline.IngestBatch(context.Background(),
		[]string{"Known Show", "Already Stored", "Unknown Show"}, Options{Source: "batch"})

	if len(result.Imported) != 1 || result.Imported[0] != "Known Show" {
		t.Errorf("Imported = %v", result.Imported)
	}
	if len(result.Skipped) != 1 || result.Skipped[0] != "Already Stored" {
		t.Errorf("Skipped = %v", result.Skipped)
	}
	if len(result.Failed) != 1 || result.Failed[0].Title != "Unknown Show" {
		t.Errorf("Failed = %v", result.Failed)
	}
	if result.Failed[0].Reason == "" {
		t.Error("failure must carry a reason")
	}
}

func TestIngestBatchStopsSchedulingOnCancel(t *testing.T) {
	fx := newFixture(t, &fakeAdapter{name: provider.NameJikan})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	result := fx.pipeline.IngestBatch(ctx, []string{"A", "B", "C"}, Options{})
	if len(result.Imported) != 0 {
		t.Errorf("canceled batch imported %v", result.Imported)
	}
}
