package jobs

import (
	"context"
	"sync"
	"testing"

	"github.com/kitsurai/torii/internal/database"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("opening test db: %v", err)
	}
	if err := database.Migrate(db); err != nil {
		t.Fatalf("running migrations: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db)
}

func TestEnqueueDequeue(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	queued, err := store.Enqueue(ctx, TypeEnrichment, AnimePayload{AnimeID: "a1"}, 0, 3)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if queued.Status != StatusPending || queued.Attempts != 0 {
		t.Errorf("queued = %+v, want pending with 0 attempts", queued)
	}

	claimed, err := store.Dequeue(ctx)
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if claimed == nil {
		t.Fatal("expected a job")
	}
	if claimed.ID != queued.ID {
		t.Errorf("claimed %s, want %s", claimed.ID, queued.ID)
	}
	if claimed.Status != StatusRunning {
		t.Errorf("Status = %q, want running", claimed.Status)
	}
	if claimed.Attempts != 1 {
		t.Errorf("Attempts = %d, want 1 after claim", claimed.Attempts)
	}
	if claimed.ClaimedAt.IsZero() {
		t.Error("ClaimedAt should be set")
	}

	var payload AnimePayload
	if err := claimed.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.AnimeID != "a1" {
		t.Errorf("AnimeID = %q", payload.AnimeID)
	}
}

func TestDequeueEmptyQueue(t *testing.T) {
	store := setupTestStore(t)

	job, err := store.Dequeue(context.Background())
	if err != nil {
		t.Fatalf("Dequeue: %v", err)
	}
	if job != nil {
		t.Errorf("expected nil job on empty queue, got %+v", job)
	}
}

func TestDequeueOrdersByPriorityThenAge(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	low, _ := store.Enqueue(ctx, TypeEnrichment, AnimePayload{AnimeID: "low"}, 0, 3)
	high, _ := store.Enqueue(ctx, TypeEnrichment, AnimePayload{AnimeID: "high"}, 5, 3)

	first, err := store.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if first.ID != high.ID {
		t.Errorf("first claim = %s, want high-priority job", first.ID)
	}

	second, err := store.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if second.ID != low.ID {
		t.Errorf("second claim = %s, want low-priority job", second.ID)
	}
}

func TestConcurrentDequeueClaimsEachJobOnce(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	const jobCount = 10
	for i := 0; i < jobCount; i++ {
		if _, err := store.Enqueue(ctx, TypeEnrichment, AnimePayload{AnimeID: "x"}, 0, 3); err != nil {
			t.Fatal(err)
		}
	}

	var mu sync.Mutex
	claimed := make(map[string]int)
	var wg sync.WaitGroup
	for g := 0; g < 4; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				job, err := store.Dequeue(ctx)
				if err != nil {
					t.Errorf("Dequeue: %v", err)
					return
				}
				if job == nil {
					return
				}
				mu.Lock()
				claimed[job.ID]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if len(claimed) != jobCount {
		t.Errorf("claimed %d distinct jobs, want %d", len(claimed), jobCount)
	}
	for id, n := range claimed {
		if n != 1 {
			t.Errorf("job %s claimed %d times", id, n)
		}
	}
}

func TestRetryTransitionsBackToPending(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	queued, _ := store.Enqueue(ctx, TypeEnrichment, AnimePayload{AnimeID: "a1"}, 0, 3)

	claimed, _ := store.Dequeue(ctx)
	if err := store.MarkRetry(ctx, claimed.ID, "provider timeout"); err != nil {
		t.Fatalf("MarkRetry: %v", err)
	}

	again, err := store.Dequeue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if again == nil || again.ID != queued.ID {
		t.Fatal("retried job should be claimable again")
	}
	if again.Attempts != 2 {
		t.Errorf("Attempts = %d, want 2 on second claim", again.Attempts)
	}
	if again.LastError != "provider timeout" {
		t.Errorf("LastError = %q", again.LastError)
	}
}

func TestMarkCompletedAndFailed(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	a, _ := store.Enqueue(ctx, TypeEnrichment, AnimePayload{AnimeID: "a"}, 0, 3)
	b, _ := store.Enqueue(ctx, TypeRelationsDiscovery, AnimePayload{AnimeID: "b"}, 0, 3)

	if err := store.MarkCompleted(ctx, a.ID); err != nil {
		t.Fatalf("MarkCompleted: %v", err)
	}
	if err := store.MarkFailed(ctx, b.ID, "boom"); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}

	gotA, _ := store.GetByID(ctx, a.ID)
	if gotA.Status != StatusCompleted {
		t.Errorf("a.Status = %q", gotA.Status)
	}
	gotB, _ := store.GetByID(ctx, b.ID)
	if gotB.Status != StatusFailed || gotB.LastError != "boom" {
		t.Errorf("b = %+v", gotB)
	}

	if err := store.MarkCompleted(ctx, "missing"); err == nil {
		t.Error("expected error for unknown job id")
	}
}

func TestStatistics(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := store.Enqueue(ctx, TypeEnrichment, AnimePayload{AnimeID: "x"}, 0, 3); err != nil {
			t.Fatal(err)
		}
	}
	claimed, _ := store.Dequeue(ctx)
	if err := store.MarkFailed(ctx, claimed.ID, "boom"); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Dequeue(ctx); err != nil {
		t.Fatal(err)
	}

	stats, err := store.Statistics(ctx)
	if err != nil {
		t.Fatalf("Statistics: %v", err)
	}
	if stats.Pending != 1 || stats.Running != 1 || stats.Failed != 1 || stats.Completed != 0 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestPendingList(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if _, err := store.Enqueue(ctx, TypeEnrichment, AnimePayload{AnimeID: "a"}, 0, 3); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Enqueue(ctx, TypeRelationsDiscovery, AnimePayload{AnimeID: "b"}, 2, 3); err != nil {
		t.Fatal(err)
	}

	pending, err := store.Pending(ctx, 10)
	if err != nil {
		t.Fatalf("Pending: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("got %d pending, want 2", len(pending))
	}
	if pending[0].Type != TypeRelationsDiscovery {
		t.Errorf("pending[0].Type = %q, want higher priority first", pending[0].Type)
	}
}
