package ingest

import (
	"context"
	"log/slog"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/kitsurai/torii/internal/event"
)

// batchConcurrency caps simultaneous provider-bound ingestions so a batch
// cannot stampede the upstream rate limits.
const batchConcurrency = 3

// BatchFailure records one item that could not be ingested.
type BatchFailure struct {
	Title  string `json:"title"`
	Reason string `json:"reason"`
}

// BatchResult classifies every item of a batch run.
type BatchResult struct {
	Imported []string       `json:"imported"`
	Skipped  []string       `json:"skipped"`
	Failed   []BatchFailure `json:"failed"`
}

// IngestBatch ingests a list of titles with bounded concurrency. Per-item
// failures are collected, never fatal; cancellation stops scheduling new
// items but lets in-flight ones finish.
func (p *Pipeline) IngestBatch(ctx context.Context, titles []string, opts Options) *BatchResult {
	result := &BatchResult{}
	var mu sync.Mutex
	done := 0

	workers := pool.New().WithMaxGoroutines(batchConcurrency)
	for _, title := range titles {
		if ctx.Err() != nil {
			break
		}
		workers.Go(func() {
			res, err := p.IngestTitle(ctx, title, opts)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				result.Failed = append(result.Failed, BatchFailure{Title: title, Reason: err.Error()})
			case res.Outcome == OutcomeSkipped:
				result.Skipped = append(result.Skipped, title)
			default:
				result.Imported = append(result.Imported, title)
			}
			done++
			p.bus.Publish(event.BatchProgress, map[string]any{
				"done":  done,
				"total": len(titles),
				"title": title,
			})
		})
	}
	workers.Wait()

	p.bus.Publish(event.BatchCompleted, map[string]any{
		"imported": len(result.Imported),
		"skipped":  len(result.Skipped),
		"failed":   len(result.Failed),
	})
	p.logger.Info("batch ingest finished",
		slog.Int("imported", len(result.Imported)),
		slog.Int("skipped", len(result.Skipped)),
		slog.Int("failed", len(result.Failed)))
	return result
}
