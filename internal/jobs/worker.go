package jobs

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/kitsurai/torii/internal/event"
)

// Handler processes one claimed job.
type Handler interface {
	Handle(ctx context.Context, job *Job) error
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, job *Job) error

// Handle calls fn.
func (fn HandlerFunc) Handle(ctx context.Context, job *Job) error { return fn(ctx, job) }

// Worker polls the queue and dispatches claimed jobs to type handlers.
// Handler errors and panics are contained per job; the loop only exits
// when its context is canceled.
type Worker struct {
	store        *Store
	handlers     map[Type]Handler
	pollInterval time.Duration
	bus          *event.Bus
	logger       *slog.Logger
}

// NewWorker creates a queue worker.
func NewWorker(store *Store, pollInterval time.Duration, bus *event.Bus, logger *slog.Logger) *Worker {
	return &Worker{
		store:        store,
		handlers:     make(map[Type]Handler),
		pollInterval: pollInterval,
		bus:          bus,
		logger:       logger.With(slog.String("component", "job-worker")),
	}
}

// Register installs the handler for a job type.
func (w *Worker) Register(jobType Type, handler Handler) {
	w.handlers[jobType] = handler
}

// Run processes jobs until the context is canceled. On an empty queue the
// worker sleeps for the poll interval.
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info("job worker started", slog.Duration("poll_interval", w.pollInterval))
	for {
		job, err := w.store.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Error("dequeue failed", slog.String("error", err.Error()))
		}
		if job == nil {
			select {
			case <-ctx.Done():
				w.logger.Info("job worker stopped")
				return
			case <-time.After(w.pollInterval):
			}
			continue
		}

		w.process(ctx, job)

		if ctx.Err() != nil {
			w.logger.Info("job worker stopped")
			return
		}
	}
}

// process runs one claimed job through its handler and records the
// outcome. A missing handler is a permanent failure.
func (w *Worker) process(ctx context.Context, job *Job) {
	logger := w.logger.With(
		slog.String("job_id", job.ID),
		slog.String("job_type", string(job.Type)),
		slog.Int("attempt", job.Attempts))

	handler, ok := w.handlers[job.Type]
	if !ok {
		logger.Error("no handler registered for job type")
		w.fail(ctx, job, fmt.Sprintf("no handler for type %s", job.Type))
		return
	}

	start := time.Now()
	err := w.runHandler(ctx, handler, job)
	if err == nil {
		if markErr := w.store.MarkCompleted(ctx, job.ID); markErr != nil {
			logger.Error("marking job completed", slog.String("error", markErr.Error()))
		}
		logger.Info("job completed", slog.Duration("took", time.Since(start)))
		w.bus.Publish(event.JobCompleted, map[string]any{
			"job_id": job.ID,
			"type":   string(job.Type),
		})
		return
	}

	logger.Warn("job handler failed", slog.String("error", err.Error()))
	if job.Attempts < job.MaxAttempts {
		if markErr := w.store.MarkRetry(ctx, job.ID, err.Error()); markErr != nil {
			logger.Error("re-queueing job", slog.String("error", markErr.Error()))
		}
		return
	}
	w.fail(ctx, job, err.Error())
}

// runHandler invokes the handler, converting a panic into an error so one
// bad job cannot take the worker down.
func (w *Worker) runHandler(ctx context.Context, handler Handler, job *Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("handler panic: %v", r)
		}
	}()
	return handler.Handle(ctx, job)
}

func (w *Worker) fail(ctx context.Context, job *Job, reason string) {
	if err := w.store.MarkFailed(ctx, job.ID, reason); err != nil {
		w.logger.Error("marking job failed", slog.String("job_id", job.ID), slog.String("error", err.Error()))
	}
	w.bus.Publish(event.JobFailed, map[string]any{
		"job_id": job.ID,
		"type":   string(job.Type),
		"error":  reason,
	})
}
