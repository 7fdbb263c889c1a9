package history

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pyscope/internal/core/ports"
)

type recordJob struct {
	run   ports.RunSummary
	diags []ports.Diagnostic
}

// Recorder writes run summaries to the store off the analysis path. Watch
// mode produces a run per change burst and must not stall on SQLite, so
// records are queued and a single worker drains them in order.
type Recorder struct {
	store ports.HistoryStore
	jobs  chan recordJob
	done  chan struct{}

	closeOnce sync.Once
}

func NewRecorder(store ports.HistoryStore, buffer int) *Recorder {
	if buffer <= 0 {
		buffer = 16
	}
	r := &Recorder{
		store: store,
		jobs:  make(chan recordJob, buffer),
		done:  make(chan struct{}),
	}
	go r.run()
	return r
}

// Record queues one run for persistence. It never blocks; when the queue
// is full the run is dropped and logged, analysis latency wins over
// history completeness.
func (r *Recorder) Record(run ports.RunSummary, diags []ports.Diagnostic) {
	if r == nil {
		return
	}
	select {
	case r.jobs <- recordJob{run: run, diags: diags}:
	default:
		slog.Warn("history queue full, dropping run", "run_id", run.ID, "diagnostics", run.Diagnostics)
	}
}

func (r *Recorder) run() {
	defer close(r.done)
	for job := range r.jobs {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := r.store.RecordRun(ctx, job.run, job.diags); err != nil {
			slog.Warn("history write failed", "error", err, "run_id", job.run.ID)
		}
		cancel()
	}
}

// Close stops accepting runs and waits for queued writes to land, up to
// the context deadline.
func (r *Recorder) Close(ctx context.Context) error {
	if r == nil {
		return nil
	}
	r.closeOnce.Do(func() {
		close(r.jobs)
	})
	select {
	case <-r.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
