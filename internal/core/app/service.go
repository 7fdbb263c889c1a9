package app

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"pyscope/internal/core/ports"
	"pyscope/internal/core/watcher"
	"pyscope/internal/data/history"
	"pyscope/internal/shared/util"
)

// Service drives analysis runs for one App: one-shot runs for the batch
// host, and a watch loop that turns change batches into superseding
// incremental runs. Run summaries are queued to the history store off the
// analysis path.
type Service struct {
	app      *App
	store    ports.HistoryStore
	recorder *history.Recorder
	limiter  *util.Limiter

	mu         sync.Mutex
	cancelRun  context.CancelFunc
	onUpdate   func(Update)
	lastUpdate Update
	hasUpdate  bool
	watcher    *watcher.Watcher
}

// NewService wraps app. store may be nil, which disables history recording.
func NewService(app *App, store ports.HistoryStore) *Service {
	s := &Service{app: app, store: store}
	if store != nil {
		s.recorder = history.NewRecorder(store, 64)
	}
	// Caps full revalidation frequency under event storms; the debounce
	// already batches keystrokes, this guards against pathological producers
	// like branch switches touching thousands of files.
	s.limiter = util.NewLimiter(4, 2)
	return s
}

func (s *Service) App() *App { return s.app }

// RunOnce performs one full analysis pass, records it to history and
// notifies the update handler.
func (s *Service) RunOnce(ctx context.Context) (Update, error) {
	update, err := s.app.Run(ctx)
	if err != nil {
		return Update{}, err
	}
	s.record(update)
	s.publish(update)
	return update, nil
}

// SetUpdateHandler installs the watch-mode subscriber. The handler runs on
// the analysis goroutine and must not block.
func (s *Service) SetUpdateHandler(handler func(Update)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onUpdate = handler
}

// CurrentUpdate returns the most recent run outcome, if any run completed.
func (s *Service) CurrentUpdate() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastUpdate, s.hasUpdate
}

// Watch starts the filesystem watcher over the source roots. Each debounced
// change batch supersedes any run still in flight: the stale run is
// cancelled, its partial work discarded, and a fresh run starts from the
// updated registry state.
func (s *Service) Watch(ctx context.Context) error {
	w, err := watcher.NewWatcher(
		s.app.Config.Watch.Debounce,
		s.app.Config.Exclude.Dirs,
		s.app.Config.Exclude.Files,
		func(paths []string) { s.handleChanges(ctx, paths) },
	)
	if err != nil {
		return err
	}
	if err := w.Watch(s.app.Paths.SourceRoots); err != nil {
		w.Close()
		return err
	}
	s.mu.Lock()
	s.watcher = w
	s.mu.Unlock()
	return nil
}

func (s *Service) handleChanges(ctx context.Context, paths []string) {
	slog.Info("detected changes", "count", len(paths))
	s.app.HandleChanges(paths)

	s.mu.Lock()
	if s.cancelRun != nil {
		s.cancelRun()
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.cancelRun = cancel
	s.mu.Unlock()

	go func() {
		defer cancel()
		if err := s.limiter.Wait(runCtx); err != nil {
			return
		}
		update, err := s.app.Run(runCtx)
		if err != nil {
			if runCtx.Err() != nil {
				slog.Debug("run superseded", "error", runCtx.Err())
			} else {
				slog.Error("incremental run failed", "error", err)
			}
			return
		}
		s.record(update)
		s.publish(update)
	}()
}

// Close stops the watcher, cancels any in-flight run and drains pending
// history writes. The store itself is owned by the caller.
func (s *Service) Close(ctx context.Context) error {
	s.mu.Lock()
	w := s.watcher
	s.watcher = nil
	if s.cancelRun != nil {
		s.cancelRun()
		s.cancelRun = nil
	}
	s.mu.Unlock()

	if w != nil {
		if err := w.Close(); err != nil {
			slog.Warn("failed to close watcher", "error", err)
		}
	}
	if s.recorder != nil {
		return s.recorder.Close(ctx)
	}
	return nil
}

func (s *Service) record(update Update) {
	if s.recorder == nil {
		return
	}
	s.recorder.Record(ports.RunSummary{
		StartedAt:    time.Now().UTC().Add(-update.Duration),
		Duration:     update.Duration,
		Commit:       history.ResolveGitCommit(s.app.Paths.ProjectRoot),
		Files:        update.Files,
		Diagnostics:  len(update.Diagnostics),
		Revision:     update.Revision,
		Computations: update.Computations,
		EarlyCutoffs: update.EarlyCutoffs,
	}, update.Diagnostics)
}

func (s *Service) publish(update Update) {
	s.mu.Lock()
	s.lastUpdate = update
	s.hasUpdate = true
	handler := s.onUpdate
	s.mu.Unlock()
	if handler != nil {
		handler(update)
	}
}
