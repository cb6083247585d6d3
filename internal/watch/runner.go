package watch

import (
	"context"
	"errors"

	"golang.org/x/sync/errgroup"

	"csync/internal/csync"
)

// SyncFunc runs one reconciliation pass.
type SyncFunc func(ctx context.Context) error

// Runner syncs once at start and again after every burst the watcher reports.
type Runner struct {
	watcher *Watcher
	sync    SyncFunc
	logger  csync.Logger
}

func NewRunner(w *Watcher, sync SyncFunc, logger csync.Logger) *Runner {
	if logger == nil {
		logger = csync.NewNopLogger()
	}
	return &Runner{watcher: w, sync: sync, logger: logger}
}

// Run blocks until ctx is done. A failed pass is logged and the runner
// keeps watching; only errors that make watching impossible are returned.
func (r *Runner) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	bursts := make(chan struct{}, 1)

	g.Go(func() error {
		return r.watcher.Run(ctx, bursts)
	})

	g.Go(func() error {
		r.pass(ctx)
		for {
			select {
			case <-ctx.Done():
				return nil
			case <-bursts:
				r.pass(ctx)
			}
		}
	})

	return g.Wait()
}

func (r *Runner) pass(ctx context.Context) {
	err := r.sync(ctx)
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		r.logger.Info("sync interrupted")
	default:
		r.logger.Error("sync failed", "error", err)
	}
}
