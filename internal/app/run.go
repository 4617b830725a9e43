package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"docwatch/internal/dw"
	"docwatch/internal/watcher"
)

// Run keeps the catalog in sync with the watched directory until ctx is
// cancelled. It takes the instance lock, reconciles and sweeps once, then
// applies watch events and, when reconcile.interval is set, reconciles
// periodically. Cancellation is a clean shutdown and returns nil.
func (a *App) Run(ctx context.Context) error {
	lock, err := acquireInstanceLock(a.cfg.BaseDir)
	if err != nil {
		return err
	}
	defer lock.Unlock()

	report, err := a.service.ReconcileAndSweep(ctx, dw.ReconcileOptions{})
	if report != nil {
		a.logReport("startup reconcile finished", report)
	}
	if err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("startup reconcile: %w", err)
	}

	w, err := watcher.New(a.cfg.WatchDir, watcher.Options{
		Debounce: a.cfg.Watcher.Debounce.Duration,
		Ignore:   a.fsmgr.IsIgnored,
	}, a.dlog)
	if err != nil {
		return err
	}
	defer w.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.Start(gctx) })
	g.Go(func() error { return a.dispatch(gctx, w) })
	if interval := a.cfg.Reconcile.Interval.Duration; interval > 0 {
		g.Go(func() error { return a.reconcileEvery(gctx, interval) })
	}

	err = g.Wait()
	if ctx.Err() != nil && (err == nil || errors.Is(err, context.Canceled)) {
		a.logger.Info("shutting down")
		return nil
	}
	return err
}

// dispatch applies watch events with at most intake.workers running at
// once. Concurrent deliveries for the same path and operation share one
// HandleEvent call. Failures are logged; the next reconcile retries them.
func (a *App) dispatch(ctx context.Context, w *watcher.Watcher) error {
	var (
		inflight singleflight.Group
		handlers errgroup.Group
	)
	handlers.SetLimit(max(a.cfg.Intake.Workers, 1))
	defer handlers.Wait()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case err := <-w.Errors():
			a.logger.Warn("watcher error", "error", err)
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, fe := range batch {
				ev := fe.Event()
				handlers.Go(func() error {
					key := ev.Op.String() + ":" + ev.Path
					_, err, shared := inflight.Do(key, func() (any, error) {
						return nil, a.service.HandleEvent(ctx, ev)
					})
					if err != nil && ctx.Err() == nil {
						a.logger.Error("handling event failed", "op", ev.Op, "path", ev.Path, "error", err)
					} else if shared {
						a.logger.Debug("event coalesced", "op", ev.Op, "path", ev.Path)
					}
					return nil
				})
			}
		}
	}
}

// reconcileEvery runs reconcile and sweep passes on a fixed interval.
func (a *App) reconcileEvery(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report, err := a.service.ReconcileAndSweep(ctx, dw.ReconcileOptions{})
			if report != nil {
				a.logReport("periodic reconcile finished", report)
			}
			if err != nil && ctx.Err() == nil {
				a.logger.Error("periodic reconcile failed", "error", err)
			}
		}
	}
}
