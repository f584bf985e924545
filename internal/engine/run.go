package engine

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Run starts the background loops (dispatcher, watchdog, notifier janitor)
// and blocks until ctx is cancelled. The façade operations are usable before
// and during Run; without it, tasks stay Pending and timeouts go undetected.
func (e *Engine) Run(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return e.runDispatcher(gCtx)
	})
	g.Go(func() error {
		return e.runWatchdog(gCtx)
	})
	g.Go(func() error {
		return e.notifier.janitor(gCtx)
	})

	e.logger.Info("engine loops started",
		"dispatch_interval", e.cfg.DispatchInterval,
		"watchdog_interval", e.cfg.WatchdogInterval)
	return g.Wait()
}

// DispatchNow runs one dispatcher iteration synchronously. Used by tests and
// by the scheduler after submitting due work.
func (e *Engine) DispatchNow(ctx context.Context) error {
	return e.dispatchOnce(ctx)
}

// ExpireNow runs one watchdog iteration synchronously. Used by tests.
func (e *Engine) ExpireNow(ctx context.Context) error {
	return e.watchdogOnce(ctx)
}
