// Package daemon provides the shared polling loop used by both pipeline
// stages. A Loop polls for a batch of document IDs, processes the batch
// on a bounded worker pool, then sleeps until the next poll. It runs
// until its context is cancelled.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Loop is one stage's polling loop.
type Loop struct {
	// Name identifies the stage in log output ("ocr", "classify").
	Name string

	// Interval is the sleep between polls.
	Interval time.Duration

	// Fetch returns the next batch of document IDs to process.
	Fetch func(ctx context.Context) ([]int, error)

	// Process handles a single document. Errors are logged, never fatal;
	// the per-document processor decides how failures are tagged.
	Process func(ctx context.Context, docID int) error

	// BeforeBatch runs once per non-empty batch, before any document is
	// dispatched (e.g. to refresh a taxonomy cache). Optional.
	BeforeBatch func(ctx context.Context) error

	// Workers bounds concurrent document processing.
	Workers int

	Logger *slog.Logger
}

// Run executes the loop until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	interval := l.Interval
	if interval < time.Second {
		interval = time.Second
	}
	workers := l.Workers
	if workers < 1 {
		workers = 1
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("daemon", l.Name)

	logger.Info("daemon started", "poll_interval", interval, "workers", workers)

	wasIdle := false
	for {
		if err := ctx.Err(); err != nil {
			logger.Info("daemon stopped")
			return err
		}

		ids, err := l.Fetch(ctx)
		if err != nil {
			logger.Error("failed to fetch work", "error", err)
			if !sleepCtx(ctx, interval) {
				continue
			}
			logger.Info("daemon stopped")
			return ctx.Err()
		}

		if len(ids) == 0 {
			if !wasIdle {
				logger.Info("no work found, waiting")
			}
			wasIdle = true
			if sleepCtx(ctx, interval) {
				logger.Info("daemon stopped")
				return ctx.Err()
			}
			continue
		}
		wasIdle = false

		if l.BeforeBatch != nil {
			if err := l.BeforeBatch(ctx); err != nil {
				logger.Error("batch setup failed, skipping batch", "error", err)
				if sleepCtx(ctx, interval) {
					logger.Info("daemon stopped")
					return ctx.Err()
				}
				continue
			}
		}

		logger.Info("processing batch", "count", len(ids))
		l.runBatch(ctx, logger, ids, workers)

		if sleepCtx(ctx, interval) {
			logger.Info("daemon stopped")
			return ctx.Err()
		}
	}
}

// runBatch dispatches the batch across the worker pool. A panic or error
// in one document never takes down the daemon.
func (l *Loop) runBatch(ctx context.Context, logger *slog.Logger, ids []int, workers int) {
	// Dispatched documents run to completion; cancellation only stops new
	// batches. A half-transcribed document would otherwise lose its work
	// and its claim tag.
	workCtx := context.WithoutCancel(ctx)

	g := new(errgroup.Group)
	g.SetLimit(workers)
	for _, id := range ids {
		g.Go(func() error {
			if err := l.processOne(workCtx, id); err != nil {
				logger.Error("document failed", "doc_id", id, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func (l *Loop) processOne(ctx context.Context, id int) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v\n%s", r, debug.Stack())
		}
	}()
	return l.Process(ctx, id)
}

// sleepCtx sleeps for d, returning true if ctx was cancelled first.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return true
	case <-t.C:
		return false
	}
}
