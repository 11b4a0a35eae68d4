package main

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// runFunc performs one resumable pass and reports whether everything is done.
type runFunc func(ctx context.Context, reset bool) (bool, error)

// runScheduled runs once immediately, then again on every tick of spec until
// a pass reports completion, a pass fails or ctx ends. Only the first pass
// may reset the checkpoint, and ticks never overlap.
func runScheduled(ctx context.Context, logger *zap.Logger, spec string, once runFunc, reset bool) error {
	done, err := once(ctx, reset)
	if err != nil || done {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu       sync.Mutex
		finished bool
		runErr   error
	)

	sched := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	_, err = sched.AddFunc(spec, func() {
		if ctx.Err() != nil {
			return
		}
		done, err := once(ctx, false)

		mu.Lock()
		defer mu.Unlock()
		switch {
		case err != nil:
			runErr = err
			cancel()
		case done:
			finished = true
			cancel()
		}
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q: %w", spec, err)
	}

	logger.Info("Batch incomplete, scheduled to resume", zap.String("schedule", spec))
	sched.Start()
	<-ctx.Done()
	<-sched.Stop().Done()

	mu.Lock()
	defer mu.Unlock()
	if runErr != nil {
		return runErr
	}
	if !finished {
		return errIncomplete
	}
	return nil
}
