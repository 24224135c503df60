package order

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Keeper drives the long-running maintenance loop: each cycle it first
// settles trades completed since the last checkpoint, then revalidates every
// resting order. One instrument is processed start to finish before the
// next; a cycle always runs to completion.
type Keeper struct {
	Reconciler *Reconciler
	Responder  *Responder
	Interval   time.Duration
	Clock      Clock
	Log        *zap.Logger
	AfterCycle func() // optional hook, used for watchdog notify
}

// Run loops until ctx is done. Cycle errors are logged, never fatal: only
// process-level signals can stop the keeper.
func (k *Keeper) Run(ctx context.Context) error {
	interval := k.Interval
	if interval <= 0 {
		interval = 20 * time.Second
	}
	clock := k.Clock
	if clock == nil {
		clock = NowUTC
	}
	checkpoint := clock.Now()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First pass runs immediately; the ticker paces every pass after it.
	for {
		checkpoint = k.cycle(checkpoint)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (k *Keeper) cycle(checkpoint time.Time) time.Time {
	next, err := k.Responder.RespondSince(checkpoint)
	if err != nil {
		k.Log.Warn("settlement pass failed", zap.Error(err))
	} else {
		checkpoint = next
	}
	if err := k.Reconciler.ReconcileOnce(); err != nil {
		k.Log.Warn("reconcile cycle failed", zap.Error(err))
	}
	if k.AfterCycle != nil {
		k.AfterCycle()
	}
	return checkpoint
}
