package order

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestKeeperRunsCyclesUntilCanceled(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	gw := &fakeGateway{}
	vals := &fakeValuations{}
	trades := &fakeTradeSource{}

	rec := NewReconciler(gw, vals, 0.02, nil)
	resp := &Responder{
		Trades:     trades,
		Gateway:    gw,
		Valuations: vals,
		Clock:      fixedClock{now: now},
		Log:        testLogger(),
	}

	cycles := make(chan struct{}, 16)
	k := &Keeper{
		Reconciler: rec,
		Responder:  resp,
		Interval:   5 * time.Millisecond,
		Clock:      fixedClock{now: now},
		Log:        testLogger(),
		AfterCycle: func() { cycles <- struct{}{} },
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	for i := 0; i < 2; i++ {
		select {
		case <-cycles:
		case <-time.After(2 * time.Second):
			t.Fatal("keeper did not complete a cycle in time")
		}
	}
	cancel()

	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not stop on cancel")
	}

	if trades.lastTo.IsZero() {
		t.Fatal("settlement pass never ran")
	}
}

func TestKeeperFirstCycleRunsImmediately(t *testing.T) {
	now := time.Date(2026, 8, 26, 12, 0, 0, 0, time.UTC)
	gw := &fakeGateway{}
	vals := &fakeValuations{}
	trades := &fakeTradeSource{}

	cycles := make(chan struct{}, 1)
	k := &Keeper{
		Reconciler: NewReconciler(gw, vals, 0.02, nil),
		Responder: &Responder{
			Trades:     trades,
			Gateway:    gw,
			Valuations: vals,
			Clock:      fixedClock{now: now},
			Log:        testLogger(),
		},
		Interval:   time.Hour,
		Clock:      fixedClock{now: now},
		Log:        testLogger(),
		AfterCycle: func() { cycles <- struct{}{} },
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- k.Run(ctx) }()

	select {
	case <-cycles:
	case <-time.After(2 * time.Second):
		t.Fatal("first cycle must not wait out the interval")
	}
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("keeper did not stop on cancel")
	}
}
