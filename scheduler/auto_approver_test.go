package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type fakeSweeper struct {
	calls atomic.Int32
	err   error
}

func (f *fakeSweeper) AutoApproveDue(context.Context, time.Time) (int, error) {
	f.calls.Add(1)
	return 2, f.err
}

func TestStartSweepsImmediatelyAndStops(t *testing.T) {
	sw := &fakeSweeper{}
	a := NewAutoApprover(sw, time.Hour, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		a.Start(ctx)
		close(done)
	}()

	deadline := time.After(time.Second)
	for sw.calls.Load() == 0 {
		select {
		case <-deadline:
			t.Fatal("no sweep at startup")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Start did not return after cancel")
	}
}

func TestRunOnceSwallowsErrors(t *testing.T) {
	a := NewAutoApprover(&fakeSweeper{err: errors.New("db down")}, time.Minute, nil)
	if n := a.RunOnce(context.Background()); n != 0 {
		t.Fatalf("RunOnce = %d, want 0 on error", n)
	}
	if n := NewAutoApprover(&fakeSweeper{}, time.Minute, nil).RunOnce(context.Background()); n != 2 {
		t.Fatalf("RunOnce = %d, want 2", n)
	}
}
