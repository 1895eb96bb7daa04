package scheduler

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"
)

func TestEveryRunsRepeatedly(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Shutdown(context.Background())

	var runs atomic.Int64
	cancel := s.Every("tick", 10*time.Millisecond, func(context.Context) {
		runs.Add(1)
	})
	defer cancel()

	deadline := time.Now().Add(time.Second)
	for runs.Load() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 3 {
		t.Fatalf("task ran %d times, want at least 3", runs.Load())
	}
}

func TestCancelStopsSingleTask(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Shutdown(context.Background())

	var a, b atomic.Int64
	cancelA := s.Every("a", 10*time.Millisecond, func(context.Context) { a.Add(1) })
	cancelB := s.Every("b", 10*time.Millisecond, func(context.Context) { b.Add(1) })
	defer cancelB()

	deadline := time.Now().Add(time.Second)
	for a.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	cancelA()
	frozen := a.Load()
	bBefore := b.Load()

	deadline = time.Now().Add(time.Second)
	for b.Load() <= bBefore+2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	if a.Load() > frozen+1 {
		t.Errorf("canceled task kept running: %d -> %d", frozen, a.Load())
	}
	if b.Load() <= bBefore {
		t.Error("sibling task must keep running after cancel")
	}
}

func TestTaskPanicDoesNotKillSchedule(t *testing.T) {
	s := New(zap.NewNop())
	defer s.Shutdown(context.Background())

	var runs atomic.Int64
	cancel := s.Every("panicky", 10*time.Millisecond, func(context.Context) {
		runs.Add(1)
		panic("boom")
	})
	defer cancel()

	deadline := time.Now().Add(time.Second)
	for runs.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if runs.Load() < 2 {
		t.Fatalf("panicking task ran %d times, want schedule to survive", runs.Load())
	}
}

func TestShutdownStopsEverything(t *testing.T) {
	s := New(zap.NewNop())
	var runs atomic.Int64
	s.Every("tick", 10*time.Millisecond, func(context.Context) { runs.Add(1) })

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	frozen := runs.Load()
	time.Sleep(50 * time.Millisecond)
	if runs.Load() != frozen {
		t.Errorf("tasks kept running after shutdown: %d -> %d", frozen, runs.Load())
	}

	// Scheduling after shutdown is a no-op.
	cancel := s.Every("late", 10*time.Millisecond, func(context.Context) { runs.Add(1) })
	cancel()
	time.Sleep(30 * time.Millisecond)
	if runs.Load() != frozen {
		t.Error("task scheduled after shutdown must not run")
	}
}
