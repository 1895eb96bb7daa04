// Package scheduler runs named recurring tasks on ticker intervals. The
// core depends on the types.Scheduler interface; this is the in-process
// implementation.
package scheduler

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Scheduler runs recurring tasks until canceled individually or shut down
// as a whole. Implements types.Scheduler.
type Scheduler struct {
	logger *zap.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	stopped bool
}

// New creates a running scheduler.
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		logger: logger.Named("scheduler"),
		ctx:    ctx,
		cancel: cancel,
	}
}

// Every schedules fn to run at the given interval. The first run happens
// one interval from now. A panicking task is logged and its schedule keeps
// running. The returned cancel stops only this task; Shutdown stops all.
func (s *Scheduler) Every(name string, interval time.Duration, fn func(context.Context)) (cancel func()) {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return func() {}
	}
	taskCtx, taskCancel := context.WithCancel(s.ctx)
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-taskCtx.Done():
				s.logger.Debug("Task canceled", zap.String("task", name))
				return
			case <-ticker.C:
				s.runOne(taskCtx, name, fn)
			}
		}
	}()

	return taskCancel
}

func (s *Scheduler) runOne(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Recurring task panicked",
				zap.String("task", name),
				zap.Any("panic", r))
		}
	}()
	fn(ctx)
}

// Shutdown cancels every task and waits for in-flight runs to finish or the
// context to expire.
func (s *Scheduler) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	s.cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
