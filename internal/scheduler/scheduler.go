// Package scheduler runs the periodic sweeps the settlement core depends
// on: EVM deposit monitoring, EVM idle-channel checks, XRP channel lifecycle
// sweeps, metrics window cleanup, and one-shot challenge-period settlement
// timers. It is a thin cancellable-timer registry built on the clock
// dependency, not a generic job queue: every sweep in the system is either
// "every" (periodic) or "after" (one-shot), and nothing here needs
// cron-style scheduling, priority, or persistence.
package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"gitlab.com/warrant1/warrant/settlement-core/internal/clock"
)

// Scheduler owns a set of cancellable timers running against an injected
// Clock. Run functions are invoked on their own goroutine; Scheduler does
// not serialize them against each other.
type Scheduler struct {
	clock clock.Clock
	log   *slog.Logger

	mu      sync.Mutex
	wg      sync.WaitGroup
	cancels []context.CancelFunc
}

// New returns a Scheduler backed by c.
func New(c clock.Clock, log *slog.Logger) *Scheduler {
	return &Scheduler{clock: c, log: log}
}

// Every registers fn to run once per interval until ctx is cancelled or
// Stop is called. The first run happens after one interval has elapsed.
func (s *Scheduler) Every(ctx context.Context, name string, interval time.Duration, fn func(context.Context)) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := s.clock.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-runCtx.Done():
				return
			case <-ticker.C():
				s.runOnce(runCtx, name, fn)
			}
		}
	}()
}

// After registers fn to run once, after d has elapsed, unless ctx is
// cancelled or Stop is called first. Used for one-shot challenge-period
// settlement timers.
func (s *Scheduler) After(ctx context.Context, name string, d time.Duration, fn func(context.Context)) {
	runCtx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancels = append(s.cancels, cancel)
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		select {
		case <-runCtx.Done():
			return
		case <-s.clock.After(d):
			s.runOnce(runCtx, name, fn)
		}
	}()
}

func (s *Scheduler) runOnce(ctx context.Context, name string, fn func(context.Context)) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("scheduled task panicked", slog.String("task", name), slog.Any("recover", r))
		}
	}()
	fn(ctx)
}

// Stop cancels every registered timer and waits for in-flight runs to
// return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancels := s.cancels
	s.cancels = nil
	s.mu.Unlock()

	for _, cancel := range cancels {
		cancel()
	}
	s.wg.Wait()
}
