package app

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"asta_radar/internal/adapters/fetcher"
)

type CycleRunner interface {
	RunCycle(ctx context.Context) CycleReport
}

// Scheduler runs a cycle immediately and then every interval. After a cycle
// that ended on a ban or an exhausted failure budget the next one starts
// after errorRetry instead.
type Scheduler struct {
	runner     CycleRunner
	interval   time.Duration
	errorRetry time.Duration
	log        zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func NewScheduler(r CycleRunner, interval, errorRetry time.Duration, log zerolog.Logger) *Scheduler {
	if errorRetry <= 0 || errorRetry > interval {
		errorRetry = interval
	}
	return &Scheduler{runner: r, interval: interval, errorRetry: errorRetry, log: log}
}

// Start launches the loop. Calling Start on a running scheduler is a no-op.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop cancels the running cycle and waits for the loop to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Done is closed when the loop exits, nil before Start.
func (s *Scheduler) Done() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for n := 1; ; n++ {
		start := time.Now()
		rep := s.runner.RunCycle(ctx)
		if ctx.Err() != nil {
			s.log.Info().Int("cycle", n).Msg("scheduler stopped")
			return
		}
		wait := s.interval
		if rep.Failed() {
			wait = s.errorRetry
		}
		s.log.Info().
			Int("cycle", n).
			Dur("took", time.Since(start)).
			Str("primary", string(rep.Primary.Reason)).
			Str("secondary", string(rep.Secondary.Reason)).
			Dur("next_in", wait).
			Msg("cycle finished")
		if err := fetcher.Sleep(ctx, wait); err != nil {
			s.log.Info().Int("cycle", n).Msg("scheduler stopped")
			return
		}
	}
}
