package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// State of the scheduler.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CycleFunc runs one scan cycle.
type CycleFunc func(ctx context.Context) error

// Latch reports whether an opportunity has been committed for execution.
type Latch interface {
	Committed() bool
}

// Scheduler runs a CycleFunc on a fixed interval with at most one cycle in
// flight. Ticks that arrive while a cycle runs are dropped, not queued.
type Scheduler struct {
	interval time.Duration
	cycle    CycleFunc
	latch    Latch
	dropped  prometheus.Counter
	logger   *zap.Logger

	state atomic.Int32
	wg    sync.WaitGroup
}

// New creates a scheduler. dropped may be nil.
func New(interval time.Duration, cycle CycleFunc, latch Latch, dropped prometheus.Counter, logger *zap.Logger) (*Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("polling interval must be positive")
	}
	if cycle == nil {
		return nil, fmt.Errorf("cycle function cannot be nil")
	}
	if latch == nil {
		return nil, fmt.Errorf("latch cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if dropped == nil {
		dropped = prometheus.NewCounter(prometheus.CounterOpts{Name: "scheduler_dropped_ticks_total"})
	}
	return &Scheduler{
		interval: interval,
		cycle:    cycle,
		latch:    latch,
		dropped:  dropped,
		logger:   logger,
	}, nil
}

// State returns the current state.
func (s *Scheduler) State() State {
	return State(s.state.Load())
}

// Run ticks until ctx is cancelled or a tick between cycles finds the latch
// committed. It always waits for the in-flight cycle before returning.
func (s *Scheduler) Run(ctx context.Context) error {
	if s.State() == StateStopped {
		return fmt.Errorf("scheduler already stopped")
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("Scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.stop()
			s.logger.Info("Scheduler stopped", zap.Error(ctx.Err()))
			return nil
		case <-ticker.C:
			if !s.state.CompareAndSwap(int32(StateIdle), int32(StateScanning)) {
				s.dropped.Inc()
				s.logger.Debug("Cycle still running, tick dropped")
				continue
			}
			// The latch is only read between cycles. A cycle that commits and
			// then fails execution releases it before returning.
			if s.latch.Committed() {
				ticker.Stop()
				s.state.Store(int32(StateIdle))
				s.stop()
				s.logger.Info("Opportunity committed, scheduler stopped")
				return nil
			}
			s.wg.Add(1)
			go s.runCycle(ctx)
		}
	}
}

func (s *Scheduler) runCycle(ctx context.Context) {
	defer s.wg.Done()
	defer s.state.CompareAndSwap(int32(StateScanning), int32(StateIdle))

	start := time.Now()
	if err := s.cycle(ctx); err != nil {
		s.logger.Error("Scan cycle failed",
			zap.Error(err),
			zap.Duration("elapsed", time.Since(start)))
		return
	}
	s.logger.Debug("Scan cycle finished", zap.Duration("elapsed", time.Since(start)))
}

func (s *Scheduler) stop() {
	s.wg.Wait()
	s.state.Store(int32(StateStopped))
}
