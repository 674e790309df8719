package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"booking-service/internal/service"
	"booking-service/internal/util"

	"go.uber.org/zap"
)

const schedulerLockKey = "event-lifecycle-scheduler"

// Recomputer runs one lifecycle pass over all events
type Recomputer interface {
	RecomputeEventStatuses(ctx context.Context) (*service.RecomputeSummary, error)
}

// EventScheduler periodically re-derives event statuses. A tick that fires
// while the previous one is still running is skipped, and a Redis lock keeps
// replicas from scanning at the same time.
type EventScheduler struct {
	recomputer Recomputer
	locker     service.Locker
	interval   time.Duration
	logger     *zap.Logger

	running  atomic.Bool
	ticks    sync.WaitGroup
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

// NewEventScheduler creates a scheduler. locker may be nil for single-replica use.
func NewEventScheduler(recomputer Recomputer, locker service.Locker, interval time.Duration) *EventScheduler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &EventScheduler{
		recomputer: recomputer,
		locker:     locker,
		interval:   interval,
		logger:     util.GetLogger(),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
}

// Start runs one pass immediately and then one per interval until ctx is
// cancelled or Stop is called
func (s *EventScheduler) Start(ctx context.Context) {
	s.logger.Info("Starting event lifecycle scheduler", zap.Duration("interval", s.interval))
	go s.run(ctx)
}

// Stop prevents new ticks and waits for an in-flight one to finish
func (s *EventScheduler) Stop() {
	s.stopOnce.Do(func() {
		close(s.stop)
	})
	<-s.done
	s.ticks.Wait()
	s.logger.Info("Event lifecycle scheduler stopped")
}

func (s *EventScheduler) run(ctx context.Context) {
	defer close(s.done)

	s.spawn(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stop:
			return
		case <-ticker.C:
			s.spawn(ctx)
		}
	}
}

func (s *EventScheduler) spawn(ctx context.Context) {
	s.ticks.Add(1)
	go func() {
		defer s.ticks.Done()
		s.tick(ctx)
	}()
}

// tick runs one guarded pass. It reports whether the pass ran.
func (s *EventScheduler) tick(ctx context.Context) bool {
	if !s.running.CompareAndSwap(false, true) {
		util.SchedulerSkippedTotal.WithLabelValues("overlap").Inc()
		s.logger.Warn("Previous lifecycle pass still running, skipping tick")
		return false
	}
	defer s.running.Store(false)

	if s.locker != nil {
		token, locked, err := s.locker.AcquireLock(ctx, schedulerLockKey, s.interval)
		switch {
		case err != nil:
			// status writes are compare-and-set, so a lone pass is still safe
			s.logger.Warn("Scheduler lock unavailable, running anyway", zap.Error(err))
		case !locked:
			util.SchedulerSkippedTotal.WithLabelValues("replica").Inc()
			s.logger.Debug("Another replica holds the scheduler lock")
			return false
		default:
			defer func() {
				if err := s.locker.ReleaseLock(context.WithoutCancel(ctx), schedulerLockKey, token); err != nil {
					s.logger.Warn("Failed to release scheduler lock", zap.Error(err))
				}
			}()
		}
	}

	tickCtx, cancel := context.WithTimeout(ctx, s.interval)
	defer cancel()

	start := time.Now()
	util.SchedulerTicksTotal.Inc()

	summary, err := s.recomputer.RecomputeEventStatuses(tickCtx)
	if err != nil {
		s.logger.Error("Lifecycle pass failed", zap.Error(err))
		return true
	}

	s.logger.Info("Lifecycle pass completed",
		zap.Int("scanned", summary.Scanned),
		zap.Int("updated", summary.Updated),
		zap.Int("failed", summary.Failed),
		zap.Duration("took", time.Since(start)))
	return true
}
