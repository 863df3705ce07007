package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ghiac/ledgermind/log"
)

// Maintainer runs the maintenance passes. *Service implements it.
type Maintainer interface {
	Consolidate(ctx context.Context) (int, error)
	Forget(ctx context.Context) (int, error)
}

// SchedulerConfig holds configuration for the maintenance scheduler
type SchedulerConfig struct {
	// Interval is how often to run consolidate and forget (default: 6 hours)
	Interval time.Duration

	// RunOnStart runs one pass immediately when the scheduler starts
	RunOnStart bool
}

// DefaultSchedulerConfig returns default configuration
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Interval:   6 * time.Hour,
		RunOnStart: true,
	}
}

// Scheduler periodically consolidates and then forgets memories.
type Scheduler struct {
	maintainer Maintainer
	config     SchedulerConfig
	stopChan   chan struct{}
	done       chan struct{}
	running    bool
	mu         sync.Mutex
}

// NewScheduler creates a new maintenance scheduler
func NewScheduler(maintainer Maintainer, config SchedulerConfig) *Scheduler {
	if config.Interval <= 0 {
		config.Interval = DefaultSchedulerConfig().Interval
	}
	return &Scheduler{
		maintainer: maintainer,
		config:     config,
	}
}

// Start starts the scheduler in a background goroutine
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		log.Log.Warnf("[MemoryScheduler] ⚠️  Scheduler is already running")
		return
	}

	s.running = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	log.Log.Infof("[MemoryScheduler] 🚀 Starting maintenance scheduler | Interval: %v | RunOnStart: %v", s.config.Interval, s.config.RunOnStart)

	go s.run(ctx, s.stopChan, s.done)
}

// Stop stops the scheduler and waits for an in-flight pass to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	log.Log.Infof("[MemoryScheduler] 🛑 Stopping maintenance scheduler")
	close(s.stopChan)
	s.running = false
	done := s.done
	s.mu.Unlock()

	<-done
}

func (s *Scheduler) run(ctx context.Context, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	if s.config.RunOnStart {
		s.RunOnce(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-stop:
			log.Log.Infof("[MemoryScheduler] ✅ Scheduler stopped")
			return
		case <-ctx.Done():
			log.Log.Infof("[MemoryScheduler] ✅ Scheduler stopped (context cancelled)")
			return
		}
	}
}

// RunOnce runs consolidate then forget. Failures are logged.
func (s *Scheduler) RunOnce(ctx context.Context) {
	merged, err := s.maintainer.Consolidate(ctx)
	switch {
	case errors.Is(err, ErrMaintenanceInProgress):
		log.Log.Warnf("[MemoryScheduler] ⏭️ Consolidation skipped: another pass is running")
	case err != nil:
		log.Log.Errorf("[MemoryScheduler] ❌ Consolidation failed: %v", err)
	}

	forgotten, err := s.maintainer.Forget(ctx)
	switch {
	case errors.Is(err, ErrMaintenanceInProgress):
		log.Log.Warnf("[MemoryScheduler] ⏭️ Forget skipped: another pass is running")
	case err != nil:
		log.Log.Errorf("[MemoryScheduler] ❌ Forget failed: %v", err)
	}

	log.Log.Infof("[MemoryScheduler] ✅ Maintenance pass completed | Consolidated: %d | Forgotten: %d", merged, forgotten)
}
