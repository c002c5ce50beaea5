package application

import (
	"context"
	"os"
	"sync"
	"time"

	"go.uber.org/zap"
)

// RunFunc executes one pipeline run. Watch mode swaps it out on config
// reload.
type RunFunc func(ctx context.Context) error

// Scheduler reruns the pipeline on a fixed interval. A pause file on disk
// suspends runs without stopping the process.
type Scheduler struct {
	log       *zap.Logger
	every     time.Duration
	pauseFile string

	mu  sync.RWMutex
	run RunFunc
}

func NewScheduler(l *zap.Logger, run RunFunc, every time.Duration, pauseFile string) *Scheduler {
	return &Scheduler{
		log: l, run: run, every: every, pauseFile: pauseFile,
	}
}

func (s *Scheduler) UpdateRun(run RunFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.run = run
	s.log.Info("watch config reloaded")
}

func (s *Scheduler) Run(ctx context.Context) {
	t := time.NewTicker(s.every)
	defer t.Stop()

	s.tick(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	if s.isPaused() {
		s.log.Debug("paused: skipping run")
		return
	}

	s.mu.RLock()
	run := s.run
	s.mu.RUnlock()

	if err := run(ctx); err != nil {
		s.log.Warn("scheduled run failed", zap.Error(err))
	}
}

func (s *Scheduler) isPaused() bool {
	if s.pauseFile == "" {
		return false
	}
	_, err := os.Stat(s.pauseFile)
	return err == nil
}
