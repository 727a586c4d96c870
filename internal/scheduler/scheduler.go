// Package scheduler runs periodic housekeeping jobs on cron schedules.
package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// JobFunc is a housekeeping task. It receives a context cancelled on Stop.
type JobFunc func(ctx context.Context) error

// Scheduler wraps a cron runner with logging and a shared context
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger
	jobs   int
}

// New creates a stopped scheduler using UTC schedules
func New(logger *zap.Logger) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		cron:   cron.New(cron.WithLocation(time.UTC), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger))),
		ctx:    ctx,
		cancel: cancel,
		logger: logger,
	}
}

// AddJob registers fn under spec, e.g. "@every 1m". An empty spec skips the job.
func (s *Scheduler) AddJob(name, spec string, fn JobFunc) error {
	if spec == "" {
		s.logger.Info("job disabled", zap.String("job", name))
		return nil
	}

	_, err := s.cron.AddFunc(spec, func() {
		start := time.Now()
		if err := fn(s.ctx); err != nil {
			s.logger.Error("scheduled job failed",
				zap.String("job", name),
				zap.Error(err))
			return
		}
		s.logger.Debug("scheduled job completed",
			zap.String("job", name),
			zap.Duration("elapsed", time.Since(start)))
	})
	if err != nil {
		return fmt.Errorf("invalid schedule %q for job %s: %w", spec, name, err)
	}

	s.jobs++
	s.logger.Info("job scheduled", zap.String("job", name), zap.String("schedule", spec))
	return nil
}

// Start begins running scheduled jobs
func (s *Scheduler) Start() {
	s.cron.Start()
	s.logger.Info("scheduler started", zap.Int("jobs", s.jobs))
}

// Stop cancels running jobs and waits for them to return
func (s *Scheduler) Stop() {
	s.cancel()
	<-s.cron.Stop().Done()
	s.logger.Info("scheduler stopped")
}

// Jobs returns the number of registered jobs
func (s *Scheduler) Jobs() int {
	return s.jobs
}
