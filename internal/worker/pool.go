// Package worker runs state persistence off the request path.
//
// The pool has exactly one worker so snapshots are written in submission
// order and the last write always holds the latest state.
package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/okamoto/hr-dashboard/internal/config"
	"github.com/okamoto/hr-dashboard/internal/models"
	"go.uber.org/zap"
)

// Custom errors
var (
	ErrQueueFull = errors.New("job queue is full")
	ErrStopped   = errors.New("worker pool is stopped")
)

// Pool queues persistence jobs for a single background writer
type Pool struct {
	config    *config.WorkerConfig
	processor *Processor
	jobs      chan *models.PersistJob
	results   chan *models.PersistResult
	logger    *zap.Logger
	wg        sync.WaitGroup

	mu      sync.RWMutex
	stopped bool

	statsMu      sync.Mutex
	persisted    uint64
	lastRevision uint64
	failures     int
	superseded   int
	outdated     int
	lastErr      error
}

// NewPool creates a new worker pool
func NewPool(cfg *config.WorkerConfig, processor *Processor, logger *zap.Logger) *Pool {
	return &Pool{
		config:    cfg,
		processor: processor,
		jobs:      make(chan *models.PersistJob, cfg.QueueSize),
		results:   make(chan *models.PersistResult, cfg.QueueSize),
		logger:    logger,
	}
}

// Start starts the writer and the result handler
func (p *Pool) Start() {
	p.logger.Info("starting persistence worker", zap.Int("queue_size", p.config.QueueSize))

	p.wg.Add(1)
	go p.worker()

	p.wg.Add(1)
	go p.resultHandler()
}

// worker processes jobs until the job channel is closed and drained
func (p *Pool) worker() {
	defer p.wg.Done()
	defer close(p.results)

	for job := range p.jobs {
		p.processJob(job)
	}
}

// processJob processes a single job
func (p *Pool) processJob(job *models.PersistJob) {
	startTime := time.Now()

	timeout := p.config.ProcessTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	// jobs drained by Stop still get the full timeout
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	result := p.processor.Process(ctx, job)
	result.ProcessedAt = time.Now()

	if !result.Success {
		p.logger.Error("persist job failed",
			zap.Uint64("revision", job.Revision),
			zap.Duration("duration", time.Since(startTime)),
			zap.Error(result.Error))
	}

	p.results <- result
}

// resultHandler records processing results
func (p *Pool) resultHandler() {
	defer p.wg.Done()

	for result := range p.results {
		p.handleResult(result)
	}
}

// handleResult handles a single processing result
func (p *Pool) handleResult(result *models.PersistResult) {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	if result.Skipped {
		p.outdated++
		return
	}

	if result.Success {
		p.persisted++
		if result.Revision > p.lastRevision {
			p.lastRevision = result.Revision
		}
		return
	}

	p.failures++
	p.lastErr = result.Error
}

// Submit queues a job without blocking. When the queue is full the oldest
// pending snapshot is dropped, since a newer one supersedes it.
func (p *Pool) Submit(job *models.PersistJob) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.stopped {
		return ErrStopped
	}

	select {
	case p.jobs <- job:
		return nil
	default:
	}

	select {
	case old := <-p.jobs:
		p.statsMu.Lock()
		p.superseded++
		p.statsMu.Unlock()
		p.logger.Debug("superseded pending snapshot",
			zap.Uint64("dropped_revision", old.Revision),
			zap.Uint64("revision", job.Revision))
	default:
	}

	select {
	case p.jobs <- job:
		return nil
	default:
		// another submitter refilled the slot first
		p.logger.Warn("job queue full, rejecting job", zap.Uint64("revision", job.Revision))
		return ErrQueueFull
	}
}

// Stop drains pending jobs and stops the pool
func (p *Pool) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	close(p.jobs)
	p.mu.Unlock()

	p.logger.Info("stopping persistence worker")

	p.wg.Wait()

	p.logger.Info("persistence worker stopped")
}

// Stats returns statistics about the worker pool
func (p *Pool) Stats() PoolStats {
	p.statsMu.Lock()
	defer p.statsMu.Unlock()

	stats := PoolStats{
		QueueSize:    p.config.QueueSize,
		JobsInQueue:  len(p.jobs),
		Persisted:    p.persisted,
		LastRevision: p.lastRevision,
		Failures:     p.failures,
		Superseded:   p.superseded,
		Outdated:     p.outdated,
	}
	if p.lastErr != nil {
		stats.LastError = p.lastErr.Error()
	}
	return stats
}

// PoolStats represents worker pool statistics
type PoolStats struct {
	QueueSize    int    `json:"queue_size"`
	JobsInQueue  int    `json:"jobs_in_queue"`
	Persisted    uint64 `json:"persisted"`
	LastRevision uint64 `json:"last_revision"`
	Failures     int    `json:"failures"`
	Superseded   int    `json:"superseded"`
	Outdated     int    `json:"outdated"`
	LastError    string `json:"last_error,omitempty"`
}
