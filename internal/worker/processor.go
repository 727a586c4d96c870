package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/okamoto/hr-dashboard/internal/models"
	"go.uber.org/zap"
)

// Saver writes an encoded state document tagged with its revision. It
// reports false when a newer revision is already stored.
type Saver interface {
	SaveRevision(ctx context.Context, revision uint64, payload []byte) (bool, error)
}

// Processor writes persistence jobs through a Saver
type Processor struct {
	saver  Saver
	logger *zap.Logger
}

// NewProcessor creates a new processor
func NewProcessor(saver Saver, logger *zap.Logger) *Processor {
	return &Processor{
		saver:  saver,
		logger: logger,
	}
}

// Process persists a single snapshot
func (p *Processor) Process(ctx context.Context, job *models.PersistJob) *models.PersistResult {
	result := &models.PersistResult{Revision: job.Revision}

	if len(job.Payload) == 0 {
		result.Error = fmt.Errorf("empty payload for revision %d", job.Revision)
		return result
	}

	stored, err := p.saver.SaveRevision(ctx, job.Revision, job.Payload)
	if err != nil {
		result.Error = fmt.Errorf("failed to persist revision %d: %w", job.Revision, err)
		return result
	}
	result.Success = true
	if !stored {
		result.Skipped = true
		p.logger.Debug("snapshot outdated, not written", zap.Uint64("revision", job.Revision))
		return result
	}

	p.logger.Debug("snapshot persisted",
		zap.Uint64("revision", job.Revision),
		zap.Int("bytes", len(job.Payload)),
		zap.Duration("queued_for", time.Since(job.SubmittedAt)))

	return result
}
