package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/transcript-indexer/internal/domain/repositories"
	"github.com/johnquangdev/transcript-indexer/pkg/jobcontext"
)

// DrainInput scopes one queue drain invocation
type DrainInput struct {
	JobID     *uuid.UUID
	BatchSize int
}

// DrainResult summarises a queue drain invocation
type DrainResult struct {
	WorkerID         string
	Processed        int
	Failed           int
	Released         int
	ChunksCreated    int
	Duration         time.Duration
	PendingRemaining int64
	JobsFinalized    int64
}

// DrainQueue claims a batch of due tasks and indexes them with the primary
// tuning inside the drain budget. Tasks still claimed when the budget runs
// out are released untouched.
func (s *service) DrainQueue(ctx context.Context, input DrainInput) (*DrainResult, error) {
	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = s.opts.DrainBatchSize
	}
	if batchSize > maxDrainBatchSize {
		batchSize = maxDrainBatchSize
	}

	workerID := jobcontext.NewWorkerID(jobcontext.JobTypeDrain)
	ctx, cancel := jobcontext.JobBegin(ctx, jobcontext.JobTypeDrain, workerID, s.opts.DrainBudget)
	defer cancel()
	bookCtx := context.WithoutCancel(ctx)

	tasks, err := s.queue.ClaimBatch(ctx, repositories.ClaimFilter{
		WorkerID: workerID,
		JobID:    input.JobID,
		Limit:    batchSize,
		Now:      s.now(),
		LockTTL:  s.opts.LockTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim tasks: %w", err)
	}

	result := &DrainResult{WorkerID: workerID}
	s.logger.Info("🔄 Queue drain started",
		zap.String("worker_id", workerID),
		zap.Int("claimed", len(tasks)),
	)

	for i, task := range tasks {
		if ctx.Err() != nil {
			for _, rest := range tasks[i:] {
				if err := s.queue.Release(bookCtx, rest.ID, workerID); err != nil {
					s.logger.Error("❌ Failed to release task",
						zap.String("task_id", rest.ID.String()),
						zap.Error(err),
					)
					continue
				}
				result.Released++
			}
			s.logger.Warn("⏱️ Drain budget exhausted",
				zap.String("worker_id", workerID),
				zap.Int("released", result.Released),
			)
			break
		}

		chunks, err := s.runTask(jobcontext.WithJobID(ctx, task.JobID), task, s.opts.Primary)
		if err != nil {
			result.Failed++
			continue
		}
		result.Processed++
		result.ChunksCreated += chunks
	}

	remaining, err := s.queue.CountDue(bookCtx, s.now(), input.JobID)
	if err != nil {
		s.logger.Warn("⚠️ Failed to count remaining tasks", zap.Error(err))
	}
	result.PendingRemaining = remaining

	if remaining == 0 {
		finalized, err := s.jobs.FinalizeSettled(bookCtx)
		if err != nil {
			s.logger.Warn("⚠️ Failed to finalize settled jobs", zap.Error(err))
		}
		result.JobsFinalized = finalized
	}

	result.Duration = jobcontext.Elapsed(ctx)
	s.logger.Info("✅ Queue drain finished",
		zap.String("worker_id", workerID),
		zap.Int("processed", result.Processed),
		zap.Int("failed", result.Failed),
		zap.Int("chunks", result.ChunksCreated),
		zap.Int64("pending_remaining", remaining),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}
