package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
	"github.com/johnquangdev/transcript-indexer/internal/domain/repositories"
	"github.com/johnquangdev/transcript-indexer/pkg/jobcontext"
)

// recoveryErrorPrefix marks last_error values written by the recovery worker
const recoveryErrorPrefix = "[RETRY] "

// RecoveryInput scopes one recovery invocation. A nil UserID recovers any
// user's tasks.
type RecoveryInput struct {
	UserID      *uuid.UUID
	RecordingID *int64
	ForceRetry  bool
}

// RecoveryResult reports a recovery invocation. Processed is 0 when no
// dead-lettered task was eligible.
type RecoveryResult struct {
	WorkerID            string
	Processed           int
	RecordingID         int64
	ChunksCreated       int
	Duration            time.Duration
	DeadLetterRemaining int64
}

// RecoveryError is returned when the selected task failed again. Its
// bookkeeping has already been written.
type RecoveryError struct {
	WorkerID    string
	RecordingID int64
	NextRetryAt time.Time
	Err         error
}

func (e *RecoveryError) Error() string {
	return fmt.Sprintf("recovery of recording %d failed: %v", e.RecordingID, e.Err)
}

func (e *RecoveryError) Unwrap() error {
	return e.Err
}

// RecoverDeadLetter reprocesses the oldest eligible dead-lettered task with
// the recovery tuning.
func (s *service) RecoverDeadLetter(ctx context.Context, input RecoveryInput) (*RecoveryResult, error) {
	workerID := jobcontext.NewWorkerID(jobcontext.JobTypeRecovery)
	ctx, cancel := jobcontext.JobBegin(ctx, jobcontext.JobTypeRecovery, workerID, 0)
	defer cancel()
	bookCtx := context.WithoutCancel(ctx)

	task, err := s.queue.ClaimDeadLetter(ctx, repositories.DeadLetterFilter{
		WorkerID:    workerID,
		RecordingID: input.RecordingID,
		UserID:      input.UserID,
		ForceRetry:  input.ForceRetry,
		Now:         s.now(),
		LockTTL:     s.opts.LockTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to claim dead-letter task: %w", err)
	}
	if task == nil {
		s.logger.Info("📭 No dead-letter tasks", zap.String("worker_id", workerID))
		return &RecoveryResult{WorkerID: workerID, Duration: jobcontext.Elapsed(ctx)}, nil
	}

	ctx = jobcontext.WithJobID(ctx, task.JobID)
	s.logger.Info("🔁 Recovering dead-letter task",
		zap.String("worker_id", workerID),
		zap.String("task_id", task.ID.String()),
		zap.Int64("recording_id", task.RecordingID),
		zap.Int("attempts", task.Attempts),
		zap.Bool("force_retry", input.ForceRetry),
	)

	res, err := s.indexer.IndexRecording(ctx, task.UserID, task.RecordingID, s.opts.Recovery)
	if err != nil {
		return nil, s.deferRecovery(bookCtx, workerID, task, err)
	}

	if _, err := s.queue.Complete(bookCtx, task, res.ChunksCreated); err != nil {
		// the claim must not outlive this call
		return nil, s.deferRecovery(bookCtx, workerID, task, fmt.Errorf("complete task: %w", err))
	}

	remaining, err := s.queue.CountByStatus(bookCtx, entities.QueueTaskStatusDeadLetter, input.UserID)
	if err != nil {
		s.logger.Warn("⚠️ Failed to count dead-letter backlog", zap.Error(err))
	}

	result := &RecoveryResult{
		WorkerID:            workerID,
		Processed:           1,
		RecordingID:         task.RecordingID,
		ChunksCreated:       res.ChunksCreated,
		Duration:            jobcontext.Elapsed(ctx),
		DeadLetterRemaining: remaining,
	}
	s.logger.Info("✅ Dead-letter task recovered",
		zap.String("worker_id", workerID),
		zap.Int64("recording_id", task.RecordingID),
		zap.Int("chunks", res.ChunksCreated),
		zap.Int64("dead_letter_remaining", remaining),
		zap.Duration("duration", result.Duration),
	)
	return result, nil
}

// recoveryRound numbers recovery attempts from 1 for the cool-down curve
func recoveryRound(task *entities.QueueTask) int {
	if n := task.Attempts - task.MaxAttempts + 1; n > 1 {
		return n
	}
	return 1
}

// deferRecovery returns a claimed dead-letter task to the backlog with the
// next cooldown and clears its claim.
func (s *service) deferRecovery(ctx context.Context, workerID string, task *entities.QueueTask, cause error) *RecoveryError {
	next := s.opts.Cooldown.NextAt(s.now(), recoveryRound(task))
	if derr := s.queue.DeferDeadLetter(ctx, task, recoveryErrorPrefix+cause.Error(), next); derr != nil {
		s.logger.Error("❌ Failed to record recovery failure",
			zap.String("task_id", task.ID.String()),
			zap.Error(derr),
		)
	}
	s.logger.Error("❌ Recovery failed",
		zap.String("worker_id", workerID),
		zap.Int64("recording_id", task.RecordingID),
		zap.Time("next_retry_at", next),
		zap.Error(cause),
	)
	return &RecoveryError{
		WorkerID:    workerID,
		RecordingID: task.RecordingID,
		NextRetryAt: next,
		Err:         cause,
	}
}
