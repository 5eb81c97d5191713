// Package embedding schedules transcript indexing: the primary job
// orchestrator, the queue drain and the dead-letter recovery worker all run
// the same indexing pipeline with different tuning.
package embedding

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
	"github.com/johnquangdev/transcript-indexer/internal/domain/repositories"
	"github.com/johnquangdev/transcript-indexer/internal/usecase/chunking"
	"github.com/johnquangdev/transcript-indexer/internal/usecase/indexing"
	"github.com/johnquangdev/transcript-indexer/pkg/config"
	"github.com/johnquangdev/transcript-indexer/pkg/jobcontext"
)

// Service defines embedding orchestration methods
type Service interface {
	StartJob(ctx context.Context, input StartJobInput) (*JobResult, error)
	GetJob(ctx context.Context, userID, jobID uuid.UUID) (*entities.EmbeddingJob, error)
	DrainQueue(ctx context.Context, input DrainInput) (*DrainResult, error)
	RecoverDeadLetter(ctx context.Context, input RecoveryInput) (*RecoveryResult, error)
}

// Indexer rebuilds the chunks of one recording
type Indexer interface {
	IndexRecording(ctx context.Context, userID uuid.UUID, recordingID int64, params indexing.Params) (*indexing.Result, error)
}

// Options holds the operational tuning of every scheduler
type Options struct {
	Primary  indexing.Params
	Recovery indexing.Params

	Retry    RetryPolicy
	Cooldown RetryPolicy

	MaxAttempts    int
	LockTTL        time.Duration
	DrainBatchSize int
	DrainBudget    time.Duration
	EmbeddingModel string
}

// OptionsFromConfig maps configuration onto scheduler tuning
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Primary: indexing.Params{
			Chunking: chunking.Options{
				TargetTokens:  cfg.Chunking.TargetTokens,
				OverlapTokens: cfg.Chunking.OverlapTokens,
				MaxTokens:     cfg.Chunking.MaxTokens,
			},
			EmbedBatchSize:  cfg.Embedding.BatchSize,
			InsertBatchSize: cfg.Pipeline.InsertBatchSize,
			Budget:          cfg.Pipeline.Budget,
		},
		Recovery: indexing.Params{
			Chunking: chunking.Options{
				TargetTokens:  cfg.Recovery.TargetTokens,
				OverlapTokens: cfg.Recovery.OverlapTokens,
				MaxTokens:     cfg.Recovery.MaxTokens,
			},
			EmbedBatchSize:  cfg.Embedding.BatchSize,
			InsertBatchSize: cfg.Recovery.InsertBatchSize,
			Budget:          cfg.Recovery.Budget,
		},
		Retry: RetryPolicy{
			BaseDelay:  cfg.Queue.BaseDelay,
			Multiplier: cfg.Queue.Multiplier,
			MaxDelay:   cfg.Queue.MaxDelay,
		},
		Cooldown: RetryPolicy{
			BaseDelay:  cfg.Recovery.Cooldown,
			Multiplier: 2,
			MaxDelay:   cfg.Recovery.MaxCooldown,
		},
		MaxAttempts:    cfg.Queue.MaxAttempts,
		LockTTL:        cfg.Recovery.LockTTL,
		DrainBatchSize: cfg.Queue.DrainBatchSize,
		DrainBudget:    cfg.Queue.DrainBudget,
		EmbeddingModel: cfg.Embedding.Model,
	}
}

const (
	defaultDrainBatchSize = 10
	maxDrainBatchSize     = 50
	defaultDrainBudget    = 90 * time.Second
	defaultLockTTL        = 10 * time.Minute
)

type service struct {
	transcripts repositories.TranscriptRepository
	jobs        repositories.EmbeddingJobRepository
	queue       repositories.QueueRepository
	indexer     Indexer
	opts        Options
	logger      *zap.Logger
	now         func() time.Time
}

// NewService constructs the embedding service
func NewService(
	transcripts repositories.TranscriptRepository,
	jobs repositories.EmbeddingJobRepository,
	queue repositories.QueueRepository,
	indexer Indexer,
	opts Options,
	logger *zap.Logger,
) Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts.Retry = opts.Retry.orDefault(DefaultRetryPolicy)
	opts.Cooldown = opts.Cooldown.orDefault(DefaultCooldownPolicy)
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = entities.DefaultMaxAttempts
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaultLockTTL
	}
	if opts.DrainBatchSize <= 0 {
		opts.DrainBatchSize = defaultDrainBatchSize
	}
	if opts.DrainBudget <= 0 {
		opts.DrainBudget = defaultDrainBudget
	}
	return &service{
		transcripts: transcripts,
		jobs:        jobs,
		queue:       queue,
		indexer:     indexer,
		opts:        opts,
		logger:      logger,
		now:         time.Now,
	}
}

// StartJobInput selects the recordings of a primary run
type StartJobInput struct {
	UserID       uuid.UUID
	RecordingIDs []int64
	AutoDiscover bool
}

// JobResult summarises a finished primary run. JobID is nil when
// auto-discovery found nothing to index.
type JobResult struct {
	JobID               *uuid.UUID
	Status              entities.EmbeddingJobStatus
	RecordingsProcessed int
	RecordingsFailed    int
	ChunksCreated       int
	FailedRecordingIDs  []int64
}

// StartJob creates a job over the selected recordings and indexes them one
// at a time. A failing recording is recorded and never aborts the run.
func (s *service) StartJob(ctx context.Context, input StartJobInput) (*JobResult, error) {
	recordingIDs, trigger, err := s.selectRecordings(ctx, input)
	if err != nil {
		return nil, err
	}
	if len(recordingIDs) == 0 {
		s.logger.Info("📭 Nothing to index", zap.String("user_id", input.UserID.String()))
		return &JobResult{Status: entities.EmbeddingJobStatusCompleted, FailedRecordingIDs: []int64{}}, nil
	}

	workerID := jobcontext.NewWorkerID(jobcontext.JobTypeIndex)
	job := entities.NewEmbeddingJob(input.UserID, recordingIDs, entities.EmbeddingJobMetadata{
		Trigger:        trigger,
		WorkerID:       workerID,
		TargetTokens:   s.opts.Primary.Chunking.TargetTokens,
		OverlapTokens:  s.opts.Primary.Chunking.OverlapTokens,
		MaxTokens:      s.opts.Primary.Chunking.MaxTokens,
		EmbeddingModel: s.opts.EmbeddingModel,
	})
	tasks := make([]*entities.QueueTask, len(recordingIDs))
	for i, id := range recordingIDs {
		tasks[i] = entities.NewQueueTask(job.ID, input.UserID, id, s.opts.MaxAttempts)
	}
	if err := s.jobs.CreateWithTasks(ctx, job, tasks); err != nil {
		return nil, fmt.Errorf("failed to create embedding job: %w", err)
	}

	ctx, cancel := jobcontext.JobBegin(ctx, jobcontext.JobTypeIndex, workerID, 0)
	defer cancel()
	ctx = jobcontext.WithJobID(ctx, job.ID)

	s.logger.Info("🚀 Embedding job started",
		zap.String("job_id", job.ID.String()),
		zap.String("worker_id", workerID),
		zap.String("trigger", string(trigger)),
		zap.Int("recordings", len(recordingIDs)),
	)

	result := &JobResult{JobID: &job.ID, FailedRecordingIDs: []int64{}}
	for _, task := range tasks {
		claimed, err := s.queue.Claim(ctx, task.ID, workerID, s.now(), s.opts.LockTTL)
		if err == nil && !claimed {
			err = entities.ErrTaskNotClaimed
		}
		if err != nil {
			s.logger.Warn("⚠️ Could not claim task",
				zap.String("task_id", task.ID.String()),
				zap.Int64("recording_id", task.RecordingID),
				zap.Error(err),
			)
			if rerr := s.jobs.RecordFailure(context.WithoutCancel(ctx), job.ID, task.RecordingID); rerr != nil {
				s.logger.Error("❌ Failed to record unclaimed task",
					zap.String("task_id", task.ID.String()),
					zap.Error(rerr),
				)
			}
			result.RecordingsFailed++
			result.FailedRecordingIDs = append(result.FailedRecordingIDs, task.RecordingID)
			continue
		}

		chunks, err := s.runTask(ctx, task, s.opts.Primary)
		if err != nil {
			result.RecordingsFailed++
			result.FailedRecordingIDs = append(result.FailedRecordingIDs, task.RecordingID)
			continue
		}
		result.RecordingsProcessed++
		result.ChunksCreated += chunks
	}

	result.Status = entities.ResolveJobStatus(len(recordingIDs), result.RecordingsFailed)
	var errMsg *string
	if result.RecordingsFailed > 0 {
		msg := fmt.Sprintf("%d of %d recordings failed", result.RecordingsFailed, len(recordingIDs))
		errMsg = &msg
	}
	if err := s.jobs.Finalize(context.WithoutCancel(ctx), job.ID, result.Status, errMsg); err != nil {
		s.logger.Error("❌ Failed to finalize embedding job",
			zap.String("job_id", job.ID.String()),
			zap.Error(err),
		)
	}

	s.logger.Info("🏁 Embedding job finished",
		zap.String("job_id", job.ID.String()),
		zap.String("status", string(result.Status)),
		zap.Int("processed", result.RecordingsProcessed),
		zap.Int("failed", result.RecordingsFailed),
		zap.Int("chunks", result.ChunksCreated),
		zap.Duration("elapsed", jobcontext.Elapsed(ctx)),
	)

	return result, nil
}

func (s *service) selectRecordings(ctx context.Context, input StartJobInput) ([]int64, entities.EmbeddingJobTrigger, error) {
	if input.AutoDiscover {
		ids, err := s.transcripts.ListUnindexedRecordingIDs(ctx, input.UserID)
		if err != nil {
			return nil, "", fmt.Errorf("failed to discover recordings: %w", err)
		}
		return ids, entities.EmbeddingJobTriggerAutoDiscover, nil
	}

	ids := dedupe(input.RecordingIDs)
	if len(ids) == 0 {
		return nil, "", entities.ErrEmptyRecordingSelection
	}
	return ids, entities.EmbeddingJobTriggerExplicit, nil
}

// runTask indexes a claimed task and settles it. Bookkeeping runs on a
// context that outlives the run budget so the claim is always cleared.
func (s *service) runTask(ctx context.Context, task *entities.QueueTask, params indexing.Params) (int, error) {
	res, err := s.indexer.IndexRecording(ctx, task.UserID, task.RecordingID, params)
	bookCtx := context.WithoutCancel(ctx)

	if err != nil {
		failure := s.failureFor(task, err)
		if ferr := s.queue.Fail(bookCtx, task, failure); ferr != nil {
			s.logger.Error("❌ Failed to record task failure",
				zap.String("task_id", task.ID.String()),
				zap.Error(ferr),
			)
		}
		s.logger.Warn("⚠️ Recording indexing failed",
			zap.String("task_id", task.ID.String()),
			zap.Int64("recording_id", task.RecordingID),
			zap.Int("attempt", task.Attempts+1),
			zap.Bool("dead_letter", failure.DeadLetter),
			zap.Error(err),
		)
		return 0, err
	}

	if _, err := s.queue.Complete(bookCtx, task, res.ChunksCreated); err != nil {
		s.logger.Error("❌ Failed to complete task",
			zap.String("task_id", task.ID.String()),
			zap.Error(err),
		)
		return 0, fmt.Errorf("complete task: %w", err)
	}
	return res.ChunksCreated, nil
}

// failureFor decides between a scheduled retry and the dead letter.
func (s *service) failureFor(task *entities.QueueTask, err error) repositories.TaskFailure {
	failure := repositories.TaskFailure{Error: err.Error()}
	if task.ExhaustsAttempts() {
		failure.DeadLetter = true
		return failure
	}
	next := s.opts.Retry.NextAt(s.now(), task.Attempts+1)
	failure.NextRetryAt = &next
	return failure
}

// GetJob returns the caller's job
func (s *service) GetJob(ctx context.Context, userID, jobID uuid.UUID) (*entities.EmbeddingJob, error) {
	job, err := s.jobs.GetByID(ctx, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get embedding job: %w", err)
	}
	if job == nil || job.UserID != userID {
		return nil, entities.ErrJobNotFound
	}
	return job, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
