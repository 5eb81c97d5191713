package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
)

const taskInsertBatch = 500

// EmbeddingJobRepository handles embedding job data operations
type EmbeddingJobRepository struct {
	db *gorm.DB
}

// NewEmbeddingJobRepository creates a new embedding job repository
func NewEmbeddingJobRepository(db *gorm.DB) *EmbeddingJobRepository {
	return &EmbeddingJobRepository{db: db}
}

// CreateWithTasks creates a job and its queue tasks in one transaction
func (r *EmbeddingJobRepository) CreateWithTasks(ctx context.Context, job *entities.EmbeddingJob, tasks []*entities.QueueTask) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(job).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}
		return tx.CreateInBatches(tasks, taskInsertBatch).Error
	})
}

// GetByID retrieves a job by ID
func (r *EmbeddingJobRepository) GetByID(ctx context.Context, jobID uuid.UUID) (*entities.EmbeddingJob, error) {
	var job entities.EmbeddingJob
	if err := r.db.WithContext(ctx).Where("id = ?", jobID).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &job, nil
}

// RecordFailure counts a recording as failed on its job. A recording
// already in failed_recording_ids is not counted twice.
func (r *EmbeddingJobRepository) RecordFailure(ctx context.Context, jobID uuid.UUID, recordingID int64) error {
	return recordJobFailure(r.db.WithContext(ctx), jobID, recordingID, time.Now())
}

func recordJobFailure(tx *gorm.DB, jobID uuid.UUID, recordingID int64, now time.Time) error {
	return tx.Model(&entities.EmbeddingJob{}).
		Where("id = ? AND NOT (?::bigint = ANY(failed_recording_ids))", jobID, recordingID).
		Updates(map[string]interface{}{
			"progress_current":     gorm.Expr("LEAST(progress_current + 1, progress_total)"),
			"queue_failed":         gorm.Expr("queue_failed + 1"),
			"failed_recording_ids": gorm.Expr("array_append(failed_recording_ids, ?::bigint)", recordingID),
			"updated_at":           now,
		}).Error
}

// Finalize sets the terminal status of a job
func (r *EmbeddingJobRepository) Finalize(ctx context.Context, jobID uuid.UUID, status entities.EmbeddingJobStatus, errMsg *string) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&entities.EmbeddingJob{}).
		Where("id = ?", jobID).
		Updates(map[string]interface{}{
			"status":        status,
			"error_message": errMsg,
			"completed_at":  now,
			"updated_at":    now,
		}).Error
}

// FinalizeSettled closes running jobs whose tasks are all completed or
// dead-lettered
func (r *EmbeddingJobRepository) FinalizeSettled(ctx context.Context) (int64, error) {
	res := r.db.WithContext(ctx).Exec(`
		UPDATE embedding_jobs j
		SET status = CASE WHEN j.queue_total > 0 AND j.queue_failed >= j.queue_total THEN ? ELSE ? END,
			completed_at = NOW(),
			updated_at = NOW()
		WHERE j.status = ?
		  AND NOT EXISTS (
			SELECT 1 FROM embedding_queue q
			WHERE q.job_id = j.id AND q.status IN ?
		  )`,
		entities.EmbeddingJobStatusFailed,
		entities.EmbeddingJobStatusCompleted,
		entities.EmbeddingJobStatusRunning,
		[]entities.QueueTaskStatus{
			entities.QueueTaskStatusPending,
			entities.QueueTaskStatusProcessing,
			entities.QueueTaskStatusFailed,
		},
	)
	return res.RowsAffected, res.Error
}
