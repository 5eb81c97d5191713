package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
	"github.com/johnquangdev/transcript-indexer/internal/domain/repositories"
)

// QueueRepository handles embedding queue tasks and the job counters that
// settle with them
type QueueRepository struct {
	db *gorm.DB
}

// NewQueueRepository creates a new queue repository
func NewQueueRepository(db *gorm.DB) *QueueRepository {
	return &QueueRepository{db: db}
}

// Claim locks a single task for a worker and marks it processing
func (r *QueueRepository) Claim(ctx context.Context, taskID uuid.UUID, workerID string, now time.Time, lockTTL time.Duration) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&entities.QueueTask{}).
		Where("id = ? AND status <> ?", taskID, entities.QueueTaskStatusCompleted).
		Where("(locked_at IS NULL OR locked_at < ?)", now.Add(-lockTTL)).
		Updates(map[string]interface{}{
			"status":     entities.QueueTaskStatusProcessing,
			"locked_at":  now,
			"worker_id":  workerID,
			"updated_at": now,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// ClaimBatch locks due pending/failed tasks and abandoned processing tasks.
// A running job whose row moved within the lock TTL still has a live
// primary run, so its tasks are left alone.
func (r *QueueRepository) ClaimBatch(ctx context.Context, filter repositories.ClaimFilter) ([]*entities.QueueTask, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 10
	}
	staleCutoff := filter.Now.Add(-filter.LockTTL)

	var claimed []*entities.QueueTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status IN ?", []entities.QueueTaskStatus{
				entities.QueueTaskStatusPending,
				entities.QueueTaskStatusFailed,
				entities.QueueTaskStatusProcessing,
			}).
			Where("(next_retry_at IS NULL OR next_retry_at <= ?)", filter.Now).
			Where("(locked_at IS NULL OR locked_at < ?)", staleCutoff).
			Where(`NOT EXISTS (
				SELECT 1 FROM embedding_jobs j
				WHERE j.id = embedding_queue.job_id AND j.status = ? AND j.updated_at > ?
			)`, entities.EmbeddingJobStatusRunning, staleCutoff)
		if filter.JobID != nil {
			q = q.Where("job_id = ?", *filter.JobID)
		}

		var tasks []*entities.QueueTask
		if err := q.Order("created_at ASC").Limit(limit).Find(&tasks).Error; err != nil {
			return err
		}
		if len(tasks) == 0 {
			return nil
		}

		ids := make([]uuid.UUID, len(tasks))
		for i, t := range tasks {
			ids[i] = t.ID
		}
		if err := tx.Model(&entities.QueueTask{}).
			Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     entities.QueueTaskStatusProcessing,
				"locked_at":  filter.Now,
				"worker_id":  filter.WorkerID,
				"updated_at": filter.Now,
			}).Error; err != nil {
			return err
		}

		workerID := filter.WorkerID
		for _, t := range tasks {
			now := filter.Now
			t.Status = entities.QueueTaskStatusProcessing
			t.LockedAt = &now
			t.WorkerID = &workerID
		}
		claimed = tasks
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// ClaimDeadLetter locks the oldest eligible dead-lettered task
func (r *QueueRepository) ClaimDeadLetter(ctx context.Context, filter repositories.DeadLetterFilter) (*entities.QueueTask, error) {
	var claimed *entities.QueueTask
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
			Where("status = ?", entities.QueueTaskStatusDeadLetter).
			Where("(locked_at IS NULL OR locked_at < ?)", filter.Now.Add(-filter.LockTTL))
		if filter.RecordingID != nil {
			q = q.Where("recording_id = ?", *filter.RecordingID)
		}
		if filter.UserID != nil {
			q = q.Where("user_id = ?", *filter.UserID)
		}
		if !filter.ForceRetry {
			q = q.Where("(next_retry_at IS NULL OR next_retry_at <= ?)", filter.Now)
		}

		var task entities.QueueTask
		if err := q.Order("created_at ASC").First(&task).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		if err := tx.Model(&entities.QueueTask{}).
			Where("id = ?", task.ID).
			Updates(map[string]interface{}{
				"locked_at":  filter.Now,
				"worker_id":  filter.WorkerID,
				"updated_at": filter.Now,
			}).Error; err != nil {
			return err
		}

		now, workerID := filter.Now, filter.WorkerID
		task.LockedAt = &now
		task.WorkerID = &workerID
		claimed = &task
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Release clears a worker's claim and returns the task to pending
func (r *QueueRepository) Release(ctx context.Context, taskID uuid.UUID, workerID string) error {
	return r.db.WithContext(ctx).
		Model(&entities.QueueTask{}).
		Where("id = ? AND worker_id = ? AND status = ?", taskID, workerID, entities.QueueTaskStatusProcessing).
		Updates(map[string]interface{}{
			"status":     entities.QueueTaskStatusPending,
			"locked_at":  nil,
			"worker_id":  nil,
			"updated_at": time.Now(),
		}).Error
}

// Complete marks a task completed and credits its job. The status guard
// makes a repeated completion a no-op.
func (r *QueueRepository) Complete(ctx context.Context, task *entities.QueueTask, chunksCreated int) (bool, error) {
	credited := false
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&entities.QueueTask{}).
			Where("id = ? AND status <> ?", task.ID, entities.QueueTaskStatusCompleted).
			Updates(map[string]interface{}{
				"status":       entities.QueueTaskStatusCompleted,
				"completed_at": now,
				"locked_at":    nil,
				"worker_id":    nil,
				"updated_at":   now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}

		// A recording already counted as failed moves from the failed
		// tally to the completed one instead of advancing progress.
		failed := gorm.Expr("?::bigint = ANY(failed_recording_ids)", task.RecordingID)
		updates := map[string]interface{}{
			"progress_current":     gorm.Expr("CASE WHEN ? THEN progress_current ELSE LEAST(progress_current + 1, progress_total) END", failed),
			"queue_failed":         gorm.Expr("CASE WHEN ? THEN GREATEST(queue_failed - 1, 0) ELSE queue_failed END", failed),
			"status":               gorm.Expr("CASE WHEN ? AND status = ? THEN ? ELSE status END", failed, entities.EmbeddingJobStatusFailed, entities.EmbeddingJobStatusCompleted),
			"failed_recording_ids": gorm.Expr("array_remove(failed_recording_ids, ?::bigint)", task.RecordingID),
			"chunks_created":       gorm.Expr("chunks_created + ?", chunksCreated),
			"queue_completed":      gorm.Expr("queue_completed + 1"),
			"updated_at":           now,
		}
		if err := tx.Model(&entities.EmbeddingJob{}).Where("id = ?", task.JobID).Updates(updates).Error; err != nil {
			return err
		}
		credited = true
		return nil
	})
	if err != nil {
		return false, err
	}
	return credited, nil
}

// Fail records a failed attempt and releases the claim. The first failure
// of a recording also advances the job's progress and failure counters.
func (r *QueueRepository) Fail(ctx context.Context, task *entities.QueueTask, failure repositories.TaskFailure) error {
	status := entities.QueueTaskStatusFailed
	if failure.DeadLetter {
		status = entities.QueueTaskStatusDeadLetter
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		res := tx.Model(&entities.QueueTask{}).
			Where("id = ? AND attempts = ?", task.ID, task.Attempts).
			Updates(map[string]interface{}{
				"status":        status,
				"attempts":      gorm.Expr("attempts + 1"),
				"last_error":    failure.Error,
				"next_retry_at": failure.NextRetryAt,
				"locked_at":     nil,
				"worker_id":     nil,
				"updated_at":    now,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		return recordJobFailure(tx, task.JobID, task.RecordingID, now)
	})
}

// DeferDeadLetter records a failed recovery attempt; the task stays
// dead-lettered until nextRetryAt
func (r *QueueRepository) DeferDeadLetter(ctx context.Context, task *entities.QueueTask, errMsg string, nextRetryAt time.Time) error {
	return r.db.WithContext(ctx).
		Model(&entities.QueueTask{}).
		Where("id = ? AND status = ?", task.ID, entities.QueueTaskStatusDeadLetter).
		Updates(map[string]interface{}{
			"attempts":      gorm.Expr("attempts + 1"),
			"last_error":    errMsg,
			"next_retry_at": nextRetryAt,
			"locked_at":     nil,
			"worker_id":     nil,
			"updated_at":    time.Now(),
		}).Error
}

// CountByStatus counts tasks in a status, optionally for one user
func (r *QueueRepository) CountByStatus(ctx context.Context, status entities.QueueTaskStatus, userID *uuid.UUID) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&entities.QueueTask{}).Where("status = ?", status)
	if userID != nil {
		q = q.Where("user_id = ?", *userID)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

// CountDue counts pending/failed tasks that are ready to run
func (r *QueueRepository) CountDue(ctx context.Context, now time.Time, jobID *uuid.UUID) (int64, error) {
	var n int64
	q := r.db.WithContext(ctx).Model(&entities.QueueTask{}).
		Where("status IN ?", []entities.QueueTaskStatus{entities.QueueTaskStatusPending, entities.QueueTaskStatusFailed}).
		Where("(next_retry_at IS NULL OR next_retry_at <= ?)", now)
	if jobID != nil {
		q = q.Where("job_id = ?", *jobID)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}
