package repositories

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
)

// TranscriptRepository reads the call records and transcript segments that
// the ingest pipeline owns.
type TranscriptRepository interface {
	// GetCall returns nil, nil when the call does not exist for the user.
	GetCall(ctx context.Context, userID uuid.UUID, recordingID int64) (*entities.Call, error)
	// ListSegments returns non-deleted segments ordered by timestamp.
	ListSegments(ctx context.Context, userID uuid.UUID, recordingID int64) ([]entities.TranscriptSegment, error)
	// GetCallCategory returns the first tag name assigned to the call, or "".
	GetCallCategory(ctx context.Context, recordingID int64) (string, error)
	// ListUnindexedRecordingIDs returns recordings with transcript text that
	// have no chunks, or whose chunks predate the latest transcript update.
	ListUnindexedRecordingIDs(ctx context.Context, userID uuid.UUID) ([]int64, error)
}

// ChunkRepository persists ChunkRecords.
type ChunkRepository interface {
	// ReplaceChunks deletes every chunk of (userID, recordingID) and inserts
	// chunks in sub-batches of batchSize. Returns the inserted ids in order.
	ReplaceChunks(ctx context.Context, userID uuid.UUID, recordingID int64, chunks []*entities.ChunkRecord, batchSize int) ([]uuid.UUID, error)
}

// EmbeddingJobRepository persists EmbeddingJobs.
type EmbeddingJobRepository interface {
	// CreateWithTasks stores the job and its pending tasks atomically.
	CreateWithTasks(ctx context.Context, job *entities.EmbeddingJob, tasks []*entities.QueueTask) error
	// GetByID returns nil, nil when the job does not exist.
	GetByID(ctx context.Context, jobID uuid.UUID) (*entities.EmbeddingJob, error)
	// RecordFailure counts a recording as failed once, for tasks that never ran
	RecordFailure(ctx context.Context, jobID uuid.UUID, recordingID int64) error
	Finalize(ctx context.Context, jobID uuid.UUID, status entities.EmbeddingJobStatus, errMsg *string) error
	// FinalizeSettled closes running jobs that have no unsettled tasks left
	// and returns how many were closed.
	FinalizeSettled(ctx context.Context) (int64, error)
}

// ClaimFilter selects retryable tasks for the queue drain.
type ClaimFilter struct {
	WorkerID string
	JobID    *uuid.UUID
	Limit    int
	Now      time.Time
	LockTTL  time.Duration
}

// DeadLetterFilter selects the next dead-lettered task for recovery.
type DeadLetterFilter struct {
	WorkerID    string
	RecordingID *int64
	UserID      *uuid.UUID
	ForceRetry  bool
	Now         time.Time
	LockTTL     time.Duration
}

// TaskFailure describes how a failed attempt is recorded.
type TaskFailure struct {
	Error       string
	NextRetryAt *time.Time
	DeadLetter  bool
}

// QueueRepository manages per-recording QueueTasks and the job counters
// that settle with them.
type QueueRepository interface {
	// Claim locks a task for workerID. Returns false when another live
	// worker holds it or it is already completed.
	Claim(ctx context.Context, taskID uuid.UUID, workerID string, now time.Time, lockTTL time.Duration) (bool, error)
	// ClaimBatch locks due pending/failed tasks and stale processing ones.
	// Tasks of a job whose primary run is still live are skipped.
	ClaimBatch(ctx context.Context, filter ClaimFilter) ([]*entities.QueueTask, error)
	// ClaimDeadLetter locks the oldest eligible dead-lettered task, or
	// returns nil, nil when there is none.
	ClaimDeadLetter(ctx context.Context, filter DeadLetterFilter) (*entities.QueueTask, error)
	// Release drops workerID's claim and returns the task to pending.
	Release(ctx context.Context, taskID uuid.UUID, workerID string) error
	// Complete marks the task completed and credits its job in the same
	// transaction. Returns false when the task had already been completed.
	Complete(ctx context.Context, task *entities.QueueTask, chunksCreated int) (bool, error)
	// Fail records a failed attempt, releases the claim and, for a first
	// attempt, advances the job's failure counters.
	Fail(ctx context.Context, task *entities.QueueTask, failure TaskFailure) error
	// DeferDeadLetter records a failed recovery and keeps the task dead-lettered.
	DeferDeadLetter(ctx context.Context, task *entities.QueueTask, errMsg string, nextRetryAt time.Time) error
	// CountByStatus counts tasks in status, optionally scoped to a user.
	CountByStatus(ctx context.Context, status entities.QueueTaskStatus, userID *uuid.UUID) (int64, error)
	// CountDue counts pending/failed tasks whose next_retry_at has elapsed.
	CountDue(ctx context.Context, now time.Time, jobID *uuid.UUID) (int64, error)
}
