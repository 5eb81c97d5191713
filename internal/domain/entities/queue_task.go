package entities

import (
	"time"

	"github.com/google/uuid"
)

// QueueTaskStatus represents the lifecycle state of a per-recording task
type QueueTaskStatus string

const (
	QueueTaskStatusPending    QueueTaskStatus = "pending"
	QueueTaskStatusProcessing QueueTaskStatus = "processing"
	QueueTaskStatusCompleted  QueueTaskStatus = "completed"
	QueueTaskStatusFailed     QueueTaskStatus = "failed"      // waiting for next_retry_at
	QueueTaskStatusDeadLetter QueueTaskStatus = "dead_letter" // attempts exhausted
)

// DefaultMaxAttempts is the attempt budget before a task is dead-lettered
const DefaultMaxAttempts = 3

// QueueTask is the per-recording unit of work within an EmbeddingJob.
type QueueTask struct {
	ID          uuid.UUID       `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	JobID       uuid.UUID       `json:"job_id" gorm:"type:uuid;not null;index"`
	UserID      uuid.UUID       `json:"user_id" gorm:"type:uuid;not null;index"`
	RecordingID int64           `json:"recording_id" gorm:"not null;index"`
	Status      QueueTaskStatus `json:"status" gorm:"type:varchar(20);not null;index;default:'pending'"`
	Attempts    int             `json:"attempts" gorm:"not null;default:0"`
	MaxAttempts int             `json:"max_attempts" gorm:"not null;default:3"`
	LastError   *string         `json:"last_error,omitempty" gorm:"type:text"`
	NextRetryAt *time.Time      `json:"next_retry_at,omitempty" gorm:"type:timestamptz"`

	// Claim
	LockedAt *time.Time `json:"locked_at,omitempty" gorm:"type:timestamptz"`
	WorkerID *string    `json:"worker_id,omitempty" gorm:"type:varchar(64)"`

	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"type:timestamptz"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// NewQueueTask creates a pending task for one recording of a job
func NewQueueTask(jobID, userID uuid.UUID, recordingID int64, maxAttempts int) *QueueTask {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	now := time.Now()
	return &QueueTask{
		ID:          uuid.New(),
		JobID:       jobID,
		UserID:      userID,
		RecordingID: recordingID,
		Status:      QueueTaskStatusPending,
		MaxAttempts: maxAttempts,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ExhaustsAttempts reports whether one more failure dead-letters the task
func (t *QueueTask) ExhaustsAttempts() bool {
	return t.Attempts+1 >= t.MaxAttempts
}

// IsCoolingDown reports whether next_retry_at is still in the future
func (t *QueueTask) IsCoolingDown(now time.Time) bool {
	return t.NextRetryAt != nil && t.NextRetryAt.After(now)
}

// TableName specifies the table name for GORM
func (QueueTask) TableName() string {
	return "embedding_queue"
}
