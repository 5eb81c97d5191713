package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"gorm.io/datatypes"
)

// EmbeddingJobStatus represents the status of an indexing run
type EmbeddingJobStatus string

const (
	EmbeddingJobStatusRunning   EmbeddingJobStatus = "running"
	EmbeddingJobStatusCompleted EmbeddingJobStatus = "completed"
	EmbeddingJobStatusFailed    EmbeddingJobStatus = "failed" // every recording failed
)

// EmbeddingJobTrigger records how the recording set was chosen
type EmbeddingJobTrigger string

const (
	EmbeddingJobTriggerExplicit     EmbeddingJobTrigger = "explicit"
	EmbeddingJobTriggerAutoDiscover EmbeddingJobTrigger = "auto_discover"
)

// EmbeddingJob tracks one user-initiated indexing run over a set of recordings.
type EmbeddingJob struct {
	ID           uuid.UUID          `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID       uuid.UUID          `json:"user_id" gorm:"type:uuid;not null;index"`
	Status       EmbeddingJobStatus `json:"status" gorm:"type:varchar(20);not null;index;default:'running'"`
	RecordingIDs pq.Int64Array      `json:"recording_ids" gorm:"type:bigint[];not null"`

	// Progress
	ProgressCurrent    int           `json:"progress_current" gorm:"not null;default:0"`
	ProgressTotal      int           `json:"progress_total" gorm:"not null;default:0"`
	ChunksCreated      int           `json:"chunks_created" gorm:"not null;default:0"`
	FailedRecordingIDs pq.Int64Array `json:"failed_recording_ids" gorm:"type:bigint[];not null;default:'{}'"`

	// Queue counters
	QueueTotal     int `json:"queue_total" gorm:"not null;default:0"`
	QueueCompleted int `json:"queue_completed" gorm:"not null;default:0"`
	QueueFailed    int `json:"queue_failed" gorm:"not null;default:0"`

	ErrorMessage *string                                  `json:"error_message,omitempty" gorm:"type:text"`
	Metadata     datatypes.JSONType[EmbeddingJobMetadata] `json:"metadata" gorm:"type:jsonb"`

	StartedAt   time.Time  `json:"started_at" gorm:"type:timestamptz;not null"`
	CompletedAt *time.Time `json:"completed_at,omitempty" gorm:"type:timestamptz"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// EmbeddingJobMetadata captures the tuning a job ran with
type EmbeddingJobMetadata struct {
	Trigger        EmbeddingJobTrigger `json:"trigger"`
	WorkerID       string              `json:"worker_id,omitempty"`
	TargetTokens   int                 `json:"target_tokens,omitempty"`
	OverlapTokens  int                 `json:"overlap_tokens,omitempty"`
	MaxTokens      int                 `json:"max_tokens,omitempty"`
	EmbeddingModel string              `json:"embedding_model,omitempty"`
}

// NewEmbeddingJob creates a running job covering recordingIDs
func NewEmbeddingJob(userID uuid.UUID, recordingIDs []int64, meta EmbeddingJobMetadata) *EmbeddingJob {
	now := time.Now()
	return &EmbeddingJob{
		ID:                 uuid.New(),
		UserID:             userID,
		Status:             EmbeddingJobStatusRunning,
		RecordingIDs:       pq.Int64Array(recordingIDs),
		ProgressTotal:      len(recordingIDs),
		FailedRecordingIDs: pq.Int64Array{},
		QueueTotal:         len(recordingIDs),
		Metadata:           datatypes.NewJSONType(meta),
		StartedAt:          now,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

// ResolveJobStatus returns the terminal status of a run: failed only when
// every selected recording failed.
func ResolveJobStatus(total, failed int) EmbeddingJobStatus {
	if total > 0 && failed >= total {
		return EmbeddingJobStatusFailed
	}
	return EmbeddingJobStatusCompleted
}

// TableName specifies the table name for GORM
func (EmbeddingJob) TableName() string {
	return "embedding_jobs"
}
