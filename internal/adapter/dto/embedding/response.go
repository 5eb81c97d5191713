package embedding

import "time"

// StartJobResponse is returned once a primary run has finished. JobID is
// omitted when auto-discovery found nothing to index.
type StartJobResponse struct {
	Success             bool    `json:"success"`
	JobID               *string `json:"job_id,omitempty"`
	Status              string  `json:"status,omitempty"`
	RecordingsProcessed int     `json:"recordings_processed"`
	RecordingsFailed    int     `json:"recordings_failed"`
	ChunksCreated       int     `json:"chunks_created"`
	FailedRecordingIDs  []int64 `json:"failed_recording_ids"`
	Message             string  `json:"message,omitempty"`
}

// ProcessQueueResponse reports a queue drain
type ProcessQueueResponse struct {
	Success          bool   `json:"success"`
	WorkerID         string `json:"worker_id"`
	Processed        int    `json:"processed"`
	Failed           int    `json:"failed"`
	Released         int    `json:"released,omitempty"`
	ChunksCreated    int    `json:"chunks_created"`
	DurationMs       int64  `json:"duration_ms"`
	PendingRemaining int64  `json:"pending_remaining"`
}

// RetryDeadLetterResponse reports a recovery. RecordingID is omitted when
// there was no eligible task.
type RetryDeadLetterResponse struct {
	Success             bool   `json:"success"`
	WorkerID            string `json:"worker_id"`
	Processed           int    `json:"processed"`
	RecordingID         *int64 `json:"recording_id,omitempty"`
	ChunksCreated       int    `json:"chunks_created"`
	DurationMs          int64  `json:"duration_ms"`
	DeadLetterRemaining int64  `json:"dead_letter_remaining"`
	Message             string `json:"message,omitempty"`
}

// JobResponse represents an embedding job in responses
type JobResponse struct {
	ID                 string     `json:"id"`
	Status             string     `json:"status"`
	RecordingIDs       []int64    `json:"recording_ids"`
	ProgressCurrent    int        `json:"progress_current"`
	ProgressTotal      int        `json:"progress_total"`
	ChunksCreated      int        `json:"chunks_created"`
	FailedRecordingIDs []int64    `json:"failed_recording_ids"`
	QueueTotal         int        `json:"queue_total"`
	QueueCompleted     int        `json:"queue_completed"`
	QueueFailed        int        `json:"queue_failed"`
	ErrorMessage       *string    `json:"error_message,omitempty"`
	Trigger            string     `json:"trigger,omitempty"`
	EmbeddingModel     string     `json:"embedding_model,omitempty"`
	StartedAt          time.Time  `json:"started_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// GetJobResponse wraps a job lookup
type GetJobResponse struct {
	Success bool         `json:"success"`
	Job     *JobResponse `json:"job"`
}
