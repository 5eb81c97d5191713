package embedding

// StartJobRequest selects recordings for a primary indexing run. Exactly one
// of RecordingIDs or AutoDiscover must be set.
type StartJobRequest struct {
	RecordingIDs []int64 `json:"recording_ids" validate:"omitempty,max=500,dive,gt=0"`
	AutoDiscover bool    `json:"auto_discover"`
}

// ProcessQueueRequest scopes one queue drain
type ProcessQueueRequest struct {
	JobID     *string `json:"job_id,omitempty" validate:"omitempty,uuid"`
	BatchSize int     `json:"batch_size,omitempty" validate:"omitempty,min=1,max=50"`
}

// RetryDeadLetterRequest scopes one dead-letter recovery
type RetryDeadLetterRequest struct {
	RecordingID *int64 `json:"recording_id,omitempty" validate:"omitempty,gt=0"`
	ForceRetry  bool   `json:"force_retry,omitempty"`
}
