package presenter

import (
	"github.com/johnquangdev/transcript-indexer/internal/adapter/dto/embedding"
	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
	embeddinguc "github.com/johnquangdev/transcript-indexer/internal/usecase/embedding"
)

// ToJobResponse converts an EmbeddingJob entity to JobResponse DTO
func ToJobResponse(j *entities.EmbeddingJob) *embedding.JobResponse {
	if j == nil {
		return nil
	}

	meta := j.Metadata.Data()
	return &embedding.JobResponse{
		ID:                 j.ID.String(),
		Status:             string(j.Status),
		RecordingIDs:       nonNil(j.RecordingIDs),
		ProgressCurrent:    j.ProgressCurrent,
		ProgressTotal:      j.ProgressTotal,
		ChunksCreated:      j.ChunksCreated,
		FailedRecordingIDs: nonNil(j.FailedRecordingIDs),
		QueueTotal:         j.QueueTotal,
		QueueCompleted:     j.QueueCompleted,
		QueueFailed:        j.QueueFailed,
		ErrorMessage:       j.ErrorMessage,
		Trigger:            string(meta.Trigger),
		EmbeddingModel:     meta.EmbeddingModel,
		StartedAt:          j.StartedAt,
		CompletedAt:        j.CompletedAt,
		UpdatedAt:          j.UpdatedAt,
	}
}

// ToStartJobResponse converts a primary run result
func ToStartJobResponse(r *embeddinguc.JobResult) *embedding.StartJobResponse {
	resp := &embedding.StartJobResponse{
		Success:             true,
		Status:              string(r.Status),
		RecordingsProcessed: r.RecordingsProcessed,
		RecordingsFailed:    r.RecordingsFailed,
		ChunksCreated:       r.ChunksCreated,
		FailedRecordingIDs:  nonNil(r.FailedRecordingIDs),
	}
	if r.JobID == nil {
		resp.Message = "No recordings need indexing"
		return resp
	}
	id := r.JobID.String()
	resp.JobID = &id
	return resp
}

// ToProcessQueueResponse converts a queue drain result
func ToProcessQueueResponse(r *embeddinguc.DrainResult) *embedding.ProcessQueueResponse {
	return &embedding.ProcessQueueResponse{
		Success:          true,
		WorkerID:         r.WorkerID,
		Processed:        r.Processed,
		Failed:           r.Failed,
		Released:         r.Released,
		ChunksCreated:    r.ChunksCreated,
		DurationMs:       r.Duration.Milliseconds(),
		PendingRemaining: r.PendingRemaining,
	}
}

// ToRetryDeadLetterResponse converts a recovery result
func ToRetryDeadLetterResponse(r *embeddinguc.RecoveryResult) *embedding.RetryDeadLetterResponse {
	resp := &embedding.RetryDeadLetterResponse{
		Success:             true,
		WorkerID:            r.WorkerID,
		Processed:           r.Processed,
		ChunksCreated:       r.ChunksCreated,
		DurationMs:          r.Duration.Milliseconds(),
		DeadLetterRemaining: r.DeadLetterRemaining,
	}
	if r.Processed == 0 {
		resp.Message = "No dead_letter tasks"
		return resp
	}
	id := r.RecordingID
	resp.RecordingID = &id
	return resp
}

func nonNil(ids []int64) []int64 {
	if ids == nil {
		return []int64{}
	}
	return ids
}
