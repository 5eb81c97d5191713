package entities

import (
	"time"

	"github.com/google/uuid"
)

// EnrichmentRequest asks the downstream metadata enricher to process
// freshly inserted chunks.
type EnrichmentRequest struct {
	UserID      uuid.UUID   `json:"user_id"`
	RecordingID int64       `json:"recording_id"`
	ChunkIDs    []uuid.UUID `json:"chunk_ids"`
	RequestedAt time.Time   `json:"requested_at"`
}
