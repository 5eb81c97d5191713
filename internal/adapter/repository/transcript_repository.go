package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/johnquangdev/transcript-indexer/internal/domain/entities"
)

// TranscriptRepository reads calls, transcript segments and call tags
type TranscriptRepository struct {
	db *gorm.DB
}

// NewTranscriptRepository creates a new transcript repository
func NewTranscriptRepository(db *gorm.DB) *TranscriptRepository {
	return &TranscriptRepository{db: db}
}

// GetCall retrieves a call by recording ID for a user
func (r *TranscriptRepository) GetCall(ctx context.Context, userID uuid.UUID, recordingID int64) (*entities.Call, error) {
	var call entities.Call
	if err := r.db.WithContext(ctx).
		Where("recording_id = ? AND user_id = ?", recordingID, userID).
		First(&call).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &call, nil
}

// ListSegments retrieves the non-deleted segments of a recording in
// transcript order
func (r *TranscriptRepository) ListSegments(ctx context.Context, userID uuid.UUID, recordingID int64) ([]entities.TranscriptSegment, error) {
	var segments []entities.TranscriptSegment
	if err := r.db.WithContext(ctx).
		Where("recording_id = ? AND user_id = ? AND is_deleted = ?", recordingID, userID, false).
		Order("timestamp ASC").
		Order("created_at ASC").
		Order("id ASC").
		Find(&segments).Error; err != nil {
		return nil, err
	}
	return segments, nil
}

// GetCallCategory returns the name of the first tag assigned to a call
func (r *TranscriptRepository) GetCallCategory(ctx context.Context, recordingID int64) (string, error) {
	var names []string
	if err := r.db.WithContext(ctx).
		Table("call_tag_assignments AS a").
		Joins("JOIN call_tags t ON t.id = a.tag_id").
		Where("a.call_recording_id = ?", recordingID).
		Order("a.created_at ASC").
		Limit(1).
		Pluck("t.name", &names).Error; err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", nil
	}
	return names[0], nil
}

// ListUnindexedRecordingIDs returns recordings with transcript text that
// have no chunks, or only chunks embedded before the transcript last changed
func (r *TranscriptRepository) ListUnindexedRecordingIDs(ctx context.Context, userID uuid.UUID) ([]int64, error) {
	var ids []int64
	if err := r.db.WithContext(ctx).Raw(`
		SELECT c.recording_id
		FROM calls c
		WHERE c.user_id = ?
		  AND c.full_transcript IS NOT NULL
		  AND c.full_transcript <> ''
		  AND NOT EXISTS (
		    SELECT 1 FROM transcript_chunks tc
		    WHERE tc.user_id = c.user_id
		      AND tc.recording_id = c.recording_id
		      AND (c.transcript_updated_at IS NULL OR tc.embedded_at >= c.transcript_updated_at)
		  )
		ORDER BY c.recording_id ASC`, userID).
		Scan(&ids).Error; err != nil {
		return nil, err
	}
	return ids, nil
}
