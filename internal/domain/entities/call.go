package entities

import (
	"time"

	"github.com/google/uuid"
)

// Call is the recorded meeting a transcript belongs to.
type Call struct {
	RecordingID    int64     `json:"recording_id" gorm:"primaryKey;autoIncrement:false"`
	UserID         uuid.UUID `json:"user_id" gorm:"type:uuid;primaryKey"`
	Title          string    `json:"title" gorm:"type:text"`
	FullTranscript *string   `json:"full_transcript,omitempty" gorm:"type:text"`

	// TranscriptUpdatedAt moves whenever the ingest rewrites segments.
	TranscriptUpdatedAt *time.Time `json:"transcript_updated_at,omitempty" gorm:"type:timestamptz"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName specifies the table name for GORM
func (Call) TableName() string {
	return "calls"
}

// CallTag is a user-defined label; its name becomes the chunk category.
type CallTag struct {
	ID     uuid.UUID  `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID *uuid.UUID `json:"user_id,omitempty" gorm:"type:uuid;index"`
	Name   string     `json:"name" gorm:"type:varchar(255);not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (CallTag) TableName() string {
	return "call_tags"
}

// CallTagAssignment links a call to a tag.
type CallTagAssignment struct {
	CallRecordingID int64     `json:"call_recording_id" gorm:"primaryKey;autoIncrement:false"`
	TagID           uuid.UUID `json:"tag_id" gorm:"type:uuid;primaryKey"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (CallTagAssignment) TableName() string {
	return "call_tag_assignments"
}
