package entities

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// ChunkRecord is one searchable, embedded slice of a call transcript.
// Rows for a (recording_id, user_id) pair are always replaced as a set.
type ChunkRecord struct {
	ID          uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	UserID      uuid.UUID `json:"user_id" gorm:"type:uuid;not null;uniqueIndex:idx_chunks_recording_index"`
	RecordingID int64     `json:"recording_id" gorm:"not null;uniqueIndex:idx_chunks_recording_index"`
	ChunkIndex  int       `json:"chunk_index" gorm:"not null;uniqueIndex:idx_chunks_recording_index"`
	ChunkText   string    `json:"chunk_text" gorm:"type:text;not null"`
	TokenCount  int       `json:"token_count" gorm:"not null;default:0"`

	// Speaker attribution
	SpeakerName  *string        `json:"speaker_name,omitempty" gorm:"type:varchar(255)"`
	SpeakerEmail *string        `json:"speaker_email,omitempty" gorm:"type:varchar(255)"`
	Speakers     pq.StringArray `json:"speakers" gorm:"type:text[]"`

	TimestampStart *string `json:"timestamp_start,omitempty" gorm:"type:varchar(32)"`
	TimestampEnd   *string `json:"timestamp_end,omitempty" gorm:"type:varchar(32)"`

	// Denormalized call metadata
	CallDate     *time.Time `json:"call_date,omitempty" gorm:"type:timestamptz"`
	CallTitle    *string    `json:"call_title,omitempty" gorm:"type:text"`
	CallCategory *string    `json:"call_category,omitempty" gorm:"type:varchar(255)"`

	Embedding  pgvector.Vector `json:"-" gorm:"type:vector(1536)"`
	EmbeddedAt time.Time       `json:"embedded_at" gorm:"type:timestamptz;not null"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// TableName specifies the table name for GORM
func (ChunkRecord) TableName() string {
	return "transcript_chunks"
}
