package entities

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// UnknownSpeaker labels segments whose speaker was not identified.
const UnknownSpeaker = "Unknown"

// TranscriptSegment is one speaker-attributed utterance of a call transcript.
// Segments are written by the transcript ingest and are read-only here.
type TranscriptSegment struct {
	ID           uuid.UUID `json:"id" gorm:"type:uuid;primary_key;default:gen_random_uuid()"`
	RecordingID  int64     `json:"recording_id" gorm:"not null;index:idx_segments_recording_user"`
	UserID       uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index:idx_segments_recording_user"`
	SpeakerName  string    `json:"speaker_name" gorm:"type:varchar(255)"`
	SpeakerEmail *string   `json:"speaker_email,omitempty" gorm:"type:varchar(255)"`
	Text         string    `json:"text" gorm:"type:text;not null"`
	Timestamp    string    `json:"timestamp" gorm:"type:varchar(32)"` // offset into the call, "HH:MM:SS"
	IsDeleted    bool      `json:"is_deleted" gorm:"not null;default:false"`

	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

// Speaker returns the display name used in chunk lines.
func (s TranscriptSegment) Speaker() string {
	name := strings.TrimSpace(s.SpeakerName)
	if name == "" {
		return UnknownSpeaker
	}
	return name
}

// Email returns the speaker email or "" when unknown.
func (s TranscriptSegment) Email() string {
	if s.SpeakerEmail == nil {
		return ""
	}
	return *s.SpeakerEmail
}

// TableName specifies the table name for GORM
func (TranscriptSegment) TableName() string {
	return "transcript_segments"
}
