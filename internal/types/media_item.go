package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MediaType string

const (
	MediaTypeAudio MediaType = "audio"
	MediaTypeVideo MediaType = "video"
	MediaTypeImage MediaType = "image"
	MediaTypeText  MediaType = "text"
)

type MediaStatus string

const (
	MediaStatusPending    MediaStatus = "pending"
	MediaStatusProcessing MediaStatus = "processing"
	MediaStatusCompleted  MediaStatus = "completed"
	MediaStatusFailed     MediaStatus = "failed"
)

// MediaItem is the subject of the analysis pipeline. Status and
// ProcessingStep are mutated only by the pipeline run that owns the item.
type MediaItem struct {
	ID            uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID        uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User          *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	Title         string         `gorm:"not null;column:title" json:"title"`
	OriginalName  string         `gorm:"column:original_name" json:"original_name"`
	FilePath      string         `gorm:"not null;column:file_path" json:"file_path"`
	MediaType     MediaType      `gorm:"column:media_type;not null;default:'text'" json:"media_type"`
	Status        MediaStatus    `gorm:"column:status;not null;default:'pending';index" json:"status"`
	ProcessingStep string        `gorm:"column:processing_step" json:"processing_step"`
	Transcription string         `gorm:"column:transcription;type:text" json:"transcription"`
	Summary       string         `gorm:"column:summary;type:text" json:"summary"`
	ErrorLog      string         `gorm:"column:error_log;type:text" json:"error_log"`
	CreatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt     time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt     gorm.DeletedAt `gorm:"index" json:"deleted_at,omitempty"`
}

func (MediaItem) TableName() string { return "media_item" }
