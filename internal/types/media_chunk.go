package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// MediaChunk is one retrieval-index entry: a text slice of a completed
// MediaItem plus its embedding vector (stored as a JSON array).
type MediaChunk struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	MediaItemID uuid.UUID      `gorm:"type:uuid;not null;index" json:"media_item_id"`
	MediaItem   *MediaItem     `gorm:"constraint:OnDelete:CASCADE;foreignKey:MediaItemID;references:ID" json:"-"`
	Index       int            `gorm:"column:chunk_index;not null" json:"index"`
	Text        string         `gorm:"column:text;type:text;not null" json:"text"`
	Embedding   datatypes.JSON `gorm:"column:embedding;type:jsonb" json:"-"`
	CreatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (MediaChunk) TableName() string { return "media_chunk" }
