package types

import (
	"time"

	"github.com/google/uuid"
)

// Concept is an atomic unit of knowledge extracted from a MediaItem.
type Concept struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	MediaItemID uuid.UUID  `gorm:"type:uuid;not null;index" json:"media_item_id"`
	MediaItem   *MediaItem `gorm:"constraint:OnDelete:CASCADE;foreignKey:MediaItemID;references:ID" json:"-"`
	Title       string     `gorm:"not null;column:title" json:"title"`
	Description string     `gorm:"column:description;type:text" json:"description"`
	Complexity  int        `gorm:"column:complexity;not null;default:1" json:"complexity"` // 1..5
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (Concept) TableName() string { return "concept" }
