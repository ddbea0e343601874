package types

import (
	"time"

	"github.com/google/uuid"
)

// AnalysisRun is the worker-queue record for one pipeline execution of a
// MediaItem. At most one run per item is runnable at a time; the claim query
// in the repo enforces it with row locking.
type AnalysisRun struct {
	ID          uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	MediaItemID uuid.UUID  `gorm:"type:uuid;not null;index" json:"media_item_id"`
	Status      string     `gorm:"column:status;not null;index" json:"status"` // queued|running|succeeded|failed
	Attempts    int        `gorm:"column:attempts;not null;default:0" json:"attempts"`
	Error       string     `gorm:"column:error" json:"error"`
	LastErrorAt *time.Time `gorm:"column:last_error_at" json:"last_error_at,omitempty"`
	LockedAt    *time.Time `gorm:"column:locked_at;index" json:"locked_at,omitempty"`
	HeartbeatAt *time.Time `gorm:"column:heartbeat_at;index" json:"heartbeat_at,omitempty"`
	CreatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt   time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (AnalysisRun) TableName() string { return "analysis_run" }
