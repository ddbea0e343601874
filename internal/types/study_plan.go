package types

import (
	"time"

	"github.com/google/uuid"
)

type StudyPlanStatus string

const (
	StudyPlanStatusActive    StudyPlanStatus = "active"
	StudyPlanStatusCompleted StudyPlanStatus = "completed"
	StudyPlanStatusArchived  StudyPlanStatus = "archived"
)

type StudyPlan struct {
	ID          uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	UserID      uuid.UUID       `gorm:"type:uuid;not null;index" json:"user_id"`
	MediaItemID uuid.UUID       `gorm:"type:uuid;not null;index" json:"media_item_id"`
	MediaItem   *MediaItem      `gorm:"constraint:OnDelete:CASCADE;foreignKey:MediaItemID;references:ID" json:"-"`
	Title       string          `gorm:"column:title" json:"title"`
	Status      StudyPlanStatus `gorm:"column:status;not null;default:'active';index" json:"status"`
	Units       []*StudyUnit    `gorm:"foreignKey:PlanID;references:ID" json:"units,omitempty"`
	CreatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (StudyPlan) TableName() string { return "study_plan" }

// StudyUnit references one Concept inside a plan. Position is a dense,
// plan-scoped sequence assigned at generation time.
type StudyUnit struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PlanID      uuid.UUID `gorm:"type:uuid;not null;index" json:"plan_id"`
	ConceptID   uuid.UUID `gorm:"type:uuid;not null;index" json:"concept_id"`
	Concept     *Concept  `gorm:"constraint:OnDelete:CASCADE;foreignKey:ConceptID;references:ID" json:"concept,omitempty"`
	Position    int       `gorm:"column:position;not null" json:"position"`
	IsCompleted bool      `gorm:"column:is_completed;not null;default:false" json:"is_completed"`
	CreatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt   time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (StudyUnit) TableName() string { return "study_unit" }
