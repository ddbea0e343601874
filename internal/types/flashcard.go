package types

import (
	"time"

	"github.com/google/uuid"
)

// Flashcard is an SRS review card. The four scheduling fields are mutated
// only by the review service; NextReview == LastReview + IntervalDays once a
// card has been reviewed at least once.
type Flashcard struct {
	ID         uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	UserID     uuid.UUID  `gorm:"type:uuid;not null;index" json:"user_id"`
	User       *User      `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	ConceptID  *uuid.UUID `gorm:"type:uuid;index" json:"concept_id,omitempty"`
	Concept    *Concept   `gorm:"constraint:OnDelete:SET NULL;foreignKey:ConceptID;references:ID" json:"concept,omitempty"`
	Front      string     `gorm:"not null;column:front;type:text" json:"front"`
	Back       string     `gorm:"column:back;type:text" json:"back"`
	Repetitions int       `gorm:"column:repetitions;not null;default:0" json:"repetitions"`
	IntervalDays int      `gorm:"column:interval_days;not null;default:0" json:"interval_days"`
	EaseFactor float64    `gorm:"column:ease_factor;not null;default:2.5" json:"ease_factor"`
	LastReview *time.Time `gorm:"column:last_review" json:"last_review,omitempty"`
	NextReview time.Time  `gorm:"column:next_review;not null;index" json:"next_review"`
	CreatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt  time.Time  `gorm:"not null;default:CURRENT_TIMESTAMP" json:"updated_at"`
}

func (Flashcard) TableName() string { return "flashcard" }
