package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

const QuestionTypeMultipleChoice = "multiple_choice"

// QuizQuestion stores the generated question payload as an opaque JSON
// document: {question, options[], correct_index, explanation}. Questions
// accumulate per concept across generation runs.
type QuizQuestion struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	ConceptID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"concept_id"`
	Concept      *Concept       `gorm:"constraint:OnDelete:CASCADE;foreignKey:ConceptID;references:ID" json:"-"`
	QuestionType string         `gorm:"column:question_type;not null;default:'multiple_choice'" json:"question_type"`
	QuestionData datatypes.JSON `gorm:"column:question_data;type:jsonb;not null" json:"question_data"`
	CreatedAt    time.Time      `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (QuizQuestion) TableName() string { return "quiz_question" }
