package types

import (
	"time"

	"github.com/google/uuid"
)

type TutorChatSession struct {
	ID        uuid.UUID           `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    uuid.UUID           `gorm:"type:uuid;not null;index" json:"user_id"`
	User      *User               `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"-"`
	Messages  []*TutorChatMessage `gorm:"foreignKey:SessionID;references:ID" json:"messages,omitempty"`
	CreatedAt time.Time           `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

func (TutorChatSession) TableName() string { return "tutor_chat_session" }

type TutorChatMessage struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	SessionID uuid.UUID `gorm:"type:uuid;not null;index" json:"session_id"`
	Role      string    `gorm:"column:role;not null" json:"role"` // user|assistant
	Content   string    `gorm:"column:content;type:text;not null" json:"content"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP;index" json:"created_at"`
}

func (TutorChatMessage) TableName() string { return "tutor_chat_message" }
