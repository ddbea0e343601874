package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type TutorChatRepo interface {
	CreateSession(ctx context.Context, tx *gorm.DB, session *types.TutorChatSession) (*types.TutorChatSession, error)
	FirstSessionByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.TutorChatSession, error)
	GetSessionOwnedByID(ctx context.Context, tx *gorm.DB, sessionID, userID uuid.UUID) (*types.TutorChatSession, error)
	CreateMessages(ctx context.Context, tx *gorm.DB, messages []*types.TutorChatMessage) ([]*types.TutorChatMessage, error)
	GetMessagesBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.TutorChatMessage, error)
}

type tutorChatRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewTutorChatRepo(db *gorm.DB, baseLog *logger.Logger) TutorChatRepo {
	return &tutorChatRepo{db: db, log: baseLog.With("repo", "TutorChatRepo")}
}

func (r *tutorChatRepo) CreateSession(ctx context.Context, tx *gorm.DB, session *types.TutorChatSession) (*types.TutorChatSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if session == nil {
		return nil, nil
	}
	if err := transaction.WithContext(ctx).Create(session).Error; err != nil {
		return nil, err
	}
	return session, nil
}

func (r *tutorChatRepo) FirstSessionByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) (*types.TutorChatSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.TutorChatSession
	err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at ASC").
		Limit(1).
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

func (r *tutorChatRepo) GetSessionOwnedByID(ctx context.Context, tx *gorm.DB, sessionID, userID uuid.UUID) (*types.TutorChatSession, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.TutorChatSession
	err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", sessionID, userID).
		Limit(1).
		Find(&result).Error
	if err != nil {
		return nil, err
	}
	if result.ID == uuid.Nil {
		return nil, nil
	}
	return &result, nil
}

func (r *tutorChatRepo) CreateMessages(ctx context.Context, tx *gorm.DB, messages []*types.TutorChatMessage) ([]*types.TutorChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(messages) == 0 {
		return []*types.TutorChatMessage{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&messages).Error; err != nil {
		return nil, err
	}
	return messages, nil
}

func (r *tutorChatRepo) GetMessagesBySessionID(ctx context.Context, tx *gorm.DB, sessionID uuid.UUID, limit int) ([]*types.TutorChatMessage, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	q := transaction.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	var results []*types.TutorChatMessage
	if err := q.Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}
