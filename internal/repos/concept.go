package repos

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type ConceptRepo interface {
	Create(ctx context.Context, tx *gorm.DB, concepts []*types.Concept) ([]*types.Concept, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, conceptIDs []uuid.UUID) ([]*types.Concept, error)
	GetByMediaItemIDs(ctx context.Context, tx *gorm.DB, mediaItemIDs []uuid.UUID) ([]*types.Concept, error)
	GetByMediaItemAndTitle(ctx context.Context, tx *gorm.DB, mediaItemID uuid.UUID, title string) (*types.Concept, error)
}

type conceptRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewConceptRepo(db *gorm.DB, baseLog *logger.Logger) ConceptRepo {
	return &conceptRepo{db: db, log: baseLog.With("repo", "ConceptRepo")}
}

func (r *conceptRepo) Create(ctx context.Context, tx *gorm.DB, concepts []*types.Concept) ([]*types.Concept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(concepts) == 0 {
		return []*types.Concept{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&concepts).Error; err != nil {
		return nil, err
	}
	return concepts, nil
}

func (r *conceptRepo) GetByIDs(ctx context.Context, tx *gorm.DB, conceptIDs []uuid.UUID) ([]*types.Concept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Concept
	if len(conceptIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", conceptIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptRepo) GetByMediaItemIDs(ctx context.Context, tx *gorm.DB, mediaItemIDs []uuid.UUID) ([]*types.Concept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Concept
	if len(mediaItemIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("media_item_id IN ?", mediaItemIDs).
		Order("created_at ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *conceptRepo) GetByMediaItemAndTitle(ctx context.Context, tx *gorm.DB, mediaItemID uuid.UUID, title string) (*types.Concept, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Concept
	err := transaction.WithContext(ctx).
		Where("media_item_id = ? AND title = ?", mediaItemID, title).
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
