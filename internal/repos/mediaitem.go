package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type MediaItemRepo interface {
	Create(ctx context.Context, tx *gorm.DB, items []*types.MediaItem) ([]*types.MediaItem, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) ([]*types.MediaItem, error)
	GetOwnedByID(ctx context.Context, tx *gorm.DB, itemID, userID uuid.UUID) (*types.MediaItem, error)
	ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.MediaItem, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, updates map[string]any) error
	SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) error
}

type mediaItemRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMediaItemRepo(db *gorm.DB, baseLog *logger.Logger) MediaItemRepo {
	return &mediaItemRepo{db: db, log: baseLog.With("repo", "MediaItemRepo")}
}

func (r *mediaItemRepo) Create(ctx context.Context, tx *gorm.DB, items []*types.MediaItem) ([]*types.MediaItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(items) == 0 {
		return []*types.MediaItem{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *mediaItemRepo) GetByIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) ([]*types.MediaItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.MediaItem
	if len(itemIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", itemIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *mediaItemRepo) GetOwnedByID(ctx context.Context, tx *gorm.DB, itemID, userID uuid.UUID) (*types.MediaItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.MediaItem
	err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", itemID, userID).
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

func (r *mediaItemRepo) ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.MediaItem, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.MediaItem
	if err := transaction.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *mediaItemRepo) UpdateFields(ctx context.Context, tx *gorm.DB, itemID uuid.UUID, updates map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if itemID == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.MediaItem{}).
		Where("id = ?", itemID).
		Updates(updates).Error
}

func (r *mediaItemRepo) SoftDeleteByIDs(ctx context.Context, tx *gorm.DB, itemIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(itemIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("id IN ?", itemIDs).
		Delete(&types.MediaItem{}).Error
}
