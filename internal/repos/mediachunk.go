package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type MediaChunkRepo interface {
	Create(ctx context.Context, tx *gorm.DB, chunks []*types.MediaChunk) ([]*types.MediaChunk, error)
	GetByMediaItemIDs(ctx context.Context, tx *gorm.DB, mediaItemIDs []uuid.UUID) ([]*types.MediaChunk, error)

	// GetByUserID returns every chunk of the user's non-deleted media items,
	// the retrieval corpus for tutor chat.
	GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.MediaChunk, error)

	UpdateEmbedding(ctx context.Context, tx *gorm.DB, chunkID uuid.UUID, embedding datatypes.JSON) error
	DeleteByMediaItemIDs(ctx context.Context, tx *gorm.DB, mediaItemIDs []uuid.UUID) error
}

type mediaChunkRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewMediaChunkRepo(db *gorm.DB, baseLog *logger.Logger) MediaChunkRepo {
	return &mediaChunkRepo{db: db, log: baseLog.With("repo", "MediaChunkRepo")}
}

func (r *mediaChunkRepo) Create(ctx context.Context, tx *gorm.DB, chunks []*types.MediaChunk) ([]*types.MediaChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(chunks) == 0 {
		return []*types.MediaChunk{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&chunks).Error; err != nil {
		return nil, err
	}
	return chunks, nil
}

func (r *mediaChunkRepo) GetByMediaItemIDs(ctx context.Context, tx *gorm.DB, mediaItemIDs []uuid.UUID) ([]*types.MediaChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.MediaChunk
	if len(mediaItemIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("media_item_id IN ?", mediaItemIDs).
		Order("media_item_id, chunk_index ASC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *mediaChunkRepo) GetByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.MediaChunk, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.MediaChunk
	if err := transaction.WithContext(ctx).
		Joins("JOIN media_item ON media_item.id = media_chunk.media_item_id").
		Where("media_item.user_id = ? AND media_item.deleted_at IS NULL", userID).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *mediaChunkRepo) UpdateEmbedding(ctx context.Context, tx *gorm.DB, chunkID uuid.UUID, embedding datatypes.JSON) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if chunkID == uuid.Nil {
		return nil
	}
	return transaction.WithContext(ctx).
		Model(&types.MediaChunk{}).
		Where("id = ?", chunkID).
		Updates(map[string]any{
			"embedding":  embedding,
			"updated_at": time.Now(),
		}).Error
}

func (r *mediaChunkRepo) DeleteByMediaItemIDs(ctx context.Context, tx *gorm.DB, mediaItemIDs []uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(mediaItemIDs) == 0 {
		return nil
	}
	return transaction.WithContext(ctx).
		Where("media_item_id IN ?", mediaItemIDs).
		Delete(&types.MediaChunk{}).Error
}
