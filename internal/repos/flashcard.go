package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type FlashcardRepo interface {
	Create(ctx context.Context, tx *gorm.DB, cards []*types.Flashcard) ([]*types.Flashcard, error)
	GetByIDs(ctx context.Context, tx *gorm.DB, cardIDs []uuid.UUID) ([]*types.Flashcard, error)
	GetOwnedByID(ctx context.Context, tx *gorm.DB, cardID, userID uuid.UUID) (*types.Flashcard, error)

	// GetOwnedByIDForUpdate is GetOwnedByID with a row lock, for
	// read-modify-write of scheduling state inside a transaction.
	GetOwnedByIDForUpdate(ctx context.Context, tx *gorm.DB, cardID, userID uuid.UUID) (*types.Flashcard, error)

	GetByUserAndConcept(ctx context.Context, tx *gorm.DB, userID, conceptID uuid.UUID) (*types.Flashcard, error)
	GetByUserAndConceptForUpdate(ctx context.Context, tx *gorm.DB, userID, conceptID uuid.UUID) (*types.Flashcard, error)

	// NextDue returns the earliest-due card with next_review <= asOf for the
	// user, or nil when none are due.
	NextDue(ctx context.Context, tx *gorm.DB, userID uuid.UUID, asOf time.Time) (*types.Flashcard, error)
	CountDue(ctx context.Context, tx *gorm.DB, userID uuid.UUID, asOf time.Time) (int64, error)

	UpdateFields(ctx context.Context, tx *gorm.DB, cardID uuid.UUID, updates map[string]any) error
}

type flashcardRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewFlashcardRepo(db *gorm.DB, baseLog *logger.Logger) FlashcardRepo {
	return &flashcardRepo{db: db, log: baseLog.With("repo", "FlashcardRepo")}
}

func (r *flashcardRepo) Create(ctx context.Context, tx *gorm.DB, cards []*types.Flashcard) ([]*types.Flashcard, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(cards) == 0 {
		return []*types.Flashcard{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&cards).Error; err != nil {
		return nil, err
	}
	return cards, nil
}

func (r *flashcardRepo) GetByIDs(ctx context.Context, tx *gorm.DB, cardIDs []uuid.UUID) ([]*types.Flashcard, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.Flashcard
	if len(cardIDs) == 0 {
		return results, nil
	}
	if err := transaction.WithContext(ctx).
		Where("id IN ?", cardIDs).
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *flashcardRepo) GetOwnedByID(ctx context.Context, tx *gorm.DB, cardID, userID uuid.UUID) (*types.Flashcard, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Flashcard
	err := transaction.WithContext(ctx).
		Where("id = ? AND user_id = ?", cardID, userID).
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

func (r *flashcardRepo) GetOwnedByIDForUpdate(ctx context.Context, tx *gorm.DB, cardID, userID uuid.UUID) (*types.Flashcard, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Flashcard
	err := lockForUpdate(transaction.WithContext(ctx), "").
		Where("id = ? AND user_id = ?", cardID, userID).
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

func (r *flashcardRepo) GetByUserAndConcept(ctx context.Context, tx *gorm.DB, userID, conceptID uuid.UUID) (*types.Flashcard, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Flashcard
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND concept_id = ?", userID, conceptID).
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

func (r *flashcardRepo) GetByUserAndConceptForUpdate(ctx context.Context, tx *gorm.DB, userID, conceptID uuid.UUID) (*types.Flashcard, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Flashcard
	err := lockForUpdate(transaction.WithContext(ctx), "").
		Where("user_id = ? AND concept_id = ?", userID, conceptID).
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

func (r *flashcardRepo) NextDue(ctx context.Context, tx *gorm.DB, userID uuid.UUID, asOf time.Time) (*types.Flashcard, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.Flashcard
	err := transaction.WithContext(ctx).
		Where("user_id = ? AND next_review <= ?", userID, asOf).
		Order("next_review ASC").
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

func (r *flashcardRepo) CountDue(ctx context.Context, tx *gorm.DB, userID uuid.UUID, asOf time.Time) (int64, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.Flashcard{}).
		Where("user_id = ? AND next_review <= ?", userID, asOf).
		Count(&count).Error
	return count, err
}

func (r *flashcardRepo) UpdateFields(ctx context.Context, tx *gorm.DB, cardID uuid.UUID, updates map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if cardID == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.Flashcard{}).
		Where("id = ?", cardID).
		Updates(updates).Error
}
