package repos

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type SettingsRepo interface {
	// Get returns the singleton settings row, seeding it with defaults on
	// first access.
	Get(ctx context.Context, tx *gorm.DB) (*types.ProjectSettings, error)
	UpdateFields(ctx context.Context, tx *gorm.DB, updates map[string]any) error
}

type settingsRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewSettingsRepo(db *gorm.DB, baseLog *logger.Logger) SettingsRepo {
	return &settingsRepo{db: db, log: baseLog.With("repo", "SettingsRepo")}
}

func (r *settingsRepo) Get(ctx context.Context, tx *gorm.DB) (*types.ProjectSettings, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	seed := types.DefaultProjectSettings()
	if err := transaction.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(seed).Error; err != nil {
		return nil, err
	}
	var result types.ProjectSettings
	if err := transaction.WithContext(ctx).
		Where("id = ?", 1).
		First(&result).Error; err != nil {
		return nil, err
	}
	return &result, nil
}

func (r *settingsRepo) UpdateFields(ctx context.Context, tx *gorm.DB, updates map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.ProjectSettings{}).
		Where("id = ?", 1).
		Updates(updates).Error
}
