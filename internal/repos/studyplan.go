package repos

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type StudyPlanRepo interface {
	CreatePlans(ctx context.Context, tx *gorm.DB, plans []*types.StudyPlan) ([]*types.StudyPlan, error)
	CreateUnits(ctx context.Context, tx *gorm.DB, units []*types.StudyUnit) ([]*types.StudyUnit, error)
	ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.StudyPlan, error)
	GetOwnedByID(ctx context.Context, tx *gorm.DB, planID, userID uuid.UUID) (*types.StudyPlan, error)

	// GetUnitOwnedByID resolves a unit through its plan so ownership is
	// checked in one query.
	GetUnitOwnedByID(ctx context.Context, tx *gorm.DB, unitID, userID uuid.UUID) (*types.StudyUnit, error)
	UpdateUnitFields(ctx context.Context, tx *gorm.DB, unitID uuid.UUID, updates map[string]any) error
}

type studyPlanRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewStudyPlanRepo(db *gorm.DB, baseLog *logger.Logger) StudyPlanRepo {
	return &studyPlanRepo{db: db, log: baseLog.With("repo", "StudyPlanRepo")}
}

func (r *studyPlanRepo) CreatePlans(ctx context.Context, tx *gorm.DB, plans []*types.StudyPlan) ([]*types.StudyPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(plans) == 0 {
		return []*types.StudyPlan{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&plans).Error; err != nil {
		return nil, err
	}
	return plans, nil
}

func (r *studyPlanRepo) CreateUnits(ctx context.Context, tx *gorm.DB, units []*types.StudyUnit) ([]*types.StudyUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(units) == 0 {
		return []*types.StudyUnit{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&units).Error; err != nil {
		return nil, err
	}
	return units, nil
}

func (r *studyPlanRepo) ListByUserID(ctx context.Context, tx *gorm.DB, userID uuid.UUID) ([]*types.StudyPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var results []*types.StudyPlan
	if err := transaction.WithContext(ctx).
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Units.Concept").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&results).Error; err != nil {
		return nil, err
	}
	return results, nil
}

func (r *studyPlanRepo) GetOwnedByID(ctx context.Context, tx *gorm.DB, planID, userID uuid.UUID) (*types.StudyPlan, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.StudyPlan
	err := transaction.WithContext(ctx).
		Preload("Units", func(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }).
		Preload("Units.Concept").
		Where("id = ? AND user_id = ?", planID, userID).
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

func (r *studyPlanRepo) GetUnitOwnedByID(ctx context.Context, tx *gorm.DB, unitID, userID uuid.UUID) (*types.StudyUnit, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var result types.StudyUnit
	err := transaction.WithContext(ctx).
		Joins("JOIN study_plan ON study_plan.id = study_unit.plan_id").
		Where("study_unit.id = ? AND study_plan.user_id = ?", unitID, userID).
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

func (r *studyPlanRepo) UpdateUnitFields(ctx context.Context, tx *gorm.DB, unitID uuid.UUID, updates map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if unitID == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.StudyUnit{}).
		Where("id = ?", unitID).
		Updates(updates).Error
}
