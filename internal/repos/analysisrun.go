package repos

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type AnalysisRunRepo interface {
	Create(ctx context.Context, tx *gorm.DB, runs []*types.AnalysisRun) ([]*types.AnalysisRun, error)
	GetLatestByMediaItemID(ctx context.Context, tx *gorm.DB, mediaItemID uuid.UUID) (*types.AnalysisRun, error)

	// HasActiveForMediaItem reports whether a queued or running run already
	// exists for the item. Enqueue uses it as the re-entry guard.
	HasActiveForMediaItem(ctx context.Context, tx *gorm.DB, mediaItemID uuid.UUID) (bool, error)

	// ClaimNextRunnable claims the oldest run that is either queued, or
	// running with a heartbeat stale enough to indicate a crashed worker.
	// Failed runs are never reclaimed; the pipeline retries only on explicit
	// external re-trigger.
	ClaimNextRunnable(ctx context.Context, tx *gorm.DB, maxAttempts int, staleRunning time.Duration) (*types.AnalysisRun, error)

	UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error
	Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error
}

type analysisRunRepo struct {
	db  *gorm.DB
	log *logger.Logger
}

func NewAnalysisRunRepo(db *gorm.DB, baseLog *logger.Logger) AnalysisRunRepo {
	return &analysisRunRepo{db: db, log: baseLog.With("repo", "AnalysisRunRepo")}
}

func (r *analysisRunRepo) Create(ctx context.Context, tx *gorm.DB, runs []*types.AnalysisRun) ([]*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if len(runs) == 0 {
		return []*types.AnalysisRun{}, nil
	}
	if err := transaction.WithContext(ctx).Create(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}

func (r *analysisRunRepo) GetLatestByMediaItemID(ctx context.Context, tx *gorm.DB, mediaItemID uuid.UUID) (*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if mediaItemID == uuid.Nil {
		return nil, nil
	}
	var run types.AnalysisRun
	err := transaction.WithContext(ctx).
		Where("media_item_id = ?", mediaItemID).
		Order("created_at DESC").
		Limit(1).
		Find(&run).Error
	if err != nil {
		return nil, err
	}
	if run.ID == uuid.Nil {
		return nil, nil
	}
	return &run, nil
}

func (r *analysisRunRepo) HasActiveForMediaItem(ctx context.Context, tx *gorm.DB, mediaItemID uuid.UUID) (bool, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	var count int64
	err := transaction.WithContext(ctx).
		Model(&types.AnalysisRun{}).
		Where("media_item_id = ? AND status IN ?", mediaItemID, []string{"queued", "running"}).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *analysisRunRepo) ClaimNextRunnable(
	ctx context.Context,
	tx *gorm.DB,
	maxAttempts int,
	staleRunning time.Duration,
) (*types.AnalysisRun, error) {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}

	now := time.Now()
	staleCutoff := now.Add(-staleRunning)

	var claimed *types.AnalysisRun

	err := transaction.WithContext(ctx).Transaction(func(txx *gorm.DB) error {
		var run types.AnalysisRun

		q := lockForUpdate(txx, "SKIP LOCKED").
			Where(`
        (
          status = ?
          OR (
            status = ?
            AND heartbeat_at IS NOT NULL
            AND heartbeat_at < ?
          )
        )
        AND attempts < ?
      `, "queued", "running", staleCutoff, maxAttempts).
			Order("created_at ASC")

		qErr := q.First(&run).Error
		if errors.Is(qErr, gorm.ErrRecordNotFound) {
			return nil
		}
		if qErr != nil {
			return qErr
		}

		uErr := txx.Model(&types.AnalysisRun{}).
			Where("id = ?", run.ID).
			Updates(map[string]any{
				"status":       "running",
				"attempts":     gorm.Expr("attempts + 1"),
				"locked_at":    now,
				"heartbeat_at": now,
				"updated_at":   now,
			}).Error
		if uErr != nil {
			return uErr
		}

		claimed = &run
		return nil
	})

	if err != nil {
		return nil, err
	}
	return claimed, nil
}

func (r *analysisRunRepo) UpdateFields(ctx context.Context, tx *gorm.DB, id uuid.UUID, updates map[string]any) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	if updates == nil {
		updates = map[string]any{}
	}
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now()
	}
	return transaction.WithContext(ctx).
		Model(&types.AnalysisRun{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *analysisRunRepo) Heartbeat(ctx context.Context, tx *gorm.DB, id uuid.UUID) error {
	transaction := tx
	if transaction == nil {
		transaction = r.db
	}
	if id == uuid.Nil {
		return nil
	}
	now := time.Now()
	return transaction.WithContext(ctx).
		Model(&types.AnalysisRun{}).
		Where("id = ? AND status = ?", id, "running").
		Updates(map[string]any{
			"heartbeat_at": now,
			"updated_at":   now,
		}).Error
}
