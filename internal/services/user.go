package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

// Dashboard aggregates the home-screen numbers.
type Dashboard struct {
	TotalMaterials  int64 `json:"total_materials"`
	ProcessingCount int64 `json:"processing_count"`
	FailedCount     int64 `json:"failed_count"`
	DueCards        int64 `json:"due_cards"`
	ActivePlans     int64 `json:"active_plans"`
	CompletedUnits  int64 `json:"completed_units"`
	TotalUnits      int64 `json:"total_units"`
}

type UserService interface {
	GetProfile(ctx context.Context, userID uuid.UUID) (*types.User, error)
	GetDashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error)
}

type userService struct {
	log        *logger.Logger
	users      repos.UserRepo
	items      repos.MediaItemRepo
	flashcards repos.FlashcardRepo
	plans      repos.StudyPlanRepo
}

func NewUserService(
	log *logger.Logger,
	users repos.UserRepo,
	items repos.MediaItemRepo,
	flashcards repos.FlashcardRepo,
	plans repos.StudyPlanRepo,
) UserService {
	return &userService{
		log:        log.With("service", "UserService"),
		users:      users,
		items:      items,
		flashcards: flashcards,
		plans:      plans,
	}
}

func (s *userService) GetProfile(ctx context.Context, userID uuid.UUID) (*types.User, error) {
	found, err := s.users.GetByIDs(ctx, nil, []uuid.UUID{userID})
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, ErrNotFound
	}
	return found[0], nil
}

func (s *userService) GetDashboard(ctx context.Context, userID uuid.UUID) (*Dashboard, error) {
	dash := &Dashboard{}

	items, err := s.items.ListByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	dash.TotalMaterials = int64(len(items))
	for _, item := range items {
		switch item.Status {
		case types.MediaStatusProcessing, types.MediaStatusPending:
			dash.ProcessingCount++
		case types.MediaStatusFailed:
			dash.FailedCount++
		}
	}

	dash.DueCards, err = s.flashcards.CountDue(ctx, nil, userID, time.Now())
	if err != nil {
		return nil, err
	}

	plans, err := s.plans.ListByUserID(ctx, nil, userID)
	if err != nil {
		return nil, err
	}
	for _, plan := range plans {
		if plan.Status == types.StudyPlanStatusActive {
			dash.ActivePlans++
		}
		for _, unit := range plan.Units {
			dash.TotalUnits++
			if unit.IsCompleted {
				dash.CompletedUnits++
			}
		}
	}
	return dash, nil
}
