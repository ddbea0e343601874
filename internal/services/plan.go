package services

import (
	"context"

	"github.com/google/uuid"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

type PlanService interface {
	List(ctx context.Context, userID uuid.UUID) ([]*types.StudyPlan, error)
	Get(ctx context.Context, userID, planID uuid.UUID) (*types.StudyPlan, error)
}

type planService struct {
	log   *logger.Logger
	plans repos.StudyPlanRepo
}

func NewPlanService(log *logger.Logger, plans repos.StudyPlanRepo) PlanService {
	return &planService{
		log:   log.With("service", "PlanService"),
		plans: plans,
	}
}

func (s *planService) List(ctx context.Context, userID uuid.UUID) ([]*types.StudyPlan, error) {
	return s.plans.ListByUserID(ctx, nil, userID)
}

func (s *planService) Get(ctx context.Context, userID, planID uuid.UUID) (*types.StudyPlan, error) {
	plan, err := s.plans.GetOwnedByID(ctx, nil, planID, userID)
	if err != nil {
		return nil, err
	}
	if plan == nil {
		return nil, ErrNotFound
	}
	return plan, nil
}
