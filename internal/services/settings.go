package services

import (
	"context"
	"sync"
	"time"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

// SettingsService fronts the single project_settings row with a short
// in-process TTL cache so the pipeline does not hit the table once per stage.
// Update writes through and invalidates immediately.
type SettingsService interface {
	Load(ctx context.Context) (*types.ProjectSettings, error)
	Update(ctx context.Context, updates map[string]any) (*types.ProjectSettings, error)
	Invalidate()
}

type settingsService struct {
	repo repos.SettingsRepo
	log  *logger.Logger
	ttl  time.Duration

	mu        sync.Mutex
	cached    *types.ProjectSettings
	fetchedAt time.Time
}

func NewSettingsService(repo repos.SettingsRepo, log *logger.Logger) SettingsService {
	return &settingsService{
		repo: repo,
		log:  log.With("service", "SettingsService"),
		ttl:  30 * time.Second,
	}
}

func (s *settingsService) Load(ctx context.Context) (*types.ProjectSettings, error) {
	s.mu.Lock()
	if s.cached != nil && time.Since(s.fetchedAt) < s.ttl {
		cached := *s.cached
		s.mu.Unlock()
		return &cached, nil
	}
	s.mu.Unlock()

	settings, err := s.repo.Get(ctx, nil)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cached = settings
	s.fetchedAt = time.Now()
	copied := *settings
	s.mu.Unlock()
	return &copied, nil
}

func (s *settingsService) Update(ctx context.Context, updates map[string]any) (*types.ProjectSettings, error) {
	// Ensure the singleton row exists before updating it.
	if _, err := s.Load(ctx); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateFields(ctx, nil, updates); err != nil {
		return nil, err
	}
	s.Invalidate()
	return s.Load(ctx)
}

func (s *settingsService) Invalidate() {
	s.mu.Lock()
	s.cached = nil
	s.mu.Unlock()
}
