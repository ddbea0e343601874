package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/db"
	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(gdb))

	t.Cleanup(func() {
		sqlDB, err := gdb.DB()
		if err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	return logger.NewNop()
}

func seedUser(t *testing.T, gdb *gorm.DB) *types.User {
	t.Helper()
	user := &types.User{
		ID:       uuid.New(),
		Email:    fmt.Sprintf("%s@example.com", uuid.NewString()[:8]),
		Password: "hashed",
	}
	require.NoError(t, gdb.Create(user).Error)
	return user
}

func seedMediaItem(t *testing.T, gdb *gorm.DB, userID uuid.UUID, mediaType types.MediaType, filePath string) *types.MediaItem {
	t.Helper()
	item := &types.MediaItem{
		ID:        uuid.New(),
		UserID:    userID,
		Title:     "Linear Algebra Notes",
		FilePath:  filePath,
		MediaType: mediaType,
		Status:    types.MediaStatusPending,
	}
	require.NoError(t, gdb.Create(item).Error)
	return item
}

func seedRun(t *testing.T, gdb *gorm.DB, userID, itemID uuid.UUID) *types.AnalysisRun {
	t.Helper()
	run := &types.AnalysisRun{
		ID:          uuid.New(),
		UserID:      userID,
		MediaItemID: itemID,
		Status:      "running",
	}
	require.NoError(t, gdb.Create(run).Error)
	return run
}

// fakeGenerator scripts the LLM-backed stages. Any of the func fields may be
// nil, in which case a minimal valid response is produced.
type fakeGenerator struct {
	mu sync.Mutex

	summarizeErr error
	conceptsErr  error
	planErr      error

	concepts []DraftConcept

	// questionsFn decides the per-concept outcome; also records concurrency.
	questionsFn func(concept *types.Concept) ([]DraftQuestion, error)

	inFlight    int
	maxInFlight int
}

func (f *fakeGenerator) Summarize(ctx context.Context, settings *types.ProjectSettings, text string) (string, error) {
	if f.summarizeErr != nil {
		return "", f.summarizeErr
	}
	return "a short summary", nil
}

func (f *fakeGenerator) ExtractConcepts(ctx context.Context, settings *types.ProjectSettings, text string) ([]DraftConcept, error) {
	if f.conceptsErr != nil {
		return nil, f.conceptsErr
	}
	if f.concepts != nil {
		return f.concepts, nil
	}
	return []DraftConcept{
		{Title: "Vectors", Explanation: "Quantities with direction", Complexity: 1},
		{Title: "Matrices", Explanation: "Rectangular arrays", Complexity: 2},
	}, nil
}

func (f *fakeGenerator) GeneratePlan(ctx context.Context, settings *types.ProjectSettings, summary string, concepts []DraftConcept) (*DraftPlan, error) {
	if f.planErr != nil {
		return nil, f.planErr
	}
	plan := &DraftPlan{Title: "Foundations", Description: "From vectors up"}
	for _, c := range concepts {
		plan.Units = append(plan.Units, DraftUnit{
			Title:        "Learn " + c.Title,
			Description:  c.Explanation,
			ConceptTitle: c.Title,
		})
	}
	return plan, nil
}

func (f *fakeGenerator) GenerateQuestions(ctx context.Context, settings *types.ProjectSettings, concept *types.Concept, count int) ([]DraftQuestion, error) {
	f.mu.Lock()
	f.inFlight++
	if f.inFlight > f.maxInFlight {
		f.maxInFlight = f.inFlight
	}
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.questionsFn != nil {
		return f.questionsFn(concept)
	}
	return []DraftQuestion{{
		QuestionText: "What is " + concept.Title + "?",
		Options:      []string{"right", "wrong"},
		CorrectIndex: 0,
		Explanation:  "definition",
	}}, nil
}

type fakeRetrieval struct{}

func (fakeRetrieval) IndexMediaItem(ctx context.Context, tx *gorm.DB, mediaItemID uuid.UUID, text string) (int, error) {
	return 1, nil
}

func (fakeRetrieval) Search(ctx context.Context, userID uuid.UUID, query string, topK int) ([]RetrievedChunk, error) {
	return nil, nil
}

type fixedSettings struct {
	settings types.ProjectSettings
}

func (f *fixedSettings) Load(ctx context.Context) (*types.ProjectSettings, error) {
	s := f.settings
	return &s, nil
}

func (f *fixedSettings) Update(ctx context.Context, updates map[string]any) (*types.ProjectSettings, error) {
	s := f.settings
	return &s, nil
}

func (f *fixedSettings) Invalidate() {}

func newPipelineForTest(t *testing.T, gdb *gorm.DB, gen GenerationService) *analysisService {
	t.Helper()
	log := newTestLogger(t)
	svc := NewAnalysisService(log, AnalysisDeps{
		DB:         gdb,
		Runs:       repos.NewAnalysisRunRepo(gdb, log),
		Items:      repos.NewMediaItemRepo(gdb, log),
		Concepts:   repos.NewConceptRepo(gdb, log),
		Flashcards: repos.NewFlashcardRepo(gdb, log),
		Plans:      repos.NewStudyPlanRepo(gdb, log),
		Questions:  repos.NewQuizQuestionRepo(gdb, log),
		Settings:   &fixedSettings{settings: *types.DefaultProjectSettings()},
		Generator:  gen,
		Retrieval:  fakeRetrieval{},
	})
	return svc.(*analysisService)
}

func writeTempDoc(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "notes.txt")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}
