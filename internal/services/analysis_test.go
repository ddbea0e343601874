package services

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

func TestGenerateQuizzesProducesOneOutcomePerConcept(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{
		questionsFn: func(concept *types.Concept) ([]DraftQuestion, error) {
			if concept.Title == "Matrices" || concept.Title == "Tensors" {
				return nil, errors.New("model unavailable")
			}
			return []DraftQuestion{{
				QuestionText: "q",
				Options:      []string{"a", "b"},
				CorrectIndex: 1,
			}}, nil
		},
	}
	svc := newPipelineForTest(t, gdb, gen)

	concepts := []*types.Concept{
		{ID: uuid.New(), Title: "Vectors"},
		{ID: uuid.New(), Title: "Matrices"},
		{ID: uuid.New(), Title: "Determinants"},
		{ID: uuid.New(), Title: "Tensors"},
	}

	outcomes := svc.generateQuizzes(context.Background(), types.DefaultProjectSettings(), concepts)

	require.Len(t, outcomes, len(concepts))
	for i, outcome := range outcomes {
		require.Same(t, concepts[i], outcome.concept, "outcomes must preserve input order")
		switch concepts[i].Title {
		case "Matrices", "Tensors":
			require.Error(t, outcome.err)
			require.Nil(t, outcome.questions)
		default:
			require.NoError(t, outcome.err)
			require.Len(t, outcome.questions, 1)
		}
	}
}

func TestGenerateQuizzesBoundsConcurrency(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{
		questionsFn: func(concept *types.Concept) ([]DraftQuestion, error) {
			time.Sleep(30 * time.Millisecond)
			return []DraftQuestion{{QuestionText: "q", Options: []string{"a", "b"}, CorrectIndex: 0}}, nil
		},
	}
	svc := newPipelineForTest(t, gdb, gen)

	concepts := make([]*types.Concept, 20)
	for i := range concepts {
		concepts[i] = &types.Concept{ID: uuid.New(), Title: fmt.Sprintf("Concept %d", i)}
	}

	outcomes := svc.generateQuizzes(context.Background(), types.DefaultProjectSettings(), concepts)

	require.Len(t, outcomes, 20)
	require.LessOrEqual(t, gen.maxInFlight, quizConcurrency)
	require.Greater(t, gen.maxInFlight, 1, "fan-out should actually run calls in parallel")
}

func TestProcessNextClaimsAndCompletesQueuedRun(t *testing.T) {
	gdb := newTestDB(t)
	svc := newPipelineForTest(t, gdb, &fakeGenerator{})

	user := seedUser(t, gdb)
	path := writeTempDoc(t, "vectors and matrices in the plane")
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, path)
	run := &types.AnalysisRun{ID: uuid.New(), UserID: user.ID, MediaItemID: item.ID, Status: "queued"}
	require.NoError(t, gdb.Create(run).Error)

	claimed, err := svc.ProcessNext(context.Background())
	require.NoError(t, err)
	require.True(t, claimed)

	var gotRun types.AnalysisRun
	require.NoError(t, gdb.First(&gotRun, "id = ?", run.ID).Error)
	require.Equal(t, "succeeded", gotRun.Status)
	require.Equal(t, 1, gotRun.Attempts)

	var gotItem types.MediaItem
	require.NoError(t, gdb.First(&gotItem, "id = ?", item.ID).Error)
	require.Equal(t, types.MediaStatusCompleted, gotItem.Status)

	claimed, err = svc.ProcessNext(context.Background())
	require.NoError(t, err)
	require.False(t, claimed, "no runnable runs remain")
}

func TestProcessRunCompletesTextItem(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{}
	svc := newPipelineForTest(t, gdb, gen)

	user := seedUser(t, gdb)
	docPath := writeTempDoc(t, "vectors and matrices form the basis of linear algebra")
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, docPath)
	run := seedRun(t, gdb, user.ID, item.ID)

	require.NoError(t, svc.processRun(context.Background(), run))

	var got types.MediaItem
	require.NoError(t, gdb.First(&got, "id = ?", item.ID).Error)
	require.Equal(t, types.MediaStatusCompleted, got.Status)
	require.Empty(t, got.ProcessingStep, "step is cleared on completion")
	require.Contains(t, got.Transcription, "linear algebra")
	require.Equal(t, "a short summary", got.Summary)
	require.Empty(t, got.ErrorLog)

	var concepts []types.Concept
	require.NoError(t, gdb.Where("media_item_id = ?", item.ID).Find(&concepts).Error)
	require.Len(t, concepts, 2)

	var cards []types.Flashcard
	require.NoError(t, gdb.Where("user_id = ?", user.ID).Find(&cards).Error)
	require.Len(t, cards, 2)
	for _, card := range cards {
		require.Equal(t, 0, card.Repetitions)
		require.InDelta(t, DefaultEaseFactor, card.EaseFactor, 1e-9)
		require.False(t, card.NextReview.After(time.Now()), "new cards are due immediately")
	}

	var units []types.StudyUnit
	require.NoError(t, gdb.Order("position ASC").Find(&units).Error)
	require.Len(t, units, 2)
	for i, unit := range units {
		require.Equal(t, i, unit.Position)
		require.False(t, unit.IsCompleted)
	}

	var questionCount int64
	require.NoError(t, gdb.Model(&types.QuizQuestion{}).Count(&questionCount).Error)
	require.EqualValues(t, 2, questionCount)

	var gotRun types.AnalysisRun
	require.NoError(t, gdb.First(&gotRun, "id = ?", run.ID).Error)
	require.Equal(t, "succeeded", gotRun.Status)
}

func TestProcessRunToleratesAllQuizGenerationFailures(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{
		questionsFn: func(concept *types.Concept) ([]DraftQuestion, error) {
			return nil, errors.New("provider down")
		},
	}
	svc := newPipelineForTest(t, gdb, gen)

	user := seedUser(t, gdb)
	docPath := writeTempDoc(t, "some study material")
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, docPath)
	run := seedRun(t, gdb, user.ID, item.ID)

	require.NoError(t, svc.processRun(context.Background(), run),
		"per-concept quiz failures never fail the run")

	var got types.MediaItem
	require.NoError(t, gdb.First(&got, "id = ?", item.ID).Error)
	require.Equal(t, types.MediaStatusCompleted, got.Status)

	var questionCount int64
	require.NoError(t, gdb.Model(&types.QuizQuestion{}).Count(&questionCount).Error)
	require.EqualValues(t, 0, questionCount, "failed concepts contribute no questions")
}

// failingQuestionRepo forces a failure in the quiz commit itself, which is a
// stage failure unlike per-concept generation errors.
type failingQuestionRepo struct {
	repos.QuizQuestionRepo
}

func (f failingQuestionRepo) Create(ctx context.Context, tx *gorm.DB, questions []*types.QuizQuestion) ([]*types.QuizQuestion, error) {
	return nil, errors.New("insert rejected")
}

func TestProcessRunQuizStageFailureKeepsEarlierOutputs(t *testing.T) {
	gdb := newTestDB(t)
	log := newTestLogger(t)
	svc := NewAnalysisService(log, AnalysisDeps{
		DB:         gdb,
		Runs:       repos.NewAnalysisRunRepo(gdb, log),
		Items:      repos.NewMediaItemRepo(gdb, log),
		Concepts:   repos.NewConceptRepo(gdb, log),
		Flashcards: repos.NewFlashcardRepo(gdb, log),
		Plans:      repos.NewStudyPlanRepo(gdb, log),
		Questions:  failingQuestionRepo{repos.NewQuizQuestionRepo(gdb, log)},
		Settings:   &fixedSettings{settings: *types.DefaultProjectSettings()},
		Generator:  &fakeGenerator{},
		Retrieval:  fakeRetrieval{},
	}).(*analysisService)

	user := seedUser(t, gdb)
	docPath := writeTempDoc(t, "some study material")
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, docPath)
	run := seedRun(t, gdb, user.ID, item.ID)

	require.Error(t, svc.processRun(context.Background(), run))

	var got types.MediaItem
	require.NoError(t, gdb.First(&got, "id = ?", item.ID).Error)
	require.Equal(t, types.MediaStatusFailed, got.Status)
	require.Equal(t, StepQuizzes, got.ProcessingStep, "step stays at the failing stage")
	require.NotEmpty(t, got.ErrorLog)
	require.NotEmpty(t, got.Transcription, "earlier stage outputs survive")
	require.NotEmpty(t, got.Summary)

	var conceptCount, unitCount, questionCount int64
	require.NoError(t, gdb.Model(&types.Concept{}).Count(&conceptCount).Error)
	require.NoError(t, gdb.Model(&types.StudyUnit{}).Count(&unitCount).Error)
	require.NoError(t, gdb.Model(&types.QuizQuestion{}).Count(&questionCount).Error)
	require.EqualValues(t, 2, conceptCount, "committed concepts are not rolled back")
	require.EqualValues(t, 2, unitCount, "committed plan is not rolled back")
	require.EqualValues(t, 0, questionCount)

	var gotRun types.AnalysisRun
	require.NoError(t, gdb.First(&gotRun, "id = ?", run.ID).Error)
	require.Equal(t, "failed", gotRun.Status)
	require.NotEmpty(t, gotRun.Error)
}

func TestProcessRunSummarizeFailure(t *testing.T) {
	gdb := newTestDB(t)
	gen := &fakeGenerator{summarizeErr: errors.New("model refused")}
	svc := newPipelineForTest(t, gdb, gen)

	user := seedUser(t, gdb)
	docPath := writeTempDoc(t, "some study material")
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, docPath)
	run := seedRun(t, gdb, user.ID, item.ID)

	require.Error(t, svc.processRun(context.Background(), run))

	var got types.MediaItem
	require.NoError(t, gdb.First(&got, "id = ?", item.ID).Error)
	require.Equal(t, types.MediaStatusFailed, got.Status)
	require.Equal(t, StepSummarizing, got.ProcessingStep)
	require.NotEmpty(t, got.Transcription)
	require.Empty(t, got.Summary)

	var conceptCount int64
	require.NoError(t, gdb.Model(&types.Concept{}).Count(&conceptCount).Error)
	require.EqualValues(t, 0, conceptCount)
}

func TestEnqueueRejectsConcurrentRuns(t *testing.T) {
	gdb := newTestDB(t)
	svc := newPipelineForTest(t, gdb, &fakeGenerator{})

	user := seedUser(t, gdb)
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, "/tmp/doc.txt")

	_, err := svc.Enqueue(context.Background(), user.ID, item.ID)
	require.NoError(t, err)

	_, err = svc.Enqueue(context.Background(), user.ID, item.ID)
	require.ErrorIs(t, err, ErrAnalysisActive)
}

func TestEnqueueRejectsForeignItem(t *testing.T) {
	gdb := newTestDB(t)
	svc := newPipelineForTest(t, gdb, &fakeGenerator{})

	owner := seedUser(t, gdb)
	stranger := seedUser(t, gdb)
	item := seedMediaItem(t, gdb, owner.ID, types.MediaTypeText, "/tmp/doc.txt")

	_, err := svc.Enqueue(context.Background(), stranger.ID, item.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestEnqueueResetsFailedItem(t *testing.T) {
	gdb := newTestDB(t)
	svc := newPipelineForTest(t, gdb, &fakeGenerator{})

	user := seedUser(t, gdb)
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, "/tmp/doc.txt")
	require.NoError(t, gdb.Model(item).Updates(map[string]any{
		"status":          types.MediaStatusFailed,
		"processing_step": StepSummarizing,
		"transcription":   "old transcript",
		"summary":         "old summary",
		"error_log":       "stage failed",
	}).Error)
	failedRun := seedRun(t, gdb, user.ID, item.ID)
	require.NoError(t, gdb.Model(failedRun).Update("status", "failed").Error)

	run, err := svc.Enqueue(context.Background(), user.ID, item.ID)
	require.NoError(t, err)
	require.Equal(t, "queued", run.Status)

	var got types.MediaItem
	require.NoError(t, gdb.First(&got, "id = ?", item.ID).Error)
	require.Equal(t, types.MediaStatusPending, got.Status)
	require.Empty(t, got.ProcessingStep)
	require.Empty(t, got.Transcription)
	require.Empty(t, got.Summary)
	require.Empty(t, got.ErrorLog)
}
