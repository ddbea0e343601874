package services

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"runtime/debug"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/sse"
	"github.com/yungbote/studyloop-backend/internal/types"
)

// Processing step labels shown to the client while a run is live. The label
// is left in place when the stage it names fails, and cleared on completion.
const (
	StepExtractingAudio = "Extracting Audio..."
	StepTranscribing    = "Transcribing..."
	StepOCR             = "Performing OCR..."
	StepReading         = "Reading Text..."
	StepSummarizing     = "Summarizing..."
	StepIndexing        = "Indexing Content..."
	StepConcepts        = "Extracting Concepts..."
	StepPlanning        = "Generating Study Plan..."
	StepQuizzes         = "Generating Quizzes..."
)

// quizConcurrency bounds simultaneous quiz-generation calls per run.
const quizConcurrency = 5

const questionsPerConcept = 3

// ProgressPublisher pushes pipeline events to the user's live connections.
// A nil publisher disables events.
type ProgressPublisher interface {
	Publish(ctx context.Context, userID uuid.UUID, event sse.Event) error
}

type AnalysisService interface {
	// Enqueue resets the item and queues a run for it. Returns
	// ErrAnalysisActive when a queued or running run already exists.
	Enqueue(ctx context.Context, userID, mediaItemID uuid.UUID) (*types.AnalysisRun, error)

	// StartWorker launches the claim loop. It returns immediately; the loop
	// stops when ctx is canceled.
	StartWorker(ctx context.Context)

	// ProcessNext claims and fully processes one runnable run. The bool
	// reports whether a run was claimed.
	ProcessNext(ctx context.Context) (bool, error)
}

type analysisService struct {
	log *logger.Logger
	db  *gorm.DB

	runs       repos.AnalysisRunRepo
	items      repos.MediaItemRepo
	concepts   repos.ConceptRepo
	flashcards repos.FlashcardRepo
	plans      repos.StudyPlanRepo
	questions  repos.QuizQuestionRepo

	settings    SettingsService
	tools       MediaTools
	transcriber TranscriptionService
	ocr         OCRService
	generator   GenerationService
	retrieval   RetrievalService
	publisher   ProgressPublisher

	maxAttempts  int
	staleRunning time.Duration
	pollInterval time.Duration
}

type AnalysisDeps struct {
	DB         *gorm.DB
	Runs       repos.AnalysisRunRepo
	Items      repos.MediaItemRepo
	Concepts   repos.ConceptRepo
	Flashcards repos.FlashcardRepo
	Plans      repos.StudyPlanRepo
	Questions  repos.QuizQuestionRepo

	Settings    SettingsService
	Tools       MediaTools
	Transcriber TranscriptionService
	OCR         OCRService
	Generator   GenerationService
	Retrieval   RetrievalService
	Publisher   ProgressPublisher
}

func NewAnalysisService(log *logger.Logger, deps AnalysisDeps) AnalysisService {
	return &analysisService{
		log:          log.With("service", "AnalysisService"),
		db:           deps.DB,
		runs:         deps.Runs,
		items:        deps.Items,
		concepts:     deps.Concepts,
		flashcards:   deps.Flashcards,
		plans:        deps.Plans,
		questions:    deps.Questions,
		settings:     deps.Settings,
		tools:        deps.Tools,
		transcriber:  deps.Transcriber,
		ocr:          deps.OCR,
		generator:    deps.Generator,
		retrieval:    deps.Retrieval,
		publisher:    deps.Publisher,
		maxAttempts:  3,
		staleRunning: 5 * time.Minute,
		pollInterval: 2 * time.Second,
	}
}

func (s *analysisService) Enqueue(ctx context.Context, userID, mediaItemID uuid.UUID) (*types.AnalysisRun, error) {
	item, err := s.items.GetOwnedByID(ctx, nil, mediaItemID, userID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, ErrNotFound
	}

	var run *types.AnalysisRun
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		active, err := s.runs.HasActiveForMediaItem(ctx, tx, mediaItemID)
		if err != nil {
			return err
		}
		if active {
			return ErrAnalysisActive
		}

		// Re-triggering wipes the outputs of the previous run so the new run
		// starts from the original file.
		if err := s.items.UpdateFields(ctx, tx, mediaItemID, map[string]any{
			"status":          types.MediaStatusPending,
			"processing_step": "",
			"transcription":   "",
			"summary":         "",
			"error_log":       "",
		}); err != nil {
			return err
		}

		run = &types.AnalysisRun{
			ID:          uuid.New(),
			UserID:      userID,
			MediaItemID: mediaItemID,
			Status:      "queued",
		}
		_, err = s.runs.Create(ctx, tx, []*types.AnalysisRun{run})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.publish(ctx, userID, "media.queued", map[string]any{
		"media_item_id": mediaItemID,
		"status":        types.MediaStatusPending,
	})
	return run, nil
}

func (s *analysisService) StartWorker(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(s.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for {
					claimed, err := s.ProcessNext(ctx)
					if err != nil {
						s.log.Error("pipeline run failed", "error", err.Error())
					}
					if !claimed {
						break
					}
				}
			}
		}
	}()
}

func (s *analysisService) ProcessNext(ctx context.Context) (bool, error) {
	run, err := s.runs.ClaimNextRunnable(ctx, nil, s.maxAttempts, s.staleRunning)
	if err != nil {
		return false, err
	}
	if run == nil {
		return false, nil
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	go s.heartbeatLoop(hbCtx, run.ID)
	defer stopHeartbeat()

	return true, s.processRun(ctx, run)
}

func (s *analysisService) heartbeatLoop(ctx context.Context, runID uuid.UUID) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.runs.Heartbeat(ctx, nil, runID); err != nil {
				s.log.Warn("heartbeat failed", "run_id", runID, "error", err.Error())
			}
		}
	}
}

// processRun executes the full pipeline for one claimed run. Stage outputs
// are persisted as each stage finishes; a stage failure marks the run and the
// item failed, records the error, and leaves earlier outputs in place.
func (s *analysisService) processRun(ctx context.Context, run *types.AnalysisRun) (err error) {
	items, getErr := s.items.GetByIDs(ctx, nil, []uuid.UUID{run.MediaItemID})
	if getErr != nil {
		return getErr
	}
	if len(items) == 0 {
		return s.failRun(ctx, run, nil, "load item", fmt.Errorf("media item %s missing", run.MediaItemID))
	}
	item := items[0]

	defer func() {
		if r := recover(); r != nil {
			err = s.failRun(ctx, run, item, item.ProcessingStep,
				fmt.Errorf("panic: %v\n%s", r, debug.Stack()))
		}
	}()

	progress := func(step string) error {
		item.ProcessingStep = step
		if uErr := s.items.UpdateFields(ctx, nil, item.ID, map[string]any{
			"status":          types.MediaStatusProcessing,
			"processing_step": step,
		}); uErr != nil {
			return uErr
		}
		s.publish(ctx, run.UserID, "media.progress", map[string]any{
			"media_item_id": item.ID,
			"status":        types.MediaStatusProcessing,
			"step":          step,
		})
		return nil
	}

	settings, err := s.settings.Load(ctx)
	if err != nil {
		return s.failRun(ctx, run, item, "load settings", err)
	}

	text, step, err := s.extractContent(ctx, item, settings, progress)
	if err != nil {
		return s.failRun(ctx, run, item, step, err)
	}
	if err := s.items.UpdateFields(ctx, nil, item.ID, map[string]any{"transcription": text}); err != nil {
		return s.failRun(ctx, run, item, step, err)
	}

	if err := progress(StepSummarizing); err != nil {
		return err
	}
	summary, err := s.generator.Summarize(ctx, settings, text)
	if err != nil {
		return s.failRun(ctx, run, item, StepSummarizing, err)
	}
	if err := s.items.UpdateFields(ctx, nil, item.ID, map[string]any{"summary": summary}); err != nil {
		return s.failRun(ctx, run, item, StepSummarizing, err)
	}

	if err := progress(StepIndexing); err != nil {
		return err
	}
	if idxErr := s.indexContent(ctx, item.ID, text); idxErr != nil {
		return s.failRun(ctx, run, item, StepIndexing, idxErr)
	}

	if err := progress(StepConcepts); err != nil {
		return err
	}
	drafts, err := s.generator.ExtractConcepts(ctx, settings, text)
	if err != nil {
		return s.failRun(ctx, run, item, StepConcepts, err)
	}
	concepts, err := s.commitConcepts(ctx, run.UserID, item.ID, drafts)
	if err != nil {
		return s.failRun(ctx, run, item, StepConcepts, err)
	}

	if err := progress(StepPlanning); err != nil {
		return err
	}
	draftPlan, err := s.generator.GeneratePlan(ctx, settings, summary, drafts)
	if err != nil {
		return s.failRun(ctx, run, item, StepPlanning, err)
	}
	if err := s.commitPlan(ctx, run.UserID, item.ID, draftPlan, concepts); err != nil {
		return s.failRun(ctx, run, item, StepPlanning, err)
	}

	if err := progress(StepQuizzes); err != nil {
		return err
	}
	outcomes := s.generateQuizzes(ctx, settings, concepts)
	if err := s.commitQuizzes(ctx, outcomes); err != nil {
		return s.failRun(ctx, run, item, StepQuizzes, err)
	}

	if err := s.items.UpdateFields(ctx, nil, item.ID, map[string]any{
		"status":          types.MediaStatusCompleted,
		"processing_step": "",
		"error_log":       "",
	}); err != nil {
		return err
	}
	if err := s.runs.UpdateFields(ctx, nil, run.ID, map[string]any{
		"status":    "succeeded",
		"locked_at": nil,
	}); err != nil {
		return err
	}

	s.publish(ctx, run.UserID, "media.completed", map[string]any{
		"media_item_id": item.ID,
		"status":        types.MediaStatusCompleted,
	})
	s.log.Info("pipeline run succeeded", "run_id", run.ID, "media_item_id", item.ID)
	return nil
}

// extractContent produces the raw text for downstream stages along with the
// step label active while it ran.
func (s *analysisService) extractContent(
	ctx context.Context,
	item *types.MediaItem,
	settings *types.ProjectSettings,
	progress func(string) error,
) (string, string, error) {
	switch item.MediaType {
	case types.MediaTypeAudio, types.MediaTypeVideo:
		audioPath := item.FilePath
		if item.MediaType == types.MediaTypeVideo {
			if err := progress(StepExtractingAudio); err != nil {
				return "", StepExtractingAudio, err
			}
			wav, err := s.tools.ExtractAudio(ctx, item.FilePath)
			if err != nil {
				return "", StepExtractingAudio, err
			}
			defer s.tools.Cleanup(wav)
			audioPath = wav
		}
		if err := progress(StepTranscribing); err != nil {
			return "", StepTranscribing, err
		}
		text, err := s.transcriber.Transcribe(ctx, audioPath, settings.TranscriptionEngine)
		if err != nil {
			return "", StepTranscribing, err
		}
		if text == "" {
			return "", StepTranscribing, fmt.Errorf("transcription produced no text")
		}
		return text, StepTranscribing, nil

	case types.MediaTypeImage:
		if err := progress(StepOCR); err != nil {
			return "", StepOCR, err
		}
		text, err := s.ocr.ExtractText(ctx, item.FilePath)
		if err != nil {
			return "", StepOCR, err
		}
		if text == "" {
			return "", StepOCR, fmt.Errorf("no text recognized in image")
		}
		return text, StepOCR, nil

	default:
		if err := progress(StepReading); err != nil {
			return "", StepReading, err
		}
		raw, err := os.ReadFile(item.FilePath)
		if err != nil {
			return "", StepReading, fmt.Errorf("read document: %w", err)
		}
		if len(raw) == 0 {
			return "", StepReading, fmt.Errorf("document is empty")
		}
		return string(raw), StepReading, nil
	}
}

func (s *analysisService) indexContent(ctx context.Context, mediaItemID uuid.UUID, text string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.retrieval.IndexMediaItem(ctx, tx, mediaItemID, text)
		return err
	})
}

// commitConcepts persists concepts plus one flashcard per concept in a single
// transaction. New cards are due immediately.
func (s *analysisService) commitConcepts(ctx context.Context, userID, mediaItemID uuid.UUID, drafts []DraftConcept) ([]*types.Concept, error) {
	now := time.Now()
	concepts := make([]*types.Concept, len(drafts))
	cards := make([]*types.Flashcard, len(drafts))
	for i, d := range drafts {
		concepts[i] = &types.Concept{
			ID:          uuid.New(),
			MediaItemID: mediaItemID,
			Title:       d.Title,
			Description: d.Explanation,
			Complexity:  d.Complexity,
		}
		conceptID := concepts[i].ID
		cards[i] = &types.Flashcard{
			ID:         uuid.New(),
			UserID:     userID,
			ConceptID:  &conceptID,
			Front:      d.Title,
			Back:       d.Explanation,
			EaseFactor: DefaultEaseFactor,
			NextReview: now,
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.concepts.Create(ctx, tx, concepts); err != nil {
			return err
		}
		_, err := s.flashcards.Create(ctx, tx, cards)
		return err
	})
	if err != nil {
		return nil, err
	}
	return concepts, nil
}

// commitPlan persists the plan and its units in a single transaction. Units
// are joined to concepts by exact title; units naming an unknown concept are
// dropped rather than failing the stage.
func (s *analysisService) commitPlan(ctx context.Context, userID, mediaItemID uuid.UUID, draft *DraftPlan, concepts []*types.Concept) error {
	byTitle := make(map[string]*types.Concept, len(concepts))
	for _, c := range concepts {
		byTitle[c.Title] = c
	}

	plan := &types.StudyPlan{
		ID:          uuid.New(),
		UserID:      userID,
		MediaItemID: mediaItemID,
		Title:       draft.Title,
		Status:      types.StudyPlanStatusActive,
	}

	var units []*types.StudyUnit
	position := 0
	for _, du := range draft.Units {
		concept, ok := byTitle[du.ConceptTitle]
		if !ok {
			s.log.Warn("plan unit references unknown concept, dropping",
				"plan_title", draft.Title, "concept_title", du.ConceptTitle)
			continue
		}
		units = append(units, &types.StudyUnit{
			ID:        uuid.New(),
			PlanID:    plan.ID,
			ConceptID: concept.ID,
			Position:  position,
		})
		position++
	}
	if len(units) == 0 {
		return fmt.Errorf("no plan unit matched an extracted concept")
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := s.plans.CreatePlans(ctx, tx, []*types.StudyPlan{plan}); err != nil {
			return err
		}
		_, err := s.plans.CreateUnits(ctx, tx, units)
		return err
	})
}

type quizOutcome struct {
	concept   *types.Concept
	questions []DraftQuestion
	err       error
}

// generateQuizzes fans out one generation call per concept with at most
// quizConcurrency in flight, waits for all of them, and returns exactly one
// outcome per concept in input order. A failed call yields an outcome with
// nil questions and the error; it never cancels its siblings.
func (s *analysisService) generateQuizzes(ctx context.Context, settings *types.ProjectSettings, concepts []*types.Concept) []quizOutcome {
	outcomes := make([]quizOutcome, len(concepts))
	sem := semaphore.NewWeighted(quizConcurrency)

	var wg sync.WaitGroup
	for i, concept := range concepts {
		if err := sem.Acquire(ctx, 1); err != nil {
			outcomes[i] = quizOutcome{concept: concept, err: err}
			continue
		}
		wg.Add(1)
		go func(i int, concept *types.Concept) {
			defer wg.Done()
			defer sem.Release(1)
			questions, err := s.generator.GenerateQuestions(ctx, settings, concept, questionsPerConcept)
			if err != nil {
				s.log.Warn("quiz generation failed for concept",
					"concept_id", concept.ID, "title", concept.Title, "error", err.Error())
				outcomes[i] = quizOutcome{concept: concept, err: err}
				return
			}
			outcomes[i] = quizOutcome{concept: concept, questions: questions}
		}(i, concept)
	}
	wg.Wait()
	return outcomes
}

// commitQuizzes persists all successful outcomes in one transaction. Failed
// concepts simply contribute no questions; even all of them failing does not
// fail the run. Only the commit itself can.
func (s *analysisService) commitQuizzes(ctx context.Context, outcomes []quizOutcome) error {
	var rows []*types.QuizQuestion
	for _, outcome := range outcomes {
		if outcome.err != nil {
			continue
		}
		for _, q := range outcome.questions {
			payload, err := json.Marshal(map[string]any{
				"question":      q.QuestionText,
				"options":       q.Options,
				"correct_index": q.CorrectIndex,
				"explanation":   q.Explanation,
			})
			if err != nil {
				return err
			}
			rows = append(rows, &types.QuizQuestion{
				ID:           uuid.New(),
				ConceptID:    outcome.concept.ID,
				QuestionType: types.QuestionTypeMultipleChoice,
				QuestionData: payload,
			})
		}
	}

	if len(rows) == 0 {
		return nil
	}

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		_, err := s.questions.Create(ctx, tx, rows)
		return err
	})
}

// failRun records the failure on both the run and the item. The processing
// step is left pointing at the stage that failed.
func (s *analysisService) failRun(ctx context.Context, run *types.AnalysisRun, item *types.MediaItem, stage string, cause error) error {
	now := time.Now()
	errorLog := fmt.Sprintf("stage %q failed: %v", stage, cause)

	if uErr := s.runs.UpdateFields(ctx, nil, run.ID, map[string]any{
		"status":        "failed",
		"error":         errorLog,
		"last_error_at": now,
		"locked_at":     nil,
	}); uErr != nil {
		s.log.Error("could not mark run failed", "run_id", run.ID, "error", uErr.Error())
	}

	if item != nil {
		if uErr := s.items.UpdateFields(ctx, nil, item.ID, map[string]any{
			"status":    types.MediaStatusFailed,
			"error_log": errorLog,
		}); uErr != nil {
			s.log.Error("could not mark item failed", "media_item_id", item.ID, "error", uErr.Error())
		}
		s.publish(ctx, run.UserID, "media.failed", map[string]any{
			"media_item_id": item.ID,
			"status":        types.MediaStatusFailed,
			"step":          stage,
			"error":         truncate(cause.Error(), 500),
		})
	}

	s.log.Error("pipeline run failed", "run_id", run.ID, "stage", stage, "error", cause.Error())
	return fmt.Errorf("run %s: %s", run.ID, errorLog)
}

func (s *analysisService) publish(ctx context.Context, userID uuid.UUID, name string, payload map[string]any) {
	if s.publisher == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return
	}
	if err := s.publisher.Publish(ctx, userID, sse.Event{Name: name, Data: data}); err != nil {
		s.log.Warn("event publish failed", "event", name, "error", err.Error())
	}
}
