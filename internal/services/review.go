package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

// quizPassThreshold is the fraction of correct answers that completes a
// study unit.
const quizPassThreshold = 0.7

// QuizQuestionView is a question as shown to the learner: the correct index
// stays server-side until grading.
type QuizQuestionView struct {
	ID       uuid.UUID `json:"id"`
	Question string    `json:"question"`
	Options  []string  `json:"options"`
}

// QuizAnswer is one submitted answer.
type QuizAnswer struct {
	QuestionID    uuid.UUID `json:"question_id"`
	SelectedIndex int       `json:"selected_index"`
}

// QuizQuestionResult is the graded view of one answer.
type QuizQuestionResult struct {
	QuestionID    uuid.UUID `json:"question_id"`
	Correct       bool      `json:"correct"`
	CorrectIndex  int       `json:"correct_index"`
	SelectedIndex int       `json:"selected_index"`
	Explanation   string    `json:"explanation"`
}

// QuizResult is the outcome of a graded submission.
type QuizResult struct {
	Score         float64              `json:"score"`
	Passed        bool                 `json:"passed"`
	UnitCompleted bool                 `json:"unit_completed"`
	Questions     []QuizQuestionResult `json:"questions"`
}

// ReviewService owns every mutation of flashcard scheduling state: the
// spaced-repetition review flow and the quiz wrong-answer penalty.
type ReviewService interface {
	// NextDueCard returns the most overdue card at asOf, or nil when nothing
	// is due, plus the total due count.
	NextDueCard(ctx context.Context, userID uuid.UUID, asOf time.Time) (*types.Flashcard, int64, error)

	// SubmitReview grades one recall and reschedules the card. Quality is
	// validated against [0,5]; the card must belong to the user.
	SubmitReview(ctx context.Context, userID, cardID uuid.UUID, quality int, asOf time.Time) (*types.Flashcard, error)

	// QuizForUnit returns the learner view of the unit's question pool.
	QuizForUnit(ctx context.Context, userID, unitID uuid.UUID) ([]QuizQuestionView, error)

	// SubmitQuiz grades answers against the unit's questions, applies the
	// wrong-answer penalty to the concept's flashcard, and completes the
	// unit when the score reaches the pass threshold.
	SubmitQuiz(ctx context.Context, userID, unitID uuid.UUID, answers []QuizAnswer, asOf time.Time) (*QuizResult, error)
}

type reviewService struct {
	log        *logger.Logger
	db         *gorm.DB
	flashcards repos.FlashcardRepo
	plans      repos.StudyPlanRepo
	questions  repos.QuizQuestionRepo
}

func NewReviewService(
	log *logger.Logger,
	db *gorm.DB,
	flashcards repos.FlashcardRepo,
	plans repos.StudyPlanRepo,
	questions repos.QuizQuestionRepo,
) ReviewService {
	return &reviewService{
		log:        log.With("service", "ReviewService"),
		db:         db,
		flashcards: flashcards,
		plans:      plans,
		questions:  questions,
	}
}

func (s *reviewService) NextDueCard(ctx context.Context, userID uuid.UUID, asOf time.Time) (*types.Flashcard, int64, error) {
	card, err := s.flashcards.NextDue(ctx, nil, userID, asOf)
	if err != nil {
		return nil, 0, err
	}
	count, err := s.flashcards.CountDue(ctx, nil, userID, asOf)
	if err != nil {
		return nil, 0, err
	}
	return card, count, nil
}

func (s *reviewService) SubmitReview(ctx context.Context, userID, cardID uuid.UUID, quality int, asOf time.Time) (*types.Flashcard, error) {
	// The read and the reschedule share one transaction with the card row
	// locked, so concurrent submissions for the same card serialize instead
	// of computing from the same snapshot and losing an update.
	var card *types.Flashcard
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		card, err = s.flashcards.GetOwnedByIDForUpdate(ctx, tx, cardID, userID)
		if err != nil {
			return err
		}
		if card == nil {
			return ErrNotFound
		}

		intervalDays, ease, err := CalculateNextReview(quality, card.IntervalDays, card.EaseFactor, card.Repetitions)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrValidation, err)
		}

		nextReview := asOf.AddDate(0, 0, intervalDays)
		updates := map[string]any{
			"repetitions":   card.Repetitions + 1,
			"interval_days": intervalDays,
			"ease_factor":   ease,
			"last_review":   asOf,
			"next_review":   nextReview,
		}
		if err := s.flashcards.UpdateFields(ctx, tx, card.ID, updates); err != nil {
			return err
		}

		card.Repetitions++
		card.IntervalDays = intervalDays
		card.EaseFactor = ease
		card.LastReview = &asOf
		card.NextReview = nextReview
		return nil
	})
	if err != nil {
		return nil, err
	}
	return card, nil
}

type storedQuestion struct {
	Question     string   `json:"question"`
	Options      []string `json:"options"`
	CorrectIndex int      `json:"correct_index"`
	Explanation  string   `json:"explanation"`
}

func (s *reviewService) loadUnitQuestions(ctx context.Context, userID, unitID uuid.UUID) (*types.StudyUnit, []*types.QuizQuestion, map[uuid.UUID]storedQuestion, error) {
	unit, err := s.plans.GetUnitOwnedByID(ctx, nil, unitID, userID)
	if err != nil {
		return nil, nil, nil, err
	}
	if unit == nil {
		return nil, nil, nil, ErrNotFound
	}

	rows, err := s.questions.GetByConceptIDs(ctx, nil, []uuid.UUID{unit.ConceptID})
	if err != nil {
		return nil, nil, nil, err
	}

	parsed := make(map[uuid.UUID]storedQuestion, len(rows))
	for _, row := range rows {
		var q storedQuestion
		if err := json.Unmarshal(row.QuestionData, &q); err != nil {
			s.log.Warn("skipping malformed question payload", "question_id", row.ID, "error", err.Error())
			continue
		}
		parsed[row.ID] = q
	}
	return unit, rows, parsed, nil
}

func (s *reviewService) QuizForUnit(ctx context.Context, userID, unitID uuid.UUID) ([]QuizQuestionView, error) {
	_, rows, parsed, err := s.loadUnitQuestions(ctx, userID, unitID)
	if err != nil {
		return nil, err
	}

	views := make([]QuizQuestionView, 0, len(rows))
	for _, row := range rows {
		q, ok := parsed[row.ID]
		if !ok {
			continue
		}
		views = append(views, QuizQuestionView{
			ID:       row.ID,
			Question: q.Question,
			Options:  q.Options,
		})
	}
	return views, nil
}

func (s *reviewService) SubmitQuiz(ctx context.Context, userID, unitID uuid.UUID, answers []QuizAnswer, asOf time.Time) (*QuizResult, error) {
	unit, _, parsed, err := s.loadUnitQuestions(ctx, userID, unitID)
	if err != nil {
		return nil, err
	}
	if len(answers) == 0 {
		return nil, fmt.Errorf("%w: no answers submitted", ErrValidation)
	}

	result := &QuizResult{}
	correct := 0
	seen := map[uuid.UUID]bool{}
	for _, answer := range answers {
		if seen[answer.QuestionID] {
			return nil, fmt.Errorf("%w: duplicate answer for question %s", ErrValidation, answer.QuestionID)
		}
		seen[answer.QuestionID] = true

		q, ok := parsed[answer.QuestionID]
		if !ok {
			return nil, fmt.Errorf("%w: question %s is not part of this unit", ErrValidation, answer.QuestionID)
		}
		isCorrect := answer.SelectedIndex == q.CorrectIndex
		if isCorrect {
			correct++
		}
		result.Questions = append(result.Questions, QuizQuestionResult{
			QuestionID:    answer.QuestionID,
			Correct:       isCorrect,
			CorrectIndex:  q.CorrectIndex,
			SelectedIndex: answer.SelectedIndex,
			Explanation:   q.Explanation,
		})
	}

	result.Score = float64(correct) / float64(len(answers))
	result.Passed = result.Score >= quizPassThreshold

	// Any wrong answer demotes the concept's flashcard to an immediate
	// re-review regardless of the overall score.
	if correct < len(answers) {
		if err := s.applyWrongAnswerPenalty(ctx, userID, unit.ConceptID, asOf); err != nil {
			return nil, err
		}
	}

	if result.Passed && !unit.IsCompleted {
		if err := s.completeUnit(ctx, unit); err != nil {
			return nil, err
		}
		result.UnitCompleted = true
	}
	return result, nil
}

func (s *reviewService) applyWrongAnswerPenalty(ctx context.Context, userID, conceptID uuid.UUID, asOf time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		card, err := s.flashcards.GetByUserAndConceptForUpdate(ctx, tx, userID, conceptID)
		if err != nil {
			return err
		}
		if card == nil {
			return nil
		}

		intervalDays, ease := QuizWrongAnswerPenalty(card.EaseFactor)
		return s.flashcards.UpdateFields(ctx, tx, card.ID, map[string]any{
			"interval_days": intervalDays,
			"ease_factor":   ease,
			"next_review":   asOf,
		})
	})
}

// completeUnit marks the unit done and, when it was the last open unit of
// its plan, marks the plan completed too.
func (s *reviewService) completeUnit(ctx context.Context, unit *types.StudyUnit) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.plans.UpdateUnitFields(ctx, tx, unit.ID, map[string]any{"is_completed": true}); err != nil {
			return err
		}

		var remaining int64
		if err := tx.WithContext(ctx).
			Model(&types.StudyUnit{}).
			Where("plan_id = ? AND is_completed = ? AND id <> ?", unit.PlanID, false, unit.ID).
			Count(&remaining).Error; err != nil {
			return err
		}
		if remaining == 0 {
			return tx.WithContext(ctx).
				Model(&types.StudyPlan{}).
				Where("id = ?", unit.PlanID).
				Updates(map[string]any{"status": types.StudyPlanStatusCompleted, "updated_at": time.Now()}).Error
		}
		return nil
	})
}
