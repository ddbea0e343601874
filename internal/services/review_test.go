package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/types"
)

func newReviewForTest(t *testing.T, gdb *gorm.DB) ReviewService {
	t.Helper()
	log := newTestLogger(t)
	return NewReviewService(
		log,
		gdb,
		repos.NewFlashcardRepo(gdb, log),
		repos.NewStudyPlanRepo(gdb, log),
		repos.NewQuizQuestionRepo(gdb, log),
	)
}

func seedCard(t *testing.T, gdb *gorm.DB, userID uuid.UUID, front string, nextReview time.Time) *types.Flashcard {
	t.Helper()
	card := &types.Flashcard{
		ID:         uuid.New(),
		UserID:     userID,
		Front:      front,
		Back:       "definition",
		EaseFactor: DefaultEaseFactor,
		NextReview: nextReview,
	}
	require.NoError(t, gdb.Create(card).Error)
	return card
}

func TestNextDueCardPicksMostOverdue(t *testing.T) {
	gdb := newTestDB(t)
	svc := newReviewForTest(t, gdb)
	user := seedUser(t, gdb)
	now := time.Now()

	seedCard(t, gdb, user.ID, "recent", now.Add(-1*time.Hour))
	oldest := seedCard(t, gdb, user.ID, "oldest", now.Add(-72*time.Hour))
	seedCard(t, gdb, user.ID, "future", now.Add(48*time.Hour))

	card, due, err := svc.NextDueCard(context.Background(), user.ID, now)
	require.NoError(t, err)
	require.NotNil(t, card)
	require.Equal(t, oldest.ID, card.ID)
	require.EqualValues(t, 2, due, "the future card is not due")
}

func TestNextDueCardIgnoresOtherUsers(t *testing.T) {
	gdb := newTestDB(t)
	svc := newReviewForTest(t, gdb)
	owner := seedUser(t, gdb)
	other := seedUser(t, gdb)
	seedCard(t, gdb, owner.ID, "owned", time.Now().Add(-time.Hour))

	card, due, err := svc.NextDueCard(context.Background(), other.ID, time.Now())
	require.NoError(t, err)
	require.Nil(t, card)
	require.EqualValues(t, 0, due)
}

func TestSubmitReviewReschedulesCard(t *testing.T) {
	gdb := newTestDB(t)
	svc := newReviewForTest(t, gdb)
	user := seedUser(t, gdb)
	now := time.Now()

	card := seedCard(t, gdb, user.ID, "vectors", now)
	require.NoError(t, gdb.Model(card).Updates(map[string]any{
		"repetitions":   2,
		"interval_days": 6,
		"ease_factor":   2.5,
	}).Error)

	updated, err := svc.SubmitReview(context.Background(), user.ID, card.ID, 5, now)
	require.NoError(t, err)
	require.Equal(t, 3, updated.Repetitions)
	require.Equal(t, 15, updated.IntervalDays)
	require.InDelta(t, 2.6, updated.EaseFactor, 1e-9)

	var got types.Flashcard
	require.NoError(t, gdb.First(&got, "id = ?", card.ID).Error)
	require.Equal(t, 15, got.IntervalDays)
	require.NotNil(t, got.LastReview)
	require.WithinDuration(t, got.LastReview.AddDate(0, 0, got.IntervalDays), got.NextReview, time.Second,
		"next review is exactly interval days after the review")
}

func TestSubmitReviewLapseResetsInterval(t *testing.T) {
	gdb := newTestDB(t)
	svc := newReviewForTest(t, gdb)
	user := seedUser(t, gdb)
	now := time.Now()

	card := seedCard(t, gdb, user.ID, "matrices", now)
	require.NoError(t, gdb.Model(card).Updates(map[string]any{
		"repetitions":   4,
		"interval_days": 30,
		"ease_factor":   2.2,
	}).Error)

	updated, err := svc.SubmitReview(context.Background(), user.ID, card.ID, 1, now)
	require.NoError(t, err)
	require.Equal(t, 1, updated.IntervalDays)
	require.InDelta(t, 2.2, updated.EaseFactor, 1e-9, "ease is untouched on a lapse")
	require.Equal(t, 5, updated.Repetitions, "repetitions count every review, lapses included")
}

func TestSubmitReviewValidation(t *testing.T) {
	gdb := newTestDB(t)
	svc := newReviewForTest(t, gdb)
	user := seedUser(t, gdb)
	stranger := seedUser(t, gdb)
	card := seedCard(t, gdb, user.ID, "vectors", time.Now())

	_, err := svc.SubmitReview(context.Background(), user.ID, card.ID, 6, time.Now())
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.SubmitReview(context.Background(), user.ID, card.ID, -1, time.Now())
	require.ErrorIs(t, err, ErrValidation)

	_, err = svc.SubmitReview(context.Background(), stranger.ID, card.ID, 4, time.Now())
	require.ErrorIs(t, err, ErrNotFound)

	var got types.Flashcard
	require.NoError(t, gdb.First(&got, "id = ?", card.ID).Error)
	require.Equal(t, 0, got.Repetitions, "rejected submissions leave the card untouched")
}

type quizFixture struct {
	user     *types.User
	concept  *types.Concept
	card     *types.Flashcard
	unit     *types.StudyUnit
	question *types.QuizQuestion
}

// cardTxRecorder captures the transaction handles the review flow hands to
// the flashcard repo.
type cardTxRecorder struct {
	repos.FlashcardRepo
	readTx  *gorm.DB
	writeTx *gorm.DB
}

func (r *cardTxRecorder) GetOwnedByIDForUpdate(ctx context.Context, tx *gorm.DB, cardID, userID uuid.UUID) (*types.Flashcard, error) {
	r.readTx = tx
	return r.FlashcardRepo.GetOwnedByIDForUpdate(ctx, tx, cardID, userID)
}

func (r *cardTxRecorder) UpdateFields(ctx context.Context, tx *gorm.DB, cardID uuid.UUID, updates map[string]any) error {
	r.writeTx = tx
	return r.FlashcardRepo.UpdateFields(ctx, tx, cardID, updates)
}

func TestSubmitReviewReadsAndWritesInOneTransaction(t *testing.T) {
	gdb := newTestDB(t)
	log := newTestLogger(t)
	recorder := &cardTxRecorder{FlashcardRepo: repos.NewFlashcardRepo(gdb, log)}
	svc := NewReviewService(log, gdb, recorder, repos.NewStudyPlanRepo(gdb, log), repos.NewQuizQuestionRepo(gdb, log))

	user := seedUser(t, gdb)
	card := seedCard(t, gdb, user.ID, "atomic", time.Now().Add(-time.Hour))

	got, err := svc.SubmitReview(context.Background(), user.ID, card.ID, 5, time.Now())
	require.NoError(t, err)
	require.Equal(t, 1, got.Repetitions)

	require.NotNil(t, recorder.readTx, "card must be read inside an explicit transaction")
	require.NotNil(t, recorder.writeTx)
	require.Same(t, recorder.readTx, recorder.writeTx, "read and reschedule must share one transaction")
}

func seedQuiz(t *testing.T, gdb *gorm.DB) quizFixture {
	t.Helper()
	user := seedUser(t, gdb)
	item := seedMediaItem(t, gdb, user.ID, types.MediaTypeText, "/tmp/doc.txt")

	concept := &types.Concept{ID: uuid.New(), MediaItemID: item.ID, Title: "Vectors", Complexity: 1}
	require.NoError(t, gdb.Create(concept).Error)

	card := seedCard(t, gdb, user.ID, "Vectors", time.Now().Add(24*time.Hour))
	require.NoError(t, gdb.Model(card).Updates(map[string]any{
		"concept_id":    concept.ID,
		"interval_days": 6,
		"ease_factor":   2.5,
	}).Error)

	plan := &types.StudyPlan{ID: uuid.New(), UserID: user.ID, MediaItemID: item.ID, Title: "Basics", Status: types.StudyPlanStatusActive}
	require.NoError(t, gdb.Create(plan).Error)
	unit := &types.StudyUnit{ID: uuid.New(), PlanID: plan.ID, ConceptID: concept.ID, Position: 0}
	require.NoError(t, gdb.Create(unit).Error)

	question := &types.QuizQuestion{
		ID:           uuid.New(),
		ConceptID:    concept.ID,
		QuestionType: types.QuestionTypeMultipleChoice,
		QuestionData: mustJSON(map[string]any{
			"question":      "What is a vector?",
			"options":       []string{"a quantity with direction", "a spreadsheet"},
			"correct_index": 0,
			"explanation":   "definition",
		}),
	}
	require.NoError(t, gdb.Create(question).Error)

	card.ConceptID = &concept.ID
	return quizFixture{user: user, concept: concept, card: card, unit: unit, question: question}
}

func TestQuizForUnitHidesCorrectIndex(t *testing.T) {
	gdb := newTestDB(t)
	svc := newReviewForTest(t, gdb)
	fx := seedQuiz(t, gdb)

	views, err := svc.QuizForUnit(context.Background(), fx.user.ID, fx.unit.ID)
	require.NoError(t, err)
	require.Len(t, views, 1)
	require.Equal(t, "What is a vector?", views[0].Question)
	require.Len(t, views[0].Options, 2)
}

func TestQuizForUnitRejectsForeignUser(t *testing.T) {
	gdb := newTestDB(t)
	svc := newReviewForTest(t, gdb)
	fx := seedQuiz(t, gdb)
	stranger := seedUser(t, gdb)

	_, err := svc.QuizForUnit(context.Background(), stranger.ID, fx.unit.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubmitQuizPassCompletesUnitAndPlan(t *testing.T) {
	gdb := newTestDB(t)
	svc := newReviewForTest(t, gdb)
	fx := seedQuiz(t, gdb)
	now := time.Now()

	result, err := svc.SubmitQuiz(context.Background(), fx.user.ID, fx.unit.ID,
		[]QuizAnswer{{QuestionID: fx.question.ID, SelectedIndex: 0}}, now)
	require.NoError(t, err)
	require.True(t, result.Passed)
	require.True(t, result.UnitCompleted)
	require.InDelta(t, 1.0, result.Score, 1e-9)

	var unit types.StudyUnit
	require.NoError(t, gdb.First(&unit, "id = ?", fx.unit.ID).Error)
	require.True(t, unit.IsCompleted)

	var plan types.StudyPlan
	require.NoError(t, gdb.First(&plan, "id = ?", unit.PlanID).Error)
	require.Equal(t, types.StudyPlanStatusCompleted, plan.Status, "last open unit completes the plan")

	var card types.Flashcard
	require.NoError(t, gdb.First(&card, "id = ?", fx.card.ID).Error)
	require.Equal(t, 6, card.IntervalDays, "no penalty on a clean pass")
}

func TestSubmitQuizWrongAnswerAppliesPenalty(t *testing.T) {
	gdb := newTestDB(t)
	svc := newReviewForTest(t, gdb)
	fx := seedQuiz(t, gdb)
	now := time.Now()

	result, err := svc.SubmitQuiz(context.Background(), fx.user.ID, fx.unit.ID,
		[]QuizAnswer{{QuestionID: fx.question.ID, SelectedIndex: 1}}, now)
	require.NoError(t, err)
	require.False(t, result.Passed)
	require.False(t, result.UnitCompleted)
	require.False(t, result.Questions[0].Correct)
	require.Equal(t, 0, result.Questions[0].CorrectIndex)

	var card types.Flashcard
	require.NoError(t, gdb.First(&card, "id = ?", fx.card.ID).Error)
	require.Equal(t, 1, card.IntervalDays)
	require.InDelta(t, 2.3, card.EaseFactor, 1e-9)
	require.WithinDuration(t, now, card.NextReview, time.Second, "penalized card is due again immediately")

	var unit types.StudyUnit
	require.NoError(t, gdb.First(&unit, "id = ?", fx.unit.ID).Error)
	require.False(t, unit.IsCompleted)
}

func TestSubmitQuizRejectsUnknownQuestion(t *testing.T) {
	gdb := newTestDB(t)
	svc := newReviewForTest(t, gdb)
	fx := seedQuiz(t, gdb)

	_, err := svc.SubmitQuiz(context.Background(), fx.user.ID, fx.unit.ID,
		[]QuizAnswer{{QuestionID: uuid.New(), SelectedIndex: 0}}, time.Now())
	require.ErrorIs(t, err, ErrValidation)
}
