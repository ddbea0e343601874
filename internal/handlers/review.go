package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/services"
)

type ReviewHandler struct {
	log    *logger.Logger
	review services.ReviewService
}

func NewReviewHandler(log *logger.Logger, review services.ReviewService) *ReviewHandler {
	return &ReviewHandler{log: log.With("handler", "ReviewHandler"), review: review}
}

func (h *ReviewHandler) NextCard(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	card, due, err := h.review.NextDueCard(c.Request.Context(), userID, time.Now())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"card": card, "due_count": due})
}

type submitReviewRequest struct {
	CardID  uuid.UUID `json:"card_id" binding:"required"`
	Quality *int      `json:"quality" binding:"required"`
}

func (h *ReviewHandler) SubmitReview(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req submitReviewRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "card_id and quality are required")
		return
	}
	card, err := h.review.SubmitReview(c.Request.Context(), userID, req.CardID, *req.Quality, time.Now())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, card)
}

func (h *ReviewHandler) QuizForUnit(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	unitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	questions, err := h.review.QuizForUnit(c.Request.Context(), userID, unitID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"questions": questions})
}

type submitQuizRequest struct {
	Answers []services.QuizAnswer `json:"answers" binding:"required"`
}

func (h *ReviewHandler) SubmitQuiz(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	unitID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req submitQuizRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "answers is required")
		return
	}
	result, err := h.review.SubmitQuiz(c.Request.Context(), userID, unitID, req.Answers, time.Now())
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, result)
}
