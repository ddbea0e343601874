package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/services"
)

type TutorHandler struct {
	log   *logger.Logger
	tutor services.TutorService
}

func NewTutorHandler(log *logger.Logger, tutor services.TutorService) *TutorHandler {
	return &TutorHandler{log: log.With("handler", "TutorHandler"), tutor: tutor}
}

func (h *TutorHandler) GetSession(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	session, err := h.tutor.GetOrCreateSession(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, session)
}

func (h *TutorHandler) GetMessages(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	messages, err := h.tutor.GetMessages(c.Request.Context(), userID, sessionID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"messages": messages})
}

type askRequest struct {
	Question string `json:"question" binding:"required"`
}

func (h *TutorHandler) Ask(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	sessionID, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req askRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondBadRequest(c, "question is required")
		return
	}
	answer, err := h.tutor.Ask(c.Request.Context(), userID, sessionID, req.Question)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, answer)
}
