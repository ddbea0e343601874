package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/requestdata"
	"github.com/yungbote/studyloop-backend/internal/services"
)

type MediaHandler struct {
	log       *logger.Logger
	materials services.MaterialService
}

func NewMediaHandler(log *logger.Logger, materials services.MaterialService) *MediaHandler {
	return &MediaHandler{log: log.With("handler", "MediaHandler"), materials: materials}
}

func callerID(c *gin.Context) (uuid.UUID, bool) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || rd.UserID == uuid.Nil {
		RespondError(c, services.ErrInvalidToken)
		return uuid.Nil, false
	}
	return rd.UserID, true
}

func pathID(c *gin.Context, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		RespondBadRequest(c, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}

func (h *MediaHandler) Upload(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	file, err := c.FormFile("file")
	if err != nil {
		RespondBadRequest(c, "file is required")
		return
	}
	item, err := h.materials.Upload(c.Request.Context(), userID, c.PostForm("title"), file)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusCreated, item)
}

func (h *MediaHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	items, err := h.materials.List(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"items": items})
}

func (h *MediaHandler) Get(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	detail, err := h.materials.Get(c.Request.Context(), userID, itemID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, detail)
}

type deleteMediaRequest struct {
	IDs []uuid.UUID `json:"ids" binding:"required"`
}

func (h *MediaHandler) Delete(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	var req deleteMediaRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.IDs) == 0 {
		RespondBadRequest(c, "ids is required")
		return
	}
	if err := h.materials.Delete(c.Request.Context(), userID, req.IDs); err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"deleted": len(req.IDs)})
}

func (h *MediaHandler) Reanalyze(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	itemID, ok := pathID(c, "id")
	if !ok {
		return
	}
	run, err := h.materials.Reanalyze(c.Request.Context(), userID, itemID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusAccepted, run)
}
