package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/services"
)

type PlanHandler struct {
	log   *logger.Logger
	plans services.PlanService
}

func NewPlanHandler(log *logger.Logger, plans services.PlanService) *PlanHandler {
	return &PlanHandler{log: log.With("handler", "PlanHandler"), plans: plans}
}

func (h *PlanHandler) List(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	plans, err := h.plans.List(c.Request.Context(), userID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, gin.H{"plans": plans})
}

func (h *PlanHandler) Get(c *gin.Context) {
	userID, ok := callerID(c)
	if !ok {
		return
	}
	planID, ok := pathID(c, "id")
	if !ok {
		return
	}
	plan, err := h.plans.Get(c.Request.Context(), userID, planID)
	if err != nil {
		RespondError(c, err)
		return
	}
	RespondOK(c, http.StatusOK, plan)
}
