package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/yungbote/studyloop-backend/internal/logger"
)

type HealthcheckHandler struct {
	log *logger.Logger
	db  *gorm.DB
}

func NewHealthcheckHandler(log *logger.Logger, db *gorm.DB) *HealthcheckHandler {
	return &HealthcheckHandler{log: log.With("handler", "HealthcheckHandler"), db: db}
}

func (h *HealthcheckHandler) Check(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		h.log.Error("healthcheck database ping failed", "error", err.Error())
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "database": "down"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
