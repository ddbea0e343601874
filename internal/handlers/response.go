package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyloop-backend/internal/services"
)

type errorBody struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

func RespondOK(c *gin.Context, status int, data any) {
	c.JSON(status, data)
}

// RespondError maps service sentinel errors onto HTTP statuses. Anything
// unrecognized is a 500 with a generic message so internals never leak.
func RespondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	code := "internal_error"
	message := "something went wrong"

	switch {
	case errors.Is(err, services.ErrNotFound):
		status, code, message = http.StatusNotFound, "not_found", err.Error()
	case errors.Is(err, services.ErrValidation):
		status, code, message = http.StatusBadRequest, "validation_failed", err.Error()
	case errors.Is(err, services.ErrAnalysisActive):
		status, code, message = http.StatusConflict, "analysis_active", err.Error()
	case errors.Is(err, services.ErrEmailTaken):
		status, code, message = http.StatusConflict, "email_taken", err.Error()
	case errors.Is(err, services.ErrInvalidCredentials):
		status, code, message = http.StatusUnauthorized, "invalid_credentials", err.Error()
	case errors.Is(err, services.ErrInvalidToken):
		status, code, message = http.StatusUnauthorized, "invalid_token", err.Error()
	}

	c.AbortWithStatusJSON(status, errorEnvelope{Error: errorBody{Message: message, Code: code}})
}

func RespondBadRequest(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, errorEnvelope{Error: errorBody{Message: message, Code: "bad_request"}})
}
