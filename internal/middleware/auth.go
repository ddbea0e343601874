package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyloop-backend/internal/handlers"
	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/requestdata"
	"github.com/yungbote/studyloop-backend/internal/services"
)

// RequireAuth validates the bearer token and stashes the caller identity in
// the request context for downstream handlers.
func RequireAuth(log *logger.Logger, auth services.AuthService) gin.HandlerFunc {
	log = log.With("middleware", "RequireAuth")
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
		if token == "" || token == header {
			// SSE clients cannot set headers; accept the token as a query
			// parameter on those connections.
			token = strings.TrimSpace(c.Query("token"))
		}
		if token == "" {
			handlers.RespondError(c, services.ErrInvalidToken)
			return
		}

		userID, err := auth.ValidateAccessToken(c.Request.Context(), token)
		if err != nil {
			handlers.RespondError(c, services.ErrInvalidToken)
			return
		}

		rd := &requestdata.RequestData{TokenString: token, UserID: userID}
		c.Request = c.Request.WithContext(requestdata.WithRequestData(c.Request.Context(), rd))
		c.Next()
	}
}
