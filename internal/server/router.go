package server

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyloop-backend/internal/handlers"
	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/middleware"
	"github.com/yungbote/studyloop-backend/internal/services"
	"github.com/yungbote/studyloop-backend/internal/utils"
)

type RouterConfig struct {
	Log  *logger.Logger
	Auth services.AuthService

	Healthcheck *handlers.HealthcheckHandler
	AuthHandler *handlers.AuthHandler
	Media       *handlers.MediaHandler
	Review      *handlers.ReviewHandler
	Plans       *handlers.PlanHandler
	Tutor       *handlers.TutorHandler
	Settings    *handlers.SettingsHandler
	Users       *handlers.UserHandler
	SSE         *handlers.SSEHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	if utils.GetEnv("APP_MODE", "development", cfg.Log) == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())

	origins := strings.Split(utils.GetEnv("CORS_ORIGINS", "http://localhost:3000", cfg.Log), ",")
	router.Use(cors.New(cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	router.GET("/healthz", cfg.Healthcheck.Check)

	api := router.Group("/api/v1")

	auth := api.Group("/auth")
	{
		auth.POST("/register", cfg.AuthHandler.Register)
		auth.POST("/login", cfg.AuthHandler.Login)
		auth.POST("/refresh", cfg.AuthHandler.Refresh)
	}

	protected := api.Group("")
	protected.Use(middleware.RequireAuth(cfg.Log, cfg.Auth))
	{
		protected.POST("/auth/logout", cfg.AuthHandler.Logout)

		protected.GET("/me", cfg.Users.Profile)
		protected.GET("/dashboard", cfg.Users.Dashboard)

		media := protected.Group("/media")
		{
			media.POST("", cfg.Media.Upload)
			media.GET("", cfg.Media.List)
			media.GET("/:id", cfg.Media.Get)
			media.POST("/delete", cfg.Media.Delete)
			media.POST("/:id/reanalyze", cfg.Media.Reanalyze)
		}

		review := protected.Group("/review")
		{
			review.GET("/next", cfg.Review.NextCard)
			review.POST("", cfg.Review.SubmitReview)
		}

		plans := protected.Group("/plans")
		{
			plans.GET("", cfg.Plans.List)
			plans.GET("/:id", cfg.Plans.Get)
		}

		units := protected.Group("/units")
		{
			units.GET("/:id/quiz", cfg.Review.QuizForUnit)
			units.POST("/:id/quiz", cfg.Review.SubmitQuiz)
		}

		tutor := protected.Group("/tutor")
		{
			tutor.GET("/session", cfg.Tutor.GetSession)
			tutor.GET("/sessions/:id/messages", cfg.Tutor.GetMessages)
			tutor.POST("/sessions/:id/messages", cfg.Tutor.Ask)
		}

		settings := protected.Group("/settings")
		{
			settings.GET("", cfg.Settings.Get)
			settings.PUT("", cfg.Settings.Update)
		}

		protected.GET("/events", cfg.SSE.Stream)
	}

	return router
}
