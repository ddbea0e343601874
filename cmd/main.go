package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"

	"github.com/yungbote/studyloop-backend/internal/db"
	"github.com/yungbote/studyloop-backend/internal/handlers"
	"github.com/yungbote/studyloop-backend/internal/logger"
	"github.com/yungbote/studyloop-backend/internal/repos"
	"github.com/yungbote/studyloop-backend/internal/server"
	"github.com/yungbote/studyloop-backend/internal/services"
	"github.com/yungbote/studyloop-backend/internal/sse"
	"github.com/yungbote/studyloop-backend/internal/utils"
)

func main() {
	_ = godotenv.Load()

	log, err := logger.New(os.Getenv("APP_MODE"))
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Fatal("postgres init failed", "error", err.Error())
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Fatal("migration failed", "error", err.Error())
	}
	gdb := pg.DB()

	redisClient := redis.NewClient(&redis.Options{
		Addr:     utils.GetEnv("REDIS_ADDR", "localhost:6379", log),
		Password: utils.GetEnv("REDIS_PASSWORD", "", log),
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Fatal("redis ping failed", "error", err.Error())
	}

	userRepo := repos.NewUserRepo(gdb, log)
	tokenRepo := repos.NewUserTokenRepo(gdb, log)
	itemRepo := repos.NewMediaItemRepo(gdb, log)
	runRepo := repos.NewAnalysisRunRepo(gdb, log)
	conceptRepo := repos.NewConceptRepo(gdb, log)
	flashcardRepo := repos.NewFlashcardRepo(gdb, log)
	planRepo := repos.NewStudyPlanRepo(gdb, log)
	questionRepo := repos.NewQuizQuestionRepo(gdb, log)
	chunkRepo := repos.NewMediaChunkRepo(gdb, log)
	tutorRepo := repos.NewTutorChatRepo(gdb, log)
	settingsRepo := repos.NewSettingsRepo(gdb, log)

	hub := sse.NewHub(log)
	bus := sse.NewBus(log, redisClient, hub)
	go func() {
		if err := bus.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error("event bus stopped", "error", err.Error())
		}
	}()

	llmClients, err := services.NewLLMClients(log)
	if err != nil {
		log.Fatal("llm client init failed", "error", err.Error())
	}
	openaiClient := llmClients.For("openai")

	settingsSvc := services.NewSettingsService(settingsRepo, log)
	mediaTools := services.NewMediaTools(log)
	transcriber := services.NewTranscriptionService(log, mediaTools, openaiClient)
	ocrSvc, err := services.NewOCRService(log)
	if err != nil {
		log.Fatal("ocr init failed", "error", err.Error())
	}
	defer ocrSvc.Close()

	generator := services.NewGenerationService(log, llmClients)
	retrievalSvc := services.NewRetrievalService(log, chunkRepo, openaiClient)

	analysisSvc := services.NewAnalysisService(log, services.AnalysisDeps{
		DB:          gdb,
		Runs:        runRepo,
		Items:       itemRepo,
		Concepts:    conceptRepo,
		Flashcards:  flashcardRepo,
		Plans:       planRepo,
		Questions:   questionRepo,
		Settings:    settingsSvc,
		Tools:       mediaTools,
		Transcriber: transcriber,
		OCR:         ocrSvc,
		Generator:   generator,
		Retrieval:   retrievalSvc,
		Publisher:   bus,
	})
	analysisSvc.StartWorker(ctx)

	authSvc, err := services.NewAuthService(log, gdb, userRepo, tokenRepo)
	if err != nil {
		log.Fatal("auth init failed", "error", err.Error())
	}
	materialSvc, err := services.NewMaterialService(log, gdb, itemRepo, conceptRepo, chunkRepo, runRepo, analysisSvc)
	if err != nil {
		log.Fatal("material init failed", "error", err.Error())
	}
	reviewSvc := services.NewReviewService(log, gdb, flashcardRepo, planRepo, questionRepo)
	planSvc := services.NewPlanService(log, planRepo)
	tutorSvc := services.NewTutorService(log, gdb, tutorRepo, retrievalSvc, settingsSvc, llmClients)
	userSvc := services.NewUserService(log, userRepo, itemRepo, flashcardRepo, planRepo)

	router := server.NewRouter(server.RouterConfig{
		Log:         log,
		Auth:        authSvc,
		Healthcheck: handlers.NewHealthcheckHandler(log, gdb),
		AuthHandler: handlers.NewAuthHandler(log, authSvc),
		Media:       handlers.NewMediaHandler(log, materialSvc),
		Review:      handlers.NewReviewHandler(log, reviewSvc),
		Plans:       handlers.NewPlanHandler(log, planSvc),
		Tutor:       handlers.NewTutorHandler(log, tutorSvc),
		Settings:    handlers.NewSettingsHandler(log, settingsSvc),
		Users:       handlers.NewUserHandler(log, userSvc),
		SSE:         handlers.NewSSEHandler(log, hub),
	})

	srv := &http.Server{
		Addr:              ":" + utils.GetEnv("PORT", "8080", log),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server failed", "error", err.Error())
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err.Error())
	}
}
