package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lexvoice/casecall-backend/internal/clients/gcp"
	"github.com/lexvoice/casecall-backend/internal/clients/openai"
	"github.com/lexvoice/casecall-backend/internal/clients/redis"
	"github.com/lexvoice/casecall-backend/internal/contextseal"
	"github.com/lexvoice/casecall-backend/internal/db"
	"github.com/lexvoice/casecall-backend/internal/guardrails"
	"github.com/lexvoice/casecall-backend/internal/handlers"
	"github.com/lexvoice/casecall-backend/internal/middleware"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/repos"
	"github.com/lexvoice/casecall-backend/internal/server"
	"github.com/lexvoice/casecall-backend/internal/services"
	"github.com/lexvoice/casecall-backend/internal/timebox"
	"github.com/lexvoice/casecall-backend/internal/utils"
)

func main() {
	// Logger
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		fmt.Printf("Failed to init logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	// Env
	log.Info("Loading environment variables from main...")
	jwtSecretKey := utils.GetEnv("JWT_SECRET_KEY", "defaultsecret", log)

	// Postgres
	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	if err = postgresService.AutoMigrateAll(); err != nil {
		log.Error("Postgres auto migration failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	// Repos
	log.Info("Setting up Repos from main...")
	sessionRepo := repos.NewCallSessionRepo(thePG, log)
	turnRepo := repos.NewCallTurnRepo(thePG, log)
	auditRepo := repos.NewCallAuditRepo(thePG, log)
	summaryRepo := repos.NewCallSummaryRepo(thePG, log)
	caseRepo := repos.NewCaseReaderRepo(thePG, log)

	// Clients
	log.Info("Setting up clients from main...")
	openaiClient, err := openai.NewClient(log)
	if err != nil {
		log.Error("Could not init OpenAI client", "error", err)
		os.Exit(1)
	}
	sessionCache, err := redis.NewActiveSessionCache(log)
	if err != nil {
		log.Warn("Active-session cache unavailable, using database only", "error", err)
		sessionCache = nil
	}
	bucketService, err := gcp.NewBucketService(log)
	if err != nil {
		log.Warn("Transcript archive bucket unavailable, archival disabled", "error", err)
		bucketService = nil
	}
	temporalClient, err := timebox.NewClient(log)
	if err != nil {
		log.Error("Could not init Temporal client", "error", err)
		os.Exit(1)
	}
	scheduler := timebox.NewScheduler(log, temporalClient)

	// Services
	log.Info("Setting up Services from main...")
	sttService, err := services.NewSpeechProviderService(log)
	if err != nil {
		log.Error("Could not init speech provider", "error", err)
		os.Exit(1)
	}
	ttsService, err := services.NewTTSProviderService(log, openaiClient)
	if err != nil {
		log.Error("Could not init TTS provider", "error", err)
		os.Exit(1)
	}
	llmService, err := services.NewLLMProviderService(log, openaiClient)
	if err != nil {
		log.Error("Could not init LLM provider", "error", err)
		os.Exit(1)
	}
	sealer := contextseal.NewSealer(caseRepo, log)
	engine := guardrails.NewEngine()
	timeline := services.NewLogTimeline(log)
	summaryService := services.NewSummaryService(log, openaiClient, turnRepo, summaryRepo, timeline)
	sessionService := services.NewSessionStateService(log, sessionRepo, turnRepo, auditRepo, caseRepo, sealer, scheduler, summaryService, sessionCache)
	orchestrator := services.NewTurnOrchestrator(log, sessionService, turnRepo, auditRepo, engine, sttService, llmService, ttsService)

	if bucketService != nil {
		archiver := services.NewTranscriptArchiver(log, turnRepo, bucketService)
		go archiver.Run(context.Background())
	}

	// Handlers
	log.Info("Setting up handlers from main...")
	callHandler := handlers.NewCallHandler(log, sessionService, orchestrator, summaryService, turnRepo, auditRepo)

	// Middleware
	log.Info("Setting up middleware from main...")
	authMiddleware := middleware.NewAuthMiddleware(log, jwtSecretKey)

	// Router
	log.Info("Setting up router from main...")
	router := server.NewRouter(server.RouterConfig{
		CallHandler:    callHandler,
		AuthMiddleware: authMiddleware,
	})

	port := utils.GetEnv("PORT", "8080", log)
	fmt.Printf("Server listening on :%s\n", port)
	if err := router.Run(":" + port); err != nil {
		log.Warn("Server failed", "error", err)
	}
}
