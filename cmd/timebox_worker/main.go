package main

import (
	"fmt"
	"os"

	"github.com/lexvoice/casecall-backend/internal/clients/openai"
	"github.com/lexvoice/casecall-backend/internal/clients/redis"
	"github.com/lexvoice/casecall-backend/internal/contextseal"
	"github.com/lexvoice/casecall-backend/internal/db"
	"github.com/lexvoice/casecall-backend/internal/platform/logger"
	"github.com/lexvoice/casecall-backend/internal/repos"
	"github.com/lexvoice/casecall-backend/internal/services"
	"github.com/lexvoice/casecall-backend/internal/timebox"
	"github.com/lexvoice/casecall-backend/internal/timebox/worker"
)

// The timebox worker hosts the auto-termination workflow. It shares the
// session state service with the API so a fired timebox terminates sessions
// through the same lifecycle rules.
func main() {
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

	postgresService, err := db.NewPostgresService(log)
	if err != nil {
		log.Error("Postgres init failed", "error", err)
		os.Exit(1)
	}
	thePG := postgresService.DB()

	sessionRepo := repos.NewCallSessionRepo(thePG, log)
	turnRepo := repos.NewCallTurnRepo(thePG, log)
	auditRepo := repos.NewCallAuditRepo(thePG, log)
	summaryRepo := repos.NewCallSummaryRepo(thePG, log)
	caseRepo := repos.NewCaseReaderRepo(thePG, log)

	temporalClient, err := timebox.NewClient(log)
	if err != nil {
		log.Error("Could not init Temporal client", "error", err)
		os.Exit(1)
	}
	if temporalClient == nil {
		log.Error("TEMPORAL_ADDRESS not set; the timebox worker needs a Temporal server")
		os.Exit(1)
	}
	scheduler := timebox.NewScheduler(log, temporalClient)

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

	sealer := contextseal.NewSealer(caseRepo, log)
	timeline := services.NewLogTimeline(log)
	summaryService := services.NewSummaryService(log, openaiClient, turnRepo, summaryRepo, timeline)
	sessionService := services.NewSessionStateService(log, sessionRepo, turnRepo, auditRepo, caseRepo, sealer, scheduler, summaryService, sessionCache)

	runner, err := worker.NewRunner(log, temporalClient, sessionService)
	if err != nil {
		log.Error("Could not init timebox worker", "error", err)
		os.Exit(1)
	}
	if err := runner.Run(); err != nil {
		log.Error("Timebox worker stopped", "error", err)
		os.Exit(1)
	}
}
