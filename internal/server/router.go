package server

import (
	"strings"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/lexvoice/casecall-backend/internal/handlers"
	"github.com/lexvoice/casecall-backend/internal/middleware"
	"github.com/lexvoice/casecall-backend/internal/utils"
)

type RouterConfig struct {
	CallHandler    *handlers.CallHandler
	AuthMiddleware *middleware.AuthMiddleware
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	router := gin.Default()

	// Cors
	origins := utils.GetEnv("CORS_ALLOW_ORIGINS", "http://localhost:3000", nil)
	router.Use(cors.New(cors.Config{
		AllowOrigins:     strings.Split(origins, ","),
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "PATCH", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "X-Requested-With"},
		AllowCredentials: true,
	}))

	// ===============
	// || Public    ||
	// ===============
	router.GET("/healthcheck", handlers.HealthCheck)

	// ===============
	// || Protected ||
	// ===============
	protected := router.Group("/")
	protected.Use(cfg.AuthMiddleware.RequireAuth())
	// Calls
	protected.POST("/calls", cfg.CallHandler.CreateCall)
	protected.GET("/calls/:id", cfg.CallHandler.GetCall)
	protected.POST("/calls/:id/prepare", cfg.CallHandler.PrepareCall)
	protected.POST("/calls/:id/start", cfg.CallHandler.StartCall)
	protected.POST("/calls/:id/turn", cfg.CallHandler.PostTurn)
	protected.POST("/calls/:id/interrupt", cfg.CallHandler.Interrupt)
	protected.POST("/calls/:id/heartbeat", cfg.CallHandler.Heartbeat)
	protected.POST("/calls/:id/end", cfg.CallHandler.EndCall)
	protected.POST("/calls/:id/terminate", cfg.CallHandler.TerminateCall)
	protected.GET("/calls/:id/transcript", cfg.CallHandler.GetTranscript)
	protected.GET("/calls/:id/audit", cfg.CallHandler.GetAuditLog)
	protected.GET("/calls/:id/summary", cfg.CallHandler.GetSummary)

	return router
}
