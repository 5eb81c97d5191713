package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/johnquangdev/transcript-indexer/internal/infrastructure/http/middleware"
	"github.com/johnquangdev/transcript-indexer/pkg/config"
	"github.com/johnquangdev/transcript-indexer/pkg/jwt"
)

// Router holds all handlers
type Router struct {
	cfg                 *config.Config
	jwtManager          *jwt.Manager
	embeddingController *EmbeddingController
}

// NewRouter creates a new router with all handlers
func NewRouter(cfg *config.Config, jwtManager *jwt.Manager, embeddingController *EmbeddingController) *Router {
	return &Router{
		cfg:                 cfg,
		jwtManager:          jwtManager,
		embeddingController: embeddingController,
	}
}

// Setup configures all application routes
func (rt *Router) Setup(e *echo.Echo) {
	// Health check endpoint
	e.GET("/health", rt.healthCheck)

	// API v1 group
	v1 := e.Group("/v1")

	rt.setupEmbeddingRoutes(v1)
}

// setupEmbeddingRoutes configures indexing, queue and recovery routes
func (rt *Router) setupEmbeddingRoutes(g *echo.Group) {
	embeddings := g.Group("/embeddings", middleware.EchoAuth(rt.jwtManager))

	embeddings.POST("/jobs", rt.embeddingController.StartJob)
	embeddings.GET("/jobs/:id", rt.embeddingController.GetJob)
	embeddings.POST("/queue/process", rt.embeddingController.ProcessQueue)
	embeddings.POST("/dead-letter/retry", rt.embeddingController.RetryDeadLetter)
}

// healthCheck returns health status
func (rt *Router) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"environment": rt.cfg.Server.Environment,
	})
}
