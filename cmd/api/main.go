package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"

	pkgvalidator "github.com/johnquangdev/transcript-indexer/pkg/validator"

	"github.com/johnquangdev/transcript-indexer/internal/adapter/handler"
	"github.com/johnquangdev/transcript-indexer/internal/adapter/repository"
	"github.com/johnquangdev/transcript-indexer/internal/infrastructure/cache"
	"github.com/johnquangdev/transcript-indexer/internal/infrastructure/database"
	"github.com/johnquangdev/transcript-indexer/internal/infrastructure/external/enrichment"
	"github.com/johnquangdev/transcript-indexer/internal/usecase/chunking"
	"github.com/johnquangdev/transcript-indexer/internal/usecase/embedding"
	"github.com/johnquangdev/transcript-indexer/internal/usecase/indexing"
	pkgai "github.com/johnquangdev/transcript-indexer/pkg/ai"
	"github.com/johnquangdev/transcript-indexer/pkg/config"
	"github.com/johnquangdev/transcript-indexer/pkg/jwt"
	"github.com/johnquangdev/transcript-indexer/pkg/ratelimit"
)

const rateLimitKey = "ratelimit:embedding"

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := newLogger(cfg.Server.Environment)
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Initialize Echo instance
	e := echo.New()

	// Register validator for request validation
	e.Validator = pkgvalidator.New()
	e.HTTPErrorHandler = handler.ErrorHandler(logger)

	// Configure Echo
	e.HideBanner = true
	e.HidePort = false

	// Custom logger format
	e.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "${time_rfc3339} | ${status} | ${method} ${uri} | ${latency_human}\n",
	}))

	// Recover from panics
	e.Use(middleware.Recover())

	// CORS middleware
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: cfg.Server.AllowedOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost},
		AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
	}))

	// Initialize dependencies
	log.Println("🔧 Initializing dependencies...")

	// Initialize Database
	log.Println("📦 Connecting to database...")
	db, err := database.NewPostgresDB(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.CloseDB(db)

	// Run migrations only when explicitly enabled in config.
	if cfg.Database.AutoMigrate {
		if cfg.Server.Environment == "production" {
			log.Fatalf("AutoMigrate is enabled in production. Disable DB_AUTO_MIGRATE and run cmd/migrate instead.")
		}
		if err := database.AutoMigrate(db, cfg.Database.MigrationsDir); err != nil {
			log.Fatalf("Failed to run AutoMigrate: %v", err)
		}
	} else {
		log.Println("🔄 Skipping AutoMigrate; run cmd/migrate to manage the schema")
	}

	// Initialize Redis
	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		log.Println("📦 Connecting to Redis...")
		redisClient, err = cache.NewRedisClient(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to Redis: %v", err)
		}
		defer redisClient.Close()
	} else {
		log.Println("⚠️  Redis disabled; rate limiting is per process and enrichment is not triggered")
	}

	// Initialize embedding provider
	log.Println("🤖 Initializing embedding provider...")
	var limiter pkgai.Limiter
	switch {
	case cfg.Embedding.RateLimit <= 0:
	case redisClient != nil:
		limiter = ratelimit.NewWindowLimiter(redisClient, rateLimitKey, cfg.Embedding.RateLimit, cfg.Embedding.RateWindow)
	default:
		limiter = ratelimit.NewLocalLimiter(cfg.Embedding.RateLimit, cfg.Embedding.RateWindow)
	}
	embedder, err := pkgai.NewEmbedder(&cfg.Embedding, limiter)
	if err != nil {
		log.Fatalf("Failed to initialize embedder: %v", err)
	}
	log.Printf("✅ Embedding provider: %s (%s)", cfg.Embedding.Provider, cfg.Embedding.Model)

	counter, err := chunking.NewTokenCounter(cfg.Chunking.Tokenizer, cfg.Chunking.Encoding)
	if err != nil {
		log.Fatalf("Failed to initialize tokenizer: %v", err)
	}

	var enricher indexing.Enricher = enrichment.Noop{}
	if cfg.Enrichment.Enabled && redisClient != nil {
		enricher = enrichment.NewRedisTrigger(redisClient, cfg.Enrichment.QueueKey)
	}

	// Initialize repositories
	log.Println("⚙️  Initializing repositories...")
	transcriptRepo := repository.NewTranscriptRepository(db)
	chunkRepo := repository.NewChunkRepository(db)
	jobRepo := repository.NewEmbeddingJobRepository(db)
	queueRepo := repository.NewQueueRepository(db)

	// Initialize indexing services
	log.Println("🧩 Initializing indexing pipeline...")
	pipeline := indexing.NewPipeline(transcriptRepo, chunkRepo, embedder, counter, enricher, cfg.Embedding.Model, logger.With(zap.String("component", "indexing")))
	embeddingService := embedding.NewService(transcriptRepo, jobRepo, queueRepo, pipeline, embedding.OptionsFromConfig(cfg), logger.With(zap.String("component", "embedding")))

	// Initialize JWT manager
	log.Println("🔑 Initializing JWT manager...")
	jwtManager := jwt.NewManager(cfg.JWT.AccessSecret, cfg.JWT.AccessExpiry, cfg.JWT.Issuer)

	embeddingController := handler.NewEmbeddingController(embeddingService, cfg.JWT.ServiceRole, logger.With(zap.String("component", "http")))

	// Setup router with handlers
	log.Println("🛣️  Setting up routes...")
	router := handler.NewRouter(cfg, jwtManager, embeddingController)
	router.Setup(e)

	// Start server
	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		log.Printf("🚀 Starting server on %s", addr)
		log.Printf("📝 Environment: %s", cfg.Server.Environment)
		log.Printf("🔗 Health check: http://%s/health", addr)

		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.Server.ShutdownTimeout)*time.Second)
	defer cancel()

	if err := e.Shutdown(ctx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server stopped gracefully")
}

func newLogger(environment string) (*zap.Logger, error) {
	if environment == "production" {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
