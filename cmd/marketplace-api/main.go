package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/elastic/go-elasticsearch/v8"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"talentbridge/marketplace-backend/internal/assessment"
	"talentbridge/marketplace-backend/internal/assessment/gemini"
	"talentbridge/marketplace-backend/internal/audit"
	"talentbridge/marketplace-backend/internal/auth"
	"talentbridge/marketplace-backend/internal/config"
	"talentbridge/marketplace-backend/internal/disputes"
	"talentbridge/marketplace-backend/internal/notifications"
	"talentbridge/marketplace-backend/internal/notifications/websocket"
	"talentbridge/marketplace-backend/internal/projects"
	"talentbridge/marketplace-backend/internal/search"
	"talentbridge/marketplace-backend/pkg/storage"
	"talentbridge/marketplace-backend/pkg/workflows"
)

// loggingMediator stands in for the external mediation desk: escalations are
// logged and picked up from the dispute queue by operations.
type loggingMediator struct {
	logger *zap.Logger
}

func (m *loggingMediator) Escalate(ctx context.Context, dispute *disputes.Dispute) error {
	m.logger.Info("dispute handed to mediation",
		zap.String("dispute_id", dispute.ID.String()),
		zap.String("project_id", dispute.ProjectID.String()))
	return nil
}

func main() {
	// .env is optional in deployed environments
	_ = godotenv.Load()

	// Initialize logger
	logger, _ := zap.NewProduction()
	if os.Getenv("LOG_LEVEL") == "debug" {
		logger, _ = zap.NewDevelopment()
	}
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.json")
	if err != nil {
		logger.Fatal("Failed to load configuration", zap.Error(err))
	}
	if cfg.Security.JWTSecret == "" {
		logger.Fatal("JWT_SECRET is required")
	}
	if cfg.Assessment.GeminiAPIKey == "" {
		logger.Fatal("GEMINI_API_KEY is required")
	}

	ctx := context.Background()

	// Connect to database
	db, err := gorm.Open(postgres.Open(cfg.Database.GetDatabaseURL()), &gorm.Config{})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}

	// Repositories
	projectRepo, err := projects.NewProjectRepository(db)
	if err != nil {
		logger.Fatal("Failed to initialize project repository", zap.Error(err))
	}
	historyRepo, err := projects.NewStatusHistoryRepository(db)
	if err != nil {
		logger.Fatal("Failed to initialize status history repository", zap.Error(err))
	}
	resultRepo, err := assessment.NewRepository(db)
	if err != nil {
		logger.Fatal("Failed to initialize assessment repository", zap.Error(err))
	}
	disputeRepo, err := disputes.NewRepository(db)
	if err != nil {
		logger.Fatal("Failed to initialize dispute repository", zap.Error(err))
	}
	auditService, err := audit.NewService(db, logger)
	if err != nil {
		logger.Fatal("Failed to initialize audit log", zap.Error(err))
	}

	// Assessment orchestration
	generator, err := gemini.NewGenerator(ctx, cfg.Assessment.GeminiAPIKey, cfg.Assessment.Model)
	if err != nil {
		logger.Fatal("Failed to initialize assessment client", zap.Error(err))
	}
	scorer := gemini.NewScorer(generator, logger)
	cache := assessment.NewCache(assessment.DefaultCacheTTL)
	breaker := assessment.NewBreaker()
	orchestrator := assessment.NewOrchestrator(scorer, cache, breaker, resultRepo, logger)

	// AWS-backed collaborators
	var emailChannel *notifications.EmailChannel
	var smsChannel *notifications.SMSChannel
	var fileStore *storage.FileStore
	if cfg.AWS.EvidenceBucket != "" || cfg.AWS.EmailSender != "" {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
		if err != nil {
			logger.Fatal("Failed to load AWS configuration", zap.Error(err))
		}
		if cfg.AWS.EmailSender != "" {
			emailChannel = notifications.NewEmailChannel(sesv2.NewFromConfig(awsCfg), cfg.AWS.EmailSender)
			smsChannel = notifications.NewSMSChannel(sns.NewFromConfig(awsCfg))
		}
		if cfg.AWS.EvidenceBucket != "" {
			fileStore = storage.NewFileStore(s3.NewFromConfig(awsCfg), cfg.AWS.EvidenceBucket)
		}
	}

	// Accounts and notifications
	authService, err := auth.NewService(db, cfg.Security.JWTSecret)
	if err != nil {
		logger.Fatal("Failed to initialize auth service", zap.Error(err))
	}
	wsManager := websocket.NewManager(logger)
	notifier, err := notifications.NewService(db, wsManager, emailChannel, smsChannel, authService, logger)
	if err != nil {
		logger.Fatal("Failed to initialize notification service", zap.Error(err))
	}

	// Browse index
	var searchIndex projects.SearchIndex
	var indexer *search.Indexer
	if len(cfg.Elasticsearch.Addresses) > 0 {
		esClient, err := elasticsearch.NewClient(elasticsearch.Config{
			Addresses: cfg.Elasticsearch.Addresses,
			Username:  cfg.Elasticsearch.Username,
			Password:  cfg.Elasticsearch.Password,
		})
		if err != nil {
			logger.Fatal("Failed to initialize elasticsearch client", zap.Error(err))
		}
		indexer = search.NewIndexer(esClient, logger)
		searchIndex = indexer
	}

	// Lifecycle and disputes
	projectService := projects.NewService(projectRepo, historyRepo, orchestrator, notifier, auditService, searchIndex, logger)

	mediator := &loggingMediator{logger: logger}
	var evidenceFiles disputes.FileStore
	if fileStore != nil {
		evidenceFiles = fileStore
	}
	disputeService := disputes.NewService(disputeRepo, projectService, orchestrator, resultRepo,
		evidenceFiles, notifier, auditService, mediator, logger)

	sweeper := disputes.NewSweeper(disputeRepo, mediator, auditService, logger)
	if err := sweeper.Start(); err != nil {
		logger.Fatal("Failed to start dispute sweeper", zap.Error(err))
	}

	// Handlers
	authHandler := auth.NewHandler(authService)
	projectHandler := projects.NewHandler(projectService, logger)
	disputeHandler := disputes.NewHandler(disputeService, logger)

	// Setup Router
	router := gin.Default()

	// CORS Middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Register Routes
	public := router.Group("/api/v1")
	{
		authHandler.RegisterRoutes(public)
	}

	api := router.Group("/api/v1")
	api.Use(auth.Middleware(authService))
	{
		authHandler.RegisterProtectedRoutes(api)
		projectHandler.RegisterRoutes(api)
		disputeHandler.RegisterRoutes(api)

		if indexer != nil {
			api.GET("/projects/search", func(c *gin.Context) {
				docs, err := indexer.Search(c.Request.Context(), c.Query("q"), 20)
				if err != nil {
					logger.Warn("search unavailable, falling back to listing", zap.Error(err))
					available := projects.ProjectFilter{Limit: 20}
					st := workflows.StatusAvailable
					available.Status = &st
					listed, lerr := projectService.ListProjects(c.Request.Context(), available)
					if lerr != nil {
						c.JSON(http.StatusInternalServerError, gin.H{"error": "search unavailable"})
						return
					}
					c.JSON(http.StatusOK, gin.H{"projects": listed, "degraded": true})
					return
				}
				c.JSON(http.StatusOK, gin.H{"projects": docs})
			})
		}

		api.GET("/notifications", func(c *gin.Context) {
			userID := c.MustGet(auth.ContextUserID).(uuid.UUID)
			items, err := notifier.ListForUser(c.Request.Context(), userID, 50, 0)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"notifications": items})
		})

		api.GET("/ws", func(c *gin.Context) {
			userID := c.MustGet(auth.ContextUserID).(uuid.UUID)
			if _, err := wsManager.HandleConnection(c.Writer, c.Request, userID.String()); err != nil {
				logger.Warn("websocket upgrade failed", zap.Error(err))
			}
		})
	}

	// Health Check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
		})
	})

	// Start Server
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen failed", zap.Error(err))
		}
	}()

	logger.Info("Server started", zap.Int("port", cfg.Server.Port))

	// Graceful Shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	// Drain in-flight evaluations before tearing down shared state.
	if err := orchestrator.Close(shutdownCtx); err != nil {
		logger.Warn("orchestrator drain incomplete", zap.Error(err))
	}
	sweeper.Stop()
	cache.Stop()
	notifier.Close()

	logger.Info("Server exiting")
}
