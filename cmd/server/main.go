package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/quocanhngo/edumsg/internal/config"
	"github.com/quocanhngo/edumsg/internal/handler"
	"github.com/quocanhngo/edumsg/internal/metrics"
	"github.com/quocanhngo/edumsg/internal/middleware"
	"github.com/quocanhngo/edumsg/internal/model"
	"github.com/quocanhngo/edumsg/internal/repository"
	"github.com/quocanhngo/edumsg/internal/service"
	"github.com/quocanhngo/edumsg/internal/ws"
	"github.com/quocanhngo/edumsg/migrations"
	"github.com/quocanhngo/edumsg/pkg/auth"
	"github.com/quocanhngo/edumsg/pkg/notification"
	"github.com/quocanhngo/edumsg/pkg/storage"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// @title           EduMsg API
// @version         1.0
// @description     Internal messaging of the school suite: conversations, read tracking, notifications.

// @BasePath  /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	rollback := flag.Bool("rollback", false, "revert the last migration and exit")
	flag.Parse()

	// ==================== Load Config ====================
	cfg := config.Load()
	log.Printf("🚀 Starting EduMsg API Server [env=%s]", cfg.App.Env)

	slog.SetDefault(newLogger(cfg))

	if *rollback {
		if err := migrations.Rollback(cfg.DB.URL()); err != nil {
			log.Fatalf("❌ %v", err)
		}
		return
	}

	// ==================== Database (PostgreSQL) ====================
	gormLogger := logger.Default.LogMode(logger.Info)
	if cfg.App.Env == "production" {
		gormLogger = logger.Default.LogMode(logger.Warn)
	}

	db, err := gorm.Open(postgres.Open(cfg.DB.DSN()), &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		log.Fatalf("❌ Failed to connect to database: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Fatalf("❌ Failed to get database handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(cfg.DB.MaxConns)
	sqlDB.SetMaxIdleConns(cfg.DB.MaxConns / 2)
	log.Println("✅ Connected to PostgreSQL")

	// ==================== Run Migrations ====================
	if err := migrations.Run(cfg.DB.URL()); err != nil {
		log.Printf("⚠️  Migration warning: %v", err)
		log.Println("📦 Falling back to GORM AutoMigrate...")
		// Fallback to AutoMigrate if migration files fail
		if err := db.AutoMigrate(
			&model.Conversation{},
			&model.Message{},
			&model.Participant{},
			&model.Attachment{},
			&model.Notification{},
			&model.UserDevice{},
		); err != nil {
			log.Fatalf("❌ Failed to migrate database: %v", err)
		}
	}
	log.Println("✅ Database migrated successfully")

	// ==================== Redis ====================
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr(),
		Password: cfg.Redis.Password,
		DB:       0,
	})

	ctx := context.Background()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		log.Printf("⚠️  Redis not available: %v (single instance mode, no token revocation)", err)
		_ = rdb.Close()
		rdb = nil
	} else {
		log.Println("✅ Connected to Redis")
	}

	// ==================== MinIO Storage ====================
	var (
		store  service.AttachmentStore
		signer handler.URLSigner
	)
	minioStorage, err := storage.NewMinIO(ctx, storage.Config{
		Endpoint:  cfg.MinIO.Endpoint,
		AccessKey: cfg.MinIO.AccessKey,
		SecretKey: cfg.MinIO.SecretKey,
		Bucket:    cfg.MinIO.Bucket,
		UseSSL:    cfg.MinIO.UseSSL,
	})
	if err != nil {
		log.Printf("⚠️  MinIO not available: %v (attachments disabled)", err)
	} else {
		store, signer = minioStorage, minioStorage
		log.Println("✅ Connected to MinIO")
	}

	// ==================== Push (FCM) ====================
	var pusher service.Pusher
	if fcm := notification.NewFCM(ctx, cfg.Firebase.CredentialsFile); fcm != nil {
		pusher = fcm
	}

	// ==================== Initialize Layers ====================
	// JWT Manager
	jwtManager := auth.NewJWTManager(cfg.JWT.Secret, 24*time.Hour)

	// Repositories
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)
	notifRepo := repository.NewNotificationRepository(db)
	deviceRepo := repository.NewDeviceRepository(db)

	// Services
	appLogger := slog.Default()
	tracker := service.NewReadTracker(db, convRepo, msgRepo, notifRepo, cfg.Read, appLogger)
	messageService := service.NewMessageService(db, convRepo, msgRepo, notifRepo, tracker, store, cfg.Read, appLogger)
	convService := service.NewConversationService(db, convRepo, msgRepo, notifRepo, store, appLogger)
	notifService := service.NewNotificationService(convRepo, msgRepo, notifRepo, deviceRepo, pusher, appLogger)

	// WebSocket Hub (with Redis Pub/Sub for horizontal scaling)
	hub := ws.NewHub(rdb)

	// Background loops
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go hub.Run(bgCtx)
	go tracker.RunReconciler(bgCtx, cfg.Read.ReconcileInterval)

	// Handlers
	notifier := handler.NewNotifier(hub, convService, notifService)
	convHandler := handler.NewConversationHandler(convService)
	chatHandler := handler.NewChatHandler(messageService, tracker, notifService, notifier)
	notifHandler := handler.NewNotificationHandler(notifService)
	wsHandler := handler.NewWSHandler(hub, handler.NewUpgrader(cfg.CORS.Origins), tracker, notifier)

	// ==================== Gin Router ====================
	if cfg.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.Default()

	// Swagger configuration
	// Serve swagger.json at /docs/swagger.json to avoid conflict with /swagger/* wildcard
	router.StaticFile("/docs/swagger.json", "./docs/swagger.json")
	url := ginSwagger.URL("/docs/swagger.json")
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, url))

	// Global middleware
	router.Use(middleware.CORSMiddleware(cfg.CORS.Origins))
	router.Use(metrics.Middleware())

	// Health check
	router.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbStatus := "ok"
		if err := sqlDB.PingContext(c.Request.Context()); err != nil {
			status, dbStatus = http.StatusServiceUnavailable, err.Error()
		}
		c.JSON(status, gin.H{
			"status":  dbStatus,
			"service": "edumsg-api",
			"time":    time.Now().Format(time.RFC3339),
			"redis":   rdb != nil,
			"storage": store != nil,
			"push":    pusher != nil,
		})
	})
	router.GET("/metrics", metrics.Handler())

	authMiddleware := middleware.AuthMiddleware(jwtManager, rdb)

	// ==================== API Routes ====================
	api := router.Group("/api/v1")
	api.Use(authMiddleware)
	{
		// Conversations
		api.GET("/conversations", convHandler.GetConversations)
		api.POST("/conversations", convHandler.CreateConversation)
		api.GET("/conversations/:id", convHandler.GetConversation)
		api.DELETE("/conversations/:id", convHandler.Delete)
		api.DELETE("/conversations/:id/permanent", convHandler.DeletePermanently)
		api.POST("/conversations/:id/restore", convHandler.Restore)
		api.POST("/conversations/:id/archive", convHandler.Archive)
		api.DELETE("/conversations/:id/archive", convHandler.Unarchive)

		// Participants
		api.POST("/conversations/:id/participants", convHandler.AddParticipant)
		api.DELETE("/conversations/:id/participants", convHandler.RemoveParticipant)
		api.POST("/conversations/:id/moderators", convHandler.PromoteModerator)
		api.DELETE("/conversations/:id/moderators", convHandler.DemoteModerator)

		// Messages
		api.GET("/conversations/:id/messages", chatHandler.GetMessages)
		api.POST("/conversations/:id/messages", chatHandler.SendMessage)
		api.POST("/conversations/:id/read", chatHandler.MarkConversationRead)
		api.POST("/messages/:id/read", chatHandler.MarkMessageRead)
		api.POST("/messages/:id/unread", chatHandler.MarkMessageUnread)
		api.GET("/messages/:id/read-status", chatHandler.GetReadStatus)
		if signer != nil {
			attachmentHandler := handler.NewAttachmentHandler(messageService, signer)
			api.GET("/messages/:id/attachments/:attachmentId", attachmentHandler.Download)
		}

		// Notifications
		api.GET("/notifications", notifHandler.ListNotifications)
		api.GET("/notifications/unread", notifHandler.UnreadSummary)
		api.POST("/devices", notifHandler.RegisterDevice)
	}

	// WebSocket endpoint (auth via query parameter)
	router.GET("/ws", authMiddleware, wsHandler.HandleWebSocket)

	// ==================== Start Server ====================
	srv := &http.Server{
		Addr:    ":" + cfg.App.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Server failed: %v", err)
		}
	}()

	log.Printf("🌐 EduMsg API running on http://0.0.0.0:%s", cfg.App.Port)
	log.Printf("📋 API docs: http://0.0.0.0:%s/swagger/index.html", cfg.App.Port)
	log.Printf("📈 Metrics: http://0.0.0.0:%s/metrics", cfg.App.Port)
	log.Printf("🔌 WebSocket: ws://0.0.0.0:%s/ws?token=<jwt>", cfg.App.Port)

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("🛑 Shutting down server...")

	// Give ongoing requests 5 seconds to complete
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	bgCancel()
	log.Println("✅ Server exited gracefully")
}

func newLogger(cfg *config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.Log.Level}
	if cfg.App.Env == "production" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}
