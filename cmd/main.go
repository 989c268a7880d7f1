package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	configs "github.com/viewtube/backend/config"
	"github.com/viewtube/backend/internal/handler"
	"github.com/viewtube/backend/internal/middleware"
	"github.com/viewtube/backend/internal/repository"
	"github.com/viewtube/backend/internal/router"
	"github.com/viewtube/backend/internal/service"
	"github.com/viewtube/backend/internal/storage"
	"github.com/viewtube/backend/pkg/database"
	"github.com/viewtube/backend/pkg/health"
	"github.com/viewtube/backend/pkg/logger"
	"github.com/viewtube/backend/pkg/redis"
	"go.uber.org/zap"
)

func main() {
	config, err := configs.LoadConfig()
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}

	if err := logger.InitLogger(config); err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer logger.Sync()

	logger.GetLogger().Info("Application starting",
		zap.String("app_name", config.App.Name),
		zap.String("environment", config.App.Environment),
	)

	db, err := database.NewPostgresDB(database.Config{
		Host:            config.Database.Host,
		Port:            config.Database.Port,
		User:            config.Database.User,
		Password:        config.Database.Password,
		Database:        config.Database.Name,
		SSLMode:         config.Database.SSLMode,
		MaxIdleConns:    config.Database.MaxIdleConns,
		MaxOpenConns:    config.Database.MaxOpenConns,
		ConnMaxLifetime: config.Database.ConnMaxLifetime,
		ConnMaxIdleTime: config.Database.ConnMaxIdleTime,
	})
	if err != nil {
		logger.GetLogger().Fatal("Failed to connect to database", zap.Error(err))
	}
	defer database.CloseDB(db)

	if err := database.AutoMigrate(db); err != nil {
		logger.GetLogger().Fatal("Failed to run database migrations", zap.Error(err))
	}
	logger.GetLogger().Info("Database migrated successfully")

	// Dependency health monitor
	monitor := health.NewMonitor(30*time.Second, logger.GetLogger())
	monitor.Register("database", true, func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	})

	// Object storage
	store, err := storage.NewS3Store(config)
	if err != nil {
		logger.GetLogger().Fatal("Failed to initialize object storage", zap.Error(err))
	}

	// Rate limiter store: redis when enabled, process-local otherwise
	var limiterStore middleware.LimiterStore = middleware.NewMemoryLimiterStore()
	var redisClient *redis.Client
	if config.Redis.Enabled {
		redisClient, err = redis.NewClient(config)
		if err != nil {
			logger.GetLogger().Fatal("Failed to connect to Redis", zap.Error(err))
		}
		defer redisClient.Close()
		limiterStore = redisClient
		monitor.Register("redis", false, redisClient.Ping)
	}

	monitor.Start()
	defer monitor.Stop()

	// Repositories
	userRepo := repository.NewUserRepository(db)

	// Services
	hasher := service.NewPasswordHasher()
	tokens := service.NewTokenService(config.JWT)
	uploader := service.NewUploadService(store)
	sessions := service.NewSessionService(userRepo, hasher, tokens)
	users := service.NewUserService(userRepo, hasher, uploader, store)

	// Middleware
	authMw := middleware.NewAuthMiddleware(tokens, userRepo)

	// Handlers
	authHandler := handler.NewAuthHandler(sessions, users, config)
	userHandler := handler.NewUserHandler(users, config)
	healthHandler := handler.NewHealthHandler(monitor)

	r := router.NewRouter(authHandler, userHandler, healthHandler, authMw, limiterStore, config)
	engine := r.SetupRoutes()

	server := &http.Server{
		Addr:         ":" + config.App.Port,
		Handler:      engine,
		ReadTimeout:  config.App.Timeout,
		WriteTimeout: config.App.Timeout,
	}

	go func() {
		logger.GetLogger().Info("HTTP server listening", zap.String("port", config.App.Port))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.GetLogger().Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.GetLogger().Info("Shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logger.GetLogger().Error("Forced shutdown", zap.Error(err))
	}

	logger.GetLogger().Info("Server stopped")
}
