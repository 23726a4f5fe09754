package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"authz-service/internal/audit"
	"authz-service/internal/cache"
	"authz-service/internal/config"
	"authz-service/internal/events"
	"authz-service/internal/handlers"
	"authz-service/internal/metrics"
	"authz-service/internal/middleware"
	"authz-service/internal/migration"
	"authz-service/internal/models"
	"authz-service/internal/repository"
	"authz-service/internal/services"
	"authz-service/internal/throttle"
	"authz-service/internal/validator"
)

func main() {
	cfg := config.LoadConfig()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Server.Mode == "release" {
		logger.SetLevel(logrus.InfoLevel)
	} else {
		logger.SetLevel(logrus.DebugLevel)
	}

	db, err := initDatabase(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.WithError(err).Fatal("Failed to access database handle")
	}
	defer sqlDB.Close()

	if err := migration.Run(sqlDB, logger); err != nil {
		logger.WithError(err).Fatal("Failed to run database migrations")
	}

	redisClient := initRedis(cfg, logger)
	if redisClient != nil {
		defer redisClient.Close()
	}

	var eventsPublisher *events.Publisher
	if cfg.NATS.Enabled {
		eventsPublisher, err = events.NewPublisher(cfg.NATS.URL, logger)
		if err != nil {
			logger.WithError(err).Warn("Failed to initialize NATS publisher, continuing without event publishing")
		} else {
			logger.Info("Events publisher initialized")
		}
	}
	defer eventsPublisher.Close()

	// Repositories
	tenantRepo := repository.NewTenantRepository(db)
	accountRepo := repository.NewAccountRepository(db)
	usageLogRepo := repository.NewUsageLogRepository(db)
	projectStore := repository.NewScopedStore[models.Project](db, "project")
	taskStore := repository.NewScopedStore[models.Task](db, "task")
	documentStore := repository.NewScopedStore[models.Document](db, "document")
	existenceChecker := repository.NewScopedExistenceChecker(db)

	// Shared infrastructure
	m := metrics.New()
	storeTimeout := time.Duration(cfg.Security.StoreTimeoutSecs) * time.Second
	snapshots := cache.NewSnapshotCache(redisClient, tenantRepo, accountRepo,
		time.Duration(cfg.Cache.TTLSeconds)*time.Second, logger)
	refreshDenylist := cache.NewRefreshDenylist(redisClient, logger)
	auditSink := audit.NewSink(usageLogRepo, eventsPublisher, redisClient, logger,
		cfg.Security.AbuseFlagThreshold,
		time.Duration(cfg.Security.AbuseFlagWindowMin)*time.Minute)
	throttleController := throttle.NewController(redisClient, logger)

	// Services
	credentialService, err := services.NewCredentialService(
		accountRepo, tenantRepo, snapshots, auditSink, eventsPublisher, logger,
		cfg.Security.BcryptCost, cfg.Security.HashWorkers, storeTimeout)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize credential service")
	}
	tokenService := services.NewTokenService(
		cfg.JWT.AccessSecret, cfg.JWT.RefreshSecret,
		time.Duration(cfg.JWT.AccessExpiryMinutes)*time.Minute,
		time.Duration(cfg.JWT.RefreshExpiryHours)*time.Hour,
		cfg.JWT.Issuer, cfg.JWT.Audience, cfg.JWT.RotateRefresh,
		snapshots, refreshDenylist, logger)
	resolver := services.NewResolver(tokenService, logger, storeTimeout)
	refValidator := validator.NewReferenceValidator(existenceChecker, logger)

	// Handlers
	tokenHandlers := handlers.NewTokenHandlers(credentialService, tokenService, eventsPublisher, m)
	accountHandlers := handlers.NewAccountHandlers(credentialService)
	tenantHandlers := handlers.NewTenantHandlers(tenantRepo, snapshots)
	projectHandlers := handlers.NewResourceHandlers(projectStore, refValidator, m, "project")
	taskHandlers := handlers.NewResourceHandlers(taskStore, refValidator, m, "task")
	documentHandlers := handlers.NewResourceHandlers(documentStore, refValidator, m, "document")
	healthHandler := handlers.NewHealthHandler(db, redisClient, eventsPublisher)

	// Middleware
	authMiddleware := middleware.NewAuthMiddleware(resolver)
	throttleMiddleware := middleware.NewThrottleMiddleware(throttleController, m)
	tenantRecheck := middleware.NewTenantRecheck(tenantRepo, logger, []middleware.PublicRoute{
		{Method: http.MethodGet, Path: "/health"},
		{Method: http.MethodGet, Path: "/metrics"},
		{Method: http.MethodPost, Path: "/api/v1/auth/token"},
		{Method: http.MethodPost, Path: "/api/v1/auth/token/refresh"},
	})

	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.StructuredLogger(logger, m))
	router.Use(middleware.SecurityHeaders())

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowAllOrigins = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Request-ID"}
	router.Use(cors.New(corsConfig))

	router.GET("/health", healthHandler.Health)
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := router.Group("/api/v1")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/token",
				throttleMiddleware.LimitByBodyClientID("token_issue", cfg.Throttle.TokenPerMinute),
				tokenHandlers.IssueToken,
			)
			auth.POST("/token/refresh",
				throttleMiddleware.Limit("token_refresh", cfg.Throttle.RefreshPerMinute),
				tokenHandlers.RefreshToken,
			)
		}

		protected := api.Group("")
		protected.Use(authMiddleware.AuthRequired())
		protected.Use(tenantRecheck.Handler())
		protected.Use(throttleMiddleware.LimitGeneral(cfg.Throttle.GeneralPerMinute))
		{
			admin := protected.Group("")
			admin.Use(authMiddleware.RequireRole("admin"))
			{
				tenants := admin.Group("/tenants")
				{
					tenants.POST("", tenantHandlers.Create)
					tenants.GET("", tenantHandlers.List)
					tenants.POST("/:id/activate", tenantHandlers.Activate)
					tenants.POST("/:id/deactivate", tenantHandlers.Deactivate)
				}

				accounts := admin.Group("/service-accounts")
				{
					accounts.POST("", accountHandlers.Create)
					accounts.GET("", accountHandlers.List)
					accounts.GET("/:id", accountHandlers.Get)
					accounts.POST("/:id/disable", accountHandlers.Disable)
					accounts.POST("/:id/enable", accountHandlers.Enable)
					accounts.POST("/:id/revoke-tokens", accountHandlers.RevokeTokens)
				}
			}

			registerResource(protected, "/projects", "projects", authMiddleware, projectHandlers)
			registerResource(protected, "/tasks", "tasks", authMiddleware, taskHandlers)
			registerResource(protected, "/documents", "documents", authMiddleware, documentHandlers)
		}
	}

	serverAddr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:         serverAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithFields(logrus.Fields{
			"addr": serverAddr,
			"mode": cfg.Server.Mode,
		}).Info("Server starting")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}
	logger.Info("Server stopped")
}

// registerResource wires the CRUD routes for one tenant-scoped entity with
// read/write scope guards.
func registerResource[T any, PT interface {
	*T
	models.TenantScoped
}](group *gin.RouterGroup, path, scopeName string, authMiddleware *middleware.AuthMiddleware, h *handlers.ResourceHandlers[T, PT]) {
	readScope := "read:" + scopeName
	writeScope := "write:" + scopeName

	resource := group.Group(path)
	{
		resource.GET("", authMiddleware.RequireScope(readScope), h.List)
		resource.GET("/:id", authMiddleware.RequireScope(readScope), h.Get)
		resource.POST("", authMiddleware.RequireScope(writeScope), h.Create)
		resource.PUT("/:id", authMiddleware.RequireScope(writeScope), h.Update)
		resource.DELETE("/:id", authMiddleware.RequireScope(writeScope), h.Delete)
	}
}

func initDatabase(cfg *config.Config, logger *logrus.Logger) (*gorm.DB, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Name,
		cfg.Database.SSLMode,
	)

	gormLogLevel := gormlogger.Silent
	if cfg.Server.Mode != "release" {
		gormLogLevel = gormlogger.Warn
	}

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormLogLevel),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to access database handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(25)
	sqlDB.SetMaxIdleConns(10)
	sqlDB.SetConnMaxLifetime(5 * time.Minute)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info("Database connected")
	return db, nil
}

func initRedis(cfg *config.Config, logger *logrus.Logger) *redis.Client {
	if !cfg.Redis.Enabled {
		logger.Info("Redis disabled, using in-process fallbacks")
		return nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%s", cfg.Redis.Host, cfg.Redis.Port),
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		logger.WithError(err).Warn("Redis connection failed, continuing with in-process fallbacks")
		return nil
	}

	logger.Info("Redis connected")
	return rdb
}
