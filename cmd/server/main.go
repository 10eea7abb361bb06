// Package main runs the movie club HTTP API with graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/movieclub/backend/config"
	"github.com/movieclub/backend/internal/auth"
	"github.com/movieclub/backend/internal/avatars"
	"github.com/movieclub/backend/internal/custommovies"
	"github.com/movieclub/backend/internal/groupmovies"
	"github.com/movieclub/backend/internal/groups"
	"github.com/movieclub/backend/internal/middleware"
	"github.com/movieclub/backend/internal/movies"
	"github.com/movieclub/backend/internal/ratelimit"
	"github.com/movieclub/backend/internal/worker"
	"github.com/movieclub/backend/pkg/database"
	"github.com/movieclub/backend/pkg/queue"
	"github.com/movieclub/backend/pkg/redis"
	"github.com/movieclub/backend/pkg/response"
	"github.com/movieclub/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), database.PoolOptions{
		MaxConns:        int32(cfg.Database.MaxConns),
		MinConns:        int32(cfg.Database.MinConns),
		MaxConnLifetime: time.Duration(cfg.Database.MaxConnLifetimeMinutes) * time.Minute,
	}, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}
	txm := database.NewTxManager(pool)

	// Redis backs rate limiting and the avatar cleanup queue. Without it the
	// server limits per instance and deletes avatars inline.
	limiter := ratelimit.Fallback{Secondary: ratelimit.NewMemoryLimiter()}
	var (
		rdb      *redis.Client
		jobQueue *queue.Queue
		cleanup  avatars.CleanupQueue
	)
	if cfg.Redis.Addr != "" {
		rdb, err = redis.NewClient(ctx, redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}, logger)
		if err != nil {
			logger.Warn("redis disabled", zap.Error(err))
		} else {
			defer rdb.Close()
			limiter.Primary = ratelimit.NewRedisLimiter(rdb.Client, cfg.RateLimit.Prefix)
			jobQueue = queue.NewQueue(rdb.Client, logger)
			cleanup = jobQueue
		}
	}

	var (
		s3Client *storage.S3
		objects  avatars.ObjectStore
	)
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			AvatarsBucket:        cfg.AWS.AvatarsBucket,
			PublicBaseURL:        cfg.AWS.PublicBaseURL,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
		} else {
			objects = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)

	// Auth
	authRepo := auth.NewRepository(txm)
	authHandler := auth.NewHandler(authRepo, jwtService, cfg.Auth.BcryptCost, logger)

	// Groups and membership
	groupService := groups.NewService(groups.NewPostgresStore(txm), logger)
	avatarManager := avatars.NewManager(objects, cleanup, groupService, logger)
	groupHandler := groups.NewHandler(groupService, avatarManager, logger)
	avatarHandler := avatars.NewHandler(avatarManager, groupService, logger)
	userHandler := auth.NewUserHandler(authRepo, groupService, txm, cfg.Auth.BcryptCost, logger)

	// Movies
	movieRepo := movies.NewRepository(txm)
	movieHandler := movies.NewHandler(movieRepo, logger)
	customService := custommovies.NewService(custommovies.NewRepository(txm), groupService, logger)
	customHandler := custommovies.NewHandler(customService, groupService, logger)
	groupMovieService := groupmovies.NewService(groupmovies.NewRepository(txm), movieRepo, customService, txm, logger)
	groupMovieHandler := groupmovies.NewHandler(groupMovieService, groupService, logger)

	rateLimit := middleware.RateLimit(limiter, cfg.RateLimit.PerSecond, logger)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if rdb != nil && rdb.Healthy(c.Request.Context()) != nil {
			response.ServiceUnavailable(c, "redis unavailable")
			return
		}
		response.OK(c, gin.H{"status": "ok"})
	})

	// Auth (public)
	authGroup := router.Group("/auth", rateLimit)
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Protected API (JWT required)
	api := router.Group("")
	api.Use(middleware.JWT(jwtService), rateLimit)
	{
		userHandler.RegisterRoutes(api)
		groupHandler.RegisterRoutes(api)
		avatarHandler.RegisterRoutes(api)
		movieHandler.RegisterRoutes(api)
		customHandler.RegisterRoutes(api)
		groupMovieHandler.RegisterRoutes(api)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Background worker (avatar cleanup)
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	if s3Client != nil && jobQueue != nil {
		go worker.NewAvatarCleanupProcessor(s3Client, jobQueue, logger).Run(workerCtx)
		logger.Info("avatar cleanup worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	workerCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
