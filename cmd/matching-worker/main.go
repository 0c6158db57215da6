package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/tutorhive/matching-api/internal/repository"
	"github.com/tutorhive/matching-api/internal/service"
	"github.com/tutorhive/matching-api/pkg/cache"
	"github.com/tutorhive/matching-api/pkg/config"
	"github.com/tutorhive/matching-api/pkg/database"
	"github.com/tutorhive/matching-api/pkg/jobs"
	"github.com/tutorhive/matching-api/pkg/logger"
	corsmiddleware "github.com/tutorhive/matching-api/pkg/middleware/cors"
	reqidmiddleware "github.com/tutorhive/matching-api/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to postgres", "error", err)
	}
	defer db.Close()

	redisClient, err := cache.NewRedis(cfg.Redis)
	if err != nil {
		logr.Sugar().Fatalw("failed to connect to redis", "error", err)
	}
	defer redisClient.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	requestRepo := repository.NewClassRequestRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)

	validate := validator.New()
	metrics := service.NewMetricsService()
	txOpts := database.TxOptions{
		MaxRetries: cfg.Matching.TxMaxRetries,
		RetryDelay: cfg.Matching.TxRetryDelay,
	}

	notifier := service.NewNotificationService(notificationRepo, redisClient, cfg.Notifications.ChannelPrefix, jobs.QueueConfig{
		Workers:    cfg.Notifications.Workers,
		BufferSize: cfg.Notifications.BufferSize,
		MaxRetries: cfg.Notifications.MaxRetries,
		RetryDelay: cfg.Notifications.RetryDelay,
		Logger:     logr,
	}, logr)
	notifier.Start(ctx)
	defer notifier.Stop()

	requestSvc := service.NewRequestService(db, txOpts, requestRepo, profileRepo, notifier, cfg.Matching.RequestTTL, metrics, validate, logr)

	sweeper := service.NewExpirySweeper(requestSvc, cfg.Sweep.Interval, cfg.Sweep.BatchSize, cfg.Sweep.IncludePending, logr)
	go sweeper.Run(ctx)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		if err := db.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	addr := fmt.Sprintf(":%d", cfg.Port)
	server := &http.Server{Addr: addr, Handler: r}

	go func() {
		<-ctx.Done()
		_ = server.Shutdown(context.Background())
	}()

	logr.Sugar().Infow("worker starting", "addr", addr, "env", cfg.Env)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logr.Sugar().Fatalw("server failed", "error", err)
	}
}
