// Package main runs the live narration feedback server: WebSocket relay,
// timeline reconciler, REST endpoints, and graceful shutdown.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/script-narration/backend/config"
	"github.com/script-narration/backend/internal/archive"
	"github.com/script-narration/backend/internal/auth"
	"github.com/script-narration/backend/internal/middleware"
	"github.com/script-narration/backend/internal/models"
	"github.com/script-narration/backend/internal/realtime"
	"github.com/script-narration/backend/internal/sessions"
	"github.com/script-narration/backend/internal/timeline"
	"github.com/script-narration/backend/pkg/queue"
	"github.com/script-narration/backend/pkg/redis"
	"github.com/script-narration/backend/pkg/response"
	"github.com/script-narration/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	clock := clockwork.NewRealClock()

	// Redis is optional: without it the relay runs single-instance and
	// archive uploads happen inline.
	var rdb *redis.Client
	if cfg.Redis.Addr != "" {
		rdb, err = redis.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		logger.Info("redis connected", zap.String("addr", cfg.Redis.Addr))
	}

	var s3Client *storage.S3
	if cfg.AWS.Region != "" {
		s3Cfg := storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ArchiveBucket:        cfg.AWS.ArchiveBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}
		s3Client, err = storage.NewS3(ctx, s3Cfg, logger)
		if err != nil {
			logger.Warn("s3 archiving disabled", zap.Error(err))
		}
	}

	tokenService := auth.NewTokenService(cfg.Control.TokenSecret, cfg.Control.TokenExpireHours)
	registry := sessions.NewRegistry(clock, logger)

	var redisPubSub *realtime.RedisPubSub
	var hub *realtime.Hub
	if rdb != nil {
		redisPubSub = realtime.NewRedisPubSub(rdb.Client, logger)
		hub = realtime.NewHub(logger, redisPubSub, redisPubSub)
	} else {
		hub = realtime.NewHub(logger, nil, nil)
	}

	// Relay and reconciler reference each other: the relay feeds accepted
	// samples in, the reconciler delivers reconciled ones back out through
	// the relay's sink. Wire the sink before Start.
	reconcilerCfg := timeline.Config{
		IdleThreshold:  time.Duration(cfg.Session.IdleThresholdMs) * time.Millisecond,
		HeartbeatEvery: time.Duration(cfg.Session.HeartbeatEveryMs) * time.Millisecond,
		Tick:           time.Duration(cfg.Session.TickMs) * time.Millisecond,
	}
	var relay *realtime.Relay
	reconciler := timeline.NewReconciler(reconcilerCfg, clock, timeline.SinkFunc(func(sessionID string, sample models.FeedbackSample) {
		relay.Deliver(sessionID, sample)
	}), logger)
	relay = realtime.NewRelay(registry, hub, tokenService, reconciler, clock, logger)
	reconciler.Start()
	defer reconciler.Stop()

	var jobQueue *queue.Queue
	if rdb != nil {
		jobQueue = queue.NewQueue(rdb.Client, logger)
	}
	archiveHandler := archive.NewHandler(registry, tokenService, s3Client, jobQueue, clock, "", logger)
	sessionHandler := sessions.NewHandler(registry, time.Duration(cfg.Session.TrendStepMs)*time.Millisecond)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))

	router.GET("/health", func(c *gin.Context) {
		status := gin.H{"status": "ok"}
		if rdb != nil {
			status["redis"] = rdb.Healthy(c.Request.Context())
		}
		response.OK(c, status)
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/sessions", sessionHandler.List)
	router.GET("/sessions/:id", sessionHandler.GetByID)
	router.GET("/sessions/:id/listeners", sessionHandler.Listeners)
	router.GET("/sessions/:id/trend", sessionHandler.Trend)
	router.POST("/sessions/:id/archive", archiveHandler.Archive)
	router.GET("/archives/download-url", archiveHandler.DownloadURL)

	router.GET("/ws", realtime.ServeWs(hub, relay, logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
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
