package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/timmy/csvgen/internal/api"
	"github.com/timmy/csvgen/internal/api/middleware"
	"github.com/timmy/csvgen/internal/config"
	"github.com/timmy/csvgen/internal/generator"
	"github.com/timmy/csvgen/internal/logger"
	"github.com/timmy/csvgen/internal/merge"
	"github.com/timmy/csvgen/internal/pool"
	"github.com/timmy/csvgen/internal/progress"
	"github.com/timmy/csvgen/internal/repository"
	"github.com/timmy/csvgen/internal/service"
	"github.com/timmy/csvgen/internal/storage"
)

func main() {
	appLogger := logger.NewFromEnv(nil)
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// CONFIG_PATH points at the config file in deployments
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize database")
	}
	historyRepo := repository.NewGenerationRepository(db)

	var objectStorage storage.ObjectStorage
	if cfg.Storage.Enabled {
		objectStorage, err = storage.NewStorage(&storage.S3Config{
			Type:      storage.StorageType(cfg.Storage.Type),
			Endpoint:  cfg.Storage.Endpoint,
			AccessKey: cfg.Storage.AccessKey,
			SecretKey: cfg.Storage.SecretKey,
			UseSSL:    cfg.Storage.UseSSL,
			Bucket:    cfg.Storage.Bucket,
			Region:    cfg.Storage.Region,
			PublicURL: cfg.Storage.PublicURL,
		})
		if err != nil {
			appLogger.WithError(err).Fatal("Failed to initialize storage")
		}
		if err := objectStorage.EnsureBucket(ctx); err != nil {
			appLogger.WithError(err).Fatal("Failed to ensure storage bucket")
		}
	}

	registry := generator.NewRegistry(time.Now())
	executor, err := service.NewChunkExecutor(registry, cfg.Generation.TempDir)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize chunk executor")
	}
	workers := pool.New(cfg.Generation.Workers, executor, appLogger)

	merger, err := merge.NewEngine(cfg.Generation.OutputDir, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize merge engine")
	}

	broadcaster := progress.NewBroadcaster(cfg.Generation.ProgressBuffer, appLogger)
	if cfg.Redis.Addr != "" {
		relay, err := progress.NewRedisRelay(ctx, progress.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Channel:  cfg.Redis.Channel,
		}, appLogger)
		if err != nil {
			appLogger.WithError(err).Warn("Progress relay disabled")
		} else {
			defer relay.Close()
			go relay.Run(ctx, broadcaster)
		}
	}

	generationService := service.NewGenerationService(
		workers,
		merger,
		broadcaster,
		historyRepo,
		objectStorage,
		appLogger,
		&service.GenerationConfig{
			MaxChunkSize:  cfg.Generation.MaxChunkSize,
			MaxRows:       cfg.Generation.MaxRows,
			StoragePrefix: cfg.Storage.Prefix,
		},
	)

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	router := api.SetupRouter(api.RouterDeps{
		Generation:  generationService,
		Broadcaster: broadcaster,
		History:     historyRepo,
		Ping:        func() error { return repository.Ping(db) },
		FieldTypes:  registry.Kinds(),
		DefaultRows: cfg.Generation.DefaultRows,
		Heartbeat:   15 * time.Second,
		MetricsPath: metricsPath,
		CORS: middleware.CORSConfig{
			AllowedOrigins:  cfg.Server.CORS.AllowedOrigins,
			AllowAllOrigins: cfg.Server.CORS.AllowAllOrigins,
		},
		Logger: appLogger,
	}, cfg.Server.Mode)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		appLogger.WithFields(logger.Fields{
			"port":    cfg.Server.Port,
			"mode":    cfg.Server.Mode,
			"workers": workers.Size(),
		}).Info("Starting API server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.WithError(err).Fatal("Failed to start server")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	appLogger.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// SSE streams end when their subscriptions close
	broadcaster.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Error("Server forced to shutdown")
	}
	if err := generationService.Shutdown(shutdownCtx); err != nil {
		appLogger.WithError(err).Warn("Jobs still running at shutdown")
	}
	workers.Close()

	appLogger.Info("Server exited")
}
