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

	"github.com/joho/godotenv"
	"github.com/prudhvinik1/lansync/internal/config"
	"github.com/prudhvinik1/lansync/internal/database"
	"github.com/prudhvinik1/lansync/internal/handlers"
	"github.com/prudhvinik1/lansync/internal/livesync"
	"github.com/prudhvinik1/lansync/internal/logger"
	"github.com/prudhvinik1/lansync/internal/metrics"
	"github.com/prudhvinik1/lansync/internal/pocketbase"
	"github.com/prudhvinik1/lansync/internal/repositories"
	"github.com/prudhvinik1/lansync/internal/services"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.New(logger.Config{Env: os.Getenv("APP_ENV"), ServiceName: "lansync"}).
			Fatal("Failed to load config", zap.Error(err))
	}

	logger.Init(logger.Config{Env: cfg.AppEnv, Level: cfg.LogLevel, ServiceName: "lansync"})
	defer logger.Sync()
	log := logger.L()

	// Snapshot store: Redis when configured, otherwise in process
	var snapshots repositories.SnapshotRepository
	if cfg.RedisURL != "" {
		redisClient, err := database.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.Fatal("Failed to create redis client", zap.Error(err))
		}
		defer redisClient.Close()
		snapshots = repositories.NewRedisSnapshotRepository(redisClient, cfg.SnapshotTTL)
	} else {
		snapshots = repositories.NewMemorySnapshotRepository(cfg.SnapshotTTL)
	}

	// Mutation journal is only kept when Postgres is configured
	var journal repositories.JournalRepository
	if cfg.DatabaseURL != "" {
		postgresPool, err := database.NewPostgresPool(ctx, cfg.DatabaseURL)
		if err != nil {
			log.Fatal("Failed to create postgres pool", zap.Error(err))
		}
		defer postgresPool.Close()
		if err := database.Migrate(ctx, postgresPool); err != nil {
			log.Fatal("Failed to migrate database", zap.Error(err))
		}
		journal = repositories.NewPostgresJournalRepository(postgresPool)
	}

	pb, err := pocketbase.New(cfg.PocketBaseURL, pocketbase.WithLogger(logger.Named("pocketbase")))
	if err != nil {
		log.Fatal("Failed to create pocketbase client", zap.Error(err))
	}
	pbAuth := services.NewPocketBaseAuth(pb, cfg.PocketBaseAuthColl, cfg.PocketBaseIdentity, cfg.PocketBasePassword)

	mirror := services.NewMirrorService(livesync.NewPocketBaseRemote(pb), snapshots, journal, pbAuth, services.MirrorConfig{
		Collections:         cfg.SyncCollections,
		Filters:             cfg.SyncFilters,
		PageSize:            cfg.SyncPageSize,
		FetchAll:            cfg.SyncFetchAll,
		ResubscribeInterval: cfg.ResubscribeInterval,
	})
	authService := services.NewAuthService(cfg.OperatorPasswordHash, cfg.JWTSecret, cfg.JWTExpiry)

	metricsHandler, err := metrics.Register(nil)
	if err != nil {
		log.Fatal("Failed to register metrics", zap.Error(err))
	}

	// Initialize HTTP Server
	router := handlers.NewRouter(handlers.Deps{
		Mirror:  mirror,
		Auth:    authService,
		Metrics: metricsHandler,
		Logger:  logger.Named("http"),
	})
	server := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.ServerPort),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return mirror.Run(gctx)
	})
	g.Go(func() error {
		log.Info("Starting server", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	// graceful shutdown
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Error("Server stopped with error", zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
	log.Info("Server stopped gracefully")
}
