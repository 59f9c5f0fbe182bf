package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ayush/fitness-ai/backend/internal/auth"
	"github.com/ayush/fitness-ai/backend/internal/config"
	"github.com/ayush/fitness-ai/backend/internal/logging"
	"github.com/ayush/fitness-ai/backend/internal/plans"
	"github.com/ayush/fitness-ai/backend/internal/ratelimit"
	"github.com/ayush/fitness-ai/backend/internal/server"
	"github.com/ayush/fitness-ai/backend/internal/store"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := config.Load()
			if err := cfg.Validate(); err != nil {
				return err
			}
			log, err := logging.New(cfg.LogLevel, cfg.LogDevelopment)
			if err != nil {
				return err
			}
			defer log.Sync()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, log)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config, log *zap.Logger) error {
	// ── PostgreSQL ────────────────────────────────────────────
	pgPool, err := connectPostgres(ctx, cfg.PostgresDSN)
	if err != nil {
		return err
	}
	defer pgPool.Close()
	pgStore := store.NewPostgresStore(pgPool)
	if err := pgStore.Migrate(ctx); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}

	// ── Redis ────────────────────────────────────────────────
	rdb, err := store.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword)
	if err != nil {
		return err
	}
	defer rdb.Close()
	sessions := auth.NewSessionStore(rdb)

	// ── Rate limiter (+ MongoDB analytics) ──────────────────
	limiterOpts := []ratelimit.Option{
		ratelimit.WithPrefix(cfg.RateLimitPrefix),
		ratelimit.WithLogger(log.Named("ratelimit")),
	}
	if cfg.AnalyticsEnabled() {
		mongoClient, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			return fmt.Errorf("mongo connect: %w", err)
		}
		defer mongoClient.Disconnect(context.Background())
		events := store.NewMongoStore(mongoClient.Database(cfg.MongoDB))
		if err := events.EnsureIndexes(ctx); err != nil {
			return err
		}
		limiterOpts = append(limiterOpts, ratelimit.WithRecorder(events))
		log.Info("rate-limit analytics enabled", zap.String("db", cfg.MongoDB))
	}
	limiter := ratelimit.NewSlidingWindow(rdb, cfg.RateLimitLimit, cfg.RateLimitWindow, limiterOpts...)

	// ── MinIO ────────────────────────────────────────────────
	var avatars auth.AvatarStore
	if cfg.AvatarsEnabled() {
		minioStore, err := store.NewMinioStore(
			ctx, cfg.MinioEndpoint, cfg.MinioAccessKey,
			cfg.MinioSecretKey, cfg.MinioBucket, cfg.MinioUseSSL,
		)
		if err != nil {
			return err
		}
		avatars = minioStore
	}

	// ── Router ───────────────────────────────────────────────
	handler := server.NewRouter(server.Deps{
		Log:      log,
		Users:    pgStore,
		Sessions: sessions,
		Avatars:  avatars,
		Plans:    plans.NewService(pgStore, pgStore, limiter),
		Health: map[string]server.HealthCheck{
			"postgres": pgStore.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
		CORSOrigins: cfg.CORSOrigins,
	})

	// ── Server ───────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("backend listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func connectPostgres(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	return pool, nil
}
