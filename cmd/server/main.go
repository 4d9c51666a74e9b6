// Package main is the entry point for the field settings API server.
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

	"fieldsettings/db"
	"fieldsettings/internal/config"
	"fieldsettings/internal/domain/auth"
	"fieldsettings/internal/domain/drafts"
	"fieldsettings/internal/infrastructure/cache"
	v1 "fieldsettings/internal/infrastructure/http/v1"
	"fieldsettings/internal/infrastructure/storage/postgres"
	"fieldsettings/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.LogLevel,
		Development: cfg.IsDevelopment(),
	})
	if err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	ctx, cancel := context.WithCancel(logger.WithLogger(context.Background(), log))
	defer cancel()

	log.Infow("starting field settings server", "env", cfg.AppEnv)

	// --- Database ---
	poolCfg := postgres.DefaultPoolConfig(cfg.DatabaseURL)
	poolCfg.MaxConns = cfg.DBMaxConns
	pool, err := postgres.NewPool(ctx, poolCfg)
	if err != nil {
		log.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()
	log.Info("database connection established")

	if applied, err := postgres.Migrate(ctx, pool, db.Migrations); err != nil {
		log.Fatalw("failed to migrate database", "error", err)
	} else if applied > 0 {
		log.Infow("database migrated", "applied", applied)
	}

	txManager := postgres.NewTxManager(pool)
	history, err := postgres.NewHistory(txManager)
	if err != nil {
		log.Fatalw("failed to create snapshot history", "error", err)
	}
	store := postgres.NewSettingsStore(txManager, history)

	// --- Cache and invalidation ---
	snapshots, err := cache.NewSnapshotCache(cfg.SnapshotCacheSize)
	if err != nil {
		log.Fatalw("failed to create snapshot cache", "error", err)
	}
	listener := cache.NewListener(pool.Pool, snapshots)
	if err := listener.Start(ctx); err != nil {
		log.Fatalw("failed to start cache listener", "error", err)
	}
	defer listener.Stop()

	// --- Drafts ---
	draftManager := drafts.NewManager(store.ForInstitute, snapshots, cfg.DraftTTL, log)
	defer draftManager.Close()

	idempotency := cache.NewIdempotencyStore(cache.DefaultIdempotencyTTL)
	defer idempotency.Close()

	// --- JWT Service ---
	jwtConfig := auth.DefaultJWTConfig(cfg.JWTSecret)
	jwtConfig.Issuer = cfg.JWTIssuer
	jwtConfig.AccessTokenTTL = cfg.AccessTokenTTL
	jwtService := auth.NewJWTService(jwtConfig)

	// --- Router ---
	router := v1.NewRouter(v1.RouterConfig{
		Logger:       log,
		JWTValidator: jwtService,
		Backends:     store.ForInstitute,
		Drafts:       draftManager,
		Cache:        snapshots,
		History:      history,
		DB:           pool,
		Idempotency:  idempotency,
		Development:  cfg.IsDevelopment(),
	})

	go reportStats(ctx, pool, time.Minute)

	// --- HTTP Server ---
	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Infow("server starting", "port", cfg.Port)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalw("server failed", "error", err)
		}
	}()

	// --- Graceful shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Errorw("server forced to shutdown", "error", err)
	}

	log.Info("server stopped")
}

// reportStats logs pool usage until ctx is done.
func reportStats(ctx context.Context, pool *postgres.Pool, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pool.LogStats(ctx)
		}
	}
}
