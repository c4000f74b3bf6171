package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/treksavvysky/a2a-protocol/internal/api"
	"github.com/treksavvysky/a2a-protocol/internal/api/middleware"
	"github.com/treksavvysky/a2a-protocol/internal/config"
	"github.com/treksavvysky/a2a-protocol/internal/store"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		logger.Warn().Str("level", cfg.LogLevel).Msg("unknown log level, using info")
		level = zerolog.InfoLevel
	}
	logger = logger.Level(level).With().Str("instance", cfg.InstanceID).Logger()

	ctx := context.Background()

	// Redis serves rate limiting and, optionally, the mailboxes themselves
	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = store.ConnectRedis(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		logger.Info().Msg("connected to Redis")
	}

	mailboxes, err := openStore(ctx, cfg, redisClient, logger)
	if err != nil {
		logger.Fatal().Err(err).Str("backend", cfg.StoreBackend).Msg("mailbox store init failed")
	}
	defer mailboxes.Close()

	// Close the shared client only if the store did not take ownership of it
	if redisClient != nil && cfg.StoreBackend != config.BackendRedis {
		defer redisClient.Close()
	}

	// Create router
	router := api.NewRouter(logger, api.Options{
		Store:        store.Instrument(mailboxes, cfg.StoreBackend),
		Backend:      cfg.StoreBackend,
		InstanceID:   cfg.InstanceID,
		MaxBodyBytes: cfg.MaxBodyBytes,
		Redis:        redisClient,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// Create server
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("backend", cfg.StoreBackend).
			Msg("starting relay server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}

// openStore builds the mailbox backend named by cfg.StoreBackend.
func openStore(ctx context.Context, cfg *config.Config, redisClient *redis.Client, logger zerolog.Logger) (store.MailboxStore, error) {
	var mode store.DeliveryMode
	if cfg.DeliveryMode != "" {
		parsed, err := store.ParseDeliveryMode(cfg.DeliveryMode)
		if err != nil {
			return nil, err
		}
		mode = parsed
	}

	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn().Msg("using in-memory mailboxes; messages are lost on restart")
		return store.NewMemoryStore(mode), nil

	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(ctx, cfg.SQLitePath, mode)
		if err != nil {
			return nil, err
		}
		logger.Info().Str("path", s.Path()).Msg("opened SQLite mailbox store")
		return s, nil

	case config.BackendPostgres:
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrations: %w", err)
		}
		logger.Info().Msg("migrations completed")

		s, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, mode)
		if err != nil {
			return nil, err
		}
		logger.Info().Msg("connected to PostgreSQL")
		return s, nil

	case config.BackendRedis:
		if redisClient == nil {
			return nil, fmt.Errorf("REDIS_URL is required for the redis backend")
		}
		return store.NewRedisStore(redisClient, mode, cfg.DeliveredRetention, logger.With().Str("component", "redis_store").Logger()), nil
	}

	return nil, fmt.Errorf("unknown backend %q", cfg.StoreBackend)
}
