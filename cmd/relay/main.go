package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/AaravAtGit/DecentChat/internal/api"
	"github.com/AaravAtGit/DecentChat/internal/config"
	"github.com/AaravAtGit/DecentChat/internal/graph"
	"github.com/AaravAtGit/DecentChat/internal/relay"
	"github.com/AaravAtGit/DecentChat/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

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
	if level, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		logger = logger.Level(level)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	nodes, backend := openStore(ctx, cfg, logger)
	defer nodes.Close()

	var opts []relay.Option

	// Initialize Redis fanout
	var redisStore *store.RedisStore
	if cfg.RedisURL != "" {
		var err error
		redisStore, err = store.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("redis connection failed")
		}
		defer redisStore.Close()
		opts = append(opts, relay.WithPublisher(redisStore))
		logger.Info().Msg("connected to Redis")
	}

	// Initialize Kafka journal
	if len(cfg.KafkaBrokers) > 0 {
		journal := store.NewKafkaJournal(cfg.KafkaBrokers, cfg.KafkaTopic)
		defer journal.Close()
		opts = append(opts, relay.WithPublisher(journal))
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("journaling to Kafka")
	}

	hub := relay.NewHub(graph.NewMemory(), nodes, logger, opts...)
	go hub.Run(ctx)

	if err := hub.Seed(ctx); err != nil {
		logger.Fatal().Err(err).Msg("seeding graph failed")
	}

	if redisStore != nil {
		go func() {
			err := redisStore.Subscribe(ctx, hub.ID(), logger, func(diff graph.Diff) {
				hub.ApplyRemote(ctx, diff)
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Error().Err(err).Msg("redis subscription ended")
			}
		}()
	}

	router := api.NewRouter(logger, cfg, api.Deps{
		Hub:     hub,
		Nodes:   nodes,
		Backend: backend,
		Redis:   redisStore,
	})

	// Websocket peers set their own deadlines, so no WriteTimeout here.
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("store", backend).
			Str("relay_id", hub.ID()).
			Msg("starting DecentChat relay")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	<-ctx.Done()
	logger.Info().Msg("shutting down relay...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("relay stopped")
}

// openStore picks the node store: Postgres, then Scylla, then the SQLite file.
func openStore(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (store.NodeStore, string) {
	switch {
	case cfg.DatabaseURL != "":
		s, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		logger.Info().Msg("connected to PostgreSQL")
		return s, "postgres"
	case len(cfg.ScyllaHosts) > 0:
		s, err := store.NewScyllaStore(ctx, cfg.ScyllaHosts, cfg.ScyllaKeyspace)
		if err != nil {
			logger.Fatal().Err(err).Msg("scylla connection failed")
		}
		logger.Info().Strs("hosts", cfg.ScyllaHosts).Msg("connected to Scylla")
		return s, "scylla"
	default:
		s, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Str("path", cfg.SQLitePath).Msg("sqlite open failed")
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
		return s, "sqlite"
	}
}
