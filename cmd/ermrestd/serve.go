package main

import (
	"context"
	"fmt"
	"math"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ermrest-eu/ermrestd/internal/api"
	"github.com/ermrest-eu/ermrestd/internal/config"
	"github.com/ermrest-eu/ermrestd/internal/database"
	"github.com/ermrest-eu/ermrestd/internal/observability"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCmd() *cobra.Command {
	var skipMigrate bool
	var retryAttempts int

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(skipMigrate, retryAttempts)
		},
	}

	cmd.Flags().BoolVar(&skipMigrate, "skip-migrate", false, "skip running migrations on startup")
	cmd.Flags().IntVar(&retryAttempts, "db-retry-attempts", 5, "database connection retry attempts before giving up")
	return cmd
}

func runServe(skipMigrate bool, retryAttempts int) error {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if cfg.Debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("version", Version).
		Str("address", cfg.Server.Address).
		Msg("Starting ermrestd")

	db, err := connectDatabaseWithRetry(cfg.Database, retryAttempts)
	if err != nil {
		return fmt.Errorf("failed to connect to database after multiple attempts: %w", err)
	}
	defer db.Close()
	db.SetMetrics(observability.NewMetrics())

	if !skipMigrate {
		log.Info().Msg("Running database migrations...")
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to run migrations: %w", err)
		}
		log.Info().Msg("Database migrations completed successfully")
		db.Pool().Reset()
	}

	server := api.NewServer(cfg, db.Pool())

	go func() {
		log.Info().Str("address", cfg.Server.Address).Msg("Listening")
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server failed to start or stopped with error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Graceful shutdown failed")
	}
	log.Info().Msg("Server exited")
	return nil
}

// connectDatabaseWithRetry attempts to connect to the database with
// exponential backoff, the same posture the original server startup used.
func connectDatabaseWithRetry(cfg config.DatabaseConfig, maxAttempts int) (*database.Connection, error) {
	var db *database.Connection
	var err error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		log.Info().
			Int("attempt", attempt).
			Int("max_attempts", maxAttempts).
			Str("host", cfg.Host).
			Int("port", cfg.Port).
			Msg("Attempting to connect to database...")

		db, err = database.NewConnection(cfg)
		if err == nil {
			return db, nil
		}
		if attempt >= maxAttempts {
			break
		}

		backoff := time.Duration(math.Pow(2, float64(attempt-1))) * time.Second
		log.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", backoff).Msg("Database connection failed, retrying...")
		time.Sleep(backoff)
	}

	return nil, fmt.Errorf("failed to connect after %d attempts: %w", maxAttempts, err)
}
