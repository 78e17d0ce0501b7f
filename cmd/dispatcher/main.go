package main

import (
	"context"
	"database/sql"
	"os/signal"
	"strings"
	"syscall"

	"app/internal/config"
	"app/internal/dispatcher"
	"app/internal/logger"
	"app/internal/queue"
	"app/internal/repository"

	"github.com/joho/godotenv"
	_ "github.com/jackc/pgx/v5/stdlib"
)

func main() {
	// Initialize logger
	logger := logger.New()

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn().Msg("Warning: no .env file found")
	}

	// Load config
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Msgf("Error loading config: %v", err)
	}

	// Initialize DB connection
	dsn := cfg.DBConnectionString
	if cfg.Environment == "development" && !strings.Contains(dsn, "sslmode") {
		dsn += " sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		logger.Fatal().Msgf("Failed to open DB connection: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatal().Msgf("Failed to ping DB: %v", err)
	}
	logger.Info().Msg("Database connection established")

	// Initialize queue client and DLQ repository
	queueClient := queue.New(db)
	dlqRepo := repository.NewDLQRepository(db)
	logger.Info().Msg("Queue client initialized")

	// Set up context with graceful shutdown
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := dispatcher.Run(ctx, cfg, logger, queueClient, dlqRepo); err != nil {
		logger.Fatal().Msgf("dispatch worker failed: %v", err)
	}

	logger.Info().Msg("dispatch worker stopped gracefully")
}
