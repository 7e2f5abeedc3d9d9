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

	"github.com/examdesk/examdesk/internal/common"
	"github.com/examdesk/examdesk/internal/mailer"
	"github.com/examdesk/examdesk/internal/server"
	"github.com/examdesk/examdesk/internal/storage/surrealdb"
)

func main() {
	configPath := os.Getenv("EXAMDESK_CONFIG")
	if configPath == "" {
		configPath = "examdesk.toml"
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	if err := config.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		os.Exit(1)
	}

	logger := common.NewLogger(config.Logging.Level)
	common.PrintBanner(config, logger)

	storage, err := surrealdb.NewManager(logger, config)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize storage")
	}

	otpMailer := mailer.NewSMTPMailer(&config.SMTP, logger)
	srv := server.NewServer(config, logger, storage, otpMailer)

	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	logger.Info().
		Str("url", fmt.Sprintf("http://localhost:%d", config.Server.Port)).
		Msg("Server ready")

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info().Msg("Shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error().Err(err).Msg("HTTP server shutdown failed")
	}

	if err := storage.Close(); err != nil {
		logger.Error().Err(err).Msg("Storage shutdown failed")
	}

	common.PrintShutdownBanner(logger)
}
