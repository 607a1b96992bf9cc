package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/seanblong/annsearch/internal/config"
	"github.com/seanblong/annsearch/internal/relay"
	"github.com/spf13/pflag"
)

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("annsearch-relay", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs, os.Args[1:])
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	// Set up logging
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("Invalid log level '%s': %v", cfg.LogLevel, err)
	}
	logger := zerolog.New(os.Stdout).Level(level).With().Timestamp().Logger()
	logger.Info().
		Str("backend_url", cfg.Relay.BackendURL).
		Str("backend_http_url", cfg.Relay.BackendHTTPURL).
		Str("log_level", cfg.LogLevel).
		Msg("starting annsearch relay")

	srv := relay.New(relay.Config{
		Addr:           fmt.Sprintf(":%d", cfg.Relay.Port),
		BackendURL:     cfg.Relay.BackendURL,
		BackendHTTPURL: cfg.Relay.BackendHTTPURL,
	}, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("shutdown failed")
		}
	}()

	if err := srv.ListenAndServe(); err != nil {
		log.Fatal(err)
	}
	logger.Info().Msg("relay stopped")
}
