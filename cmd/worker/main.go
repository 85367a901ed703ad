// Command worker runs a single language-specialized Worker Loop (C8): it
// reads CODR_LANGUAGE, connects to the broker, and blocking-pops jobs off
// that language's queue until idle-timeout or a shutdown signal.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/jobstore"
	"github.com/codr-run/codr/internal/sandbox"
	"github.com/codr-run/codr/internal/worker"
)

func main() {
	language := os.Getenv("CODR_LANGUAGE")
	if language == "" {
		fmt.Fprintln(os.Stderr, "CODR_LANGUAGE must be set")
		os.Exit(1)
	}

	configPath := os.Getenv("CODR_CONFIG")
	config, err := common.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := common.NewLogger(config.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := broker.New(ctx, config.Broker.Addr, config.Broker.Password, config.Broker.DB, config.Broker.PoolSize, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to broker")
	}
	defer b.Close()

	store := jobstore.New(b, logger)
	sb := sandbox.New(config.Sandbox.BaseURL, sandbox.WithLogger(logger), sandbox.WithTimeout(config.Sandbox.GetTimeout()))

	loop := worker.New(language, store, b, sb, logger)

	logger.Info().Str("language", language).Msg("worker loop starting")

	if err := loop.Run(ctx); err != nil {
		logger.Fatal().Err(err).Str("language", language).Msg("worker loop exited with error")
	}

	logger.Info().Str("language", language).Msg("worker loop stopped")
}
