// Command api-server runs codr's REST + WebSocket front door (C1-C7):
// admission gateway, submission service, result service, stream service,
// and token service, fronted by a single HTTP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/codr-run/codr/internal/app"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/server"
)

func main() {
	configPath := os.Getenv("CODR_CONFIG")

	ctx := context.Background()
	a, err := app.NewApp(ctx, configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize app: %v\n", err)
		os.Exit(1)
	}

	common.LoadVersionFromFile()
	common.PrintBanner(a.Config, a.Logger)

	srv := server.NewServer(a)

	go func() {
		if err := srv.Start(); err != nil {
			a.Logger.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	a.Logger.Info().
		Str("version", common.GetVersion()).
		Str("commit", common.GetGitCommit()).
		Msg("codr API server ready")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	a.Logger.Info().Msg("shutdown signal received")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		a.Logger.Error().Err(err).Msg("server shutdown failed")
	}

	a.Close()
	common.PrintShutdownBanner(a.Logger)
}
