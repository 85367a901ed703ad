// Command autoscaler runs the Autoscaler (C9): it watches queue depth and
// job-submission notifications and demand-starts worker machines on the
// control plane when a language's queue goes non-empty.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/codr-run/codr/internal/autoscaler"
	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/controlplane"
)

func main() {
	configPath := os.Getenv("CODR_CONFIG")
	config, err := common.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	logger := common.NewLogger(config.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	b, err := broker.New(ctx, config.Broker.Addr, config.Broker.Password, config.Broker.DB, config.Broker.PoolSize, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to broker")
	}
	defer b.Close()

	cp := controlplane.New(
		config.ControlPlane.BaseURL,
		config.ControlPlane.Token,
		controlplane.WithLogger(logger),
		controlplane.WithRateLimit(config.ControlPlane.RateLimit),
		controlplane.WithTimeout(config.ControlPlane.GetTimeout()),
	)

	apps := make(autoscaler.LanguageApp, len(config.Languages))
	for lang, cfg := range config.Languages {
		apps[lang] = cfg.App
	}

	a := autoscaler.New(b, cp, apps, logger)

	logger.Info().Int("languages", len(apps)).Msg("autoscaler starting")

	if err := a.Run(ctx); err != nil {
		logger.Fatal().Err(err).Msg("autoscaler exited with error")
	}

	logger.Info().Msg("autoscaler stopped")
}
