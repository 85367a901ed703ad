// Package app wires together the shared core used by cmd/api-server:
// config, logging, broker, stores, and every HTTP-facing service.
// Grounded on the teacher's internal/app/app.go (NewApp/Close shape,
// config-path resolution, startup-time logging) re-pointed at codr's
// broker-backed services instead of the market-data/storage stack.
package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/codr-run/codr/internal/admission"
	"github.com/codr-run/codr/internal/broker"
	"github.com/codr-run/codr/internal/common"
	"github.com/codr-run/codr/internal/jobstore"
	"github.com/codr-run/codr/internal/resultsvc"
	"github.com/codr-run/codr/internal/stream"
	"github.com/codr-run/codr/internal/streamtoken"
	"github.com/codr-run/codr/internal/submission"
)

// App holds every initialized component shared by the API server's HTTP
// handlers.
type App struct {
	Config *common.Config
	Logger *common.Logger

	Broker     *broker.RedisBroker
	JobStore   *jobstore.Store
	Gateway    *admission.Gateway
	Submission *submission.Service
	Results    *resultsvc.Service
	Tokens     *streamtoken.Service
	Stream     *stream.Hub

	StartupTime time.Time
}

func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, logging, the broker connection, and
// every component in front of it. configPath may be empty, in which
// case the default resolution logic below is used.
func NewApp(ctx context.Context, configPath string) (*App, error) {
	startupStart := time.Now()

	common.LoadVersionFromFile()
	binDir := getBinaryDir()

	if configPath == "" {
		configPath = os.Getenv("CODR_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "codr.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/codr.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Logging.FilePath != "" && !filepath.IsAbs(config.Logging.FilePath) {
		config.Logging.FilePath = filepath.Join(binDir, config.Logging.FilePath)
	}

	logger := common.NewLogger(config.Logging.Level)

	b, err := broker.New(ctx, config.Broker.Addr, config.Broker.Password, config.Broker.DB, config.Broker.PoolSize, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to broker: %w", err)
	}

	store := jobstore.New(b, logger)

	rateLimiter := admission.NewRateLimiter(b, config.Admission.IPLimitPerMin, config.Admission.KeyLimitPerMin, []byte(config.Auth.JWTSecret))
	gateway := admission.NewGateway(config.Auth.APIKey, rateLimiter, b, config.Admission.ScreeningOn)

	submissionSvc := submission.New(gateway, store, b, logger, nil)
	resultsSvc := resultsvc.New(store, b, logger, nil)
	tokenSvc := streamtoken.New([]byte(config.Auth.JWTSecret), config.Auth.GetStreamTokenTTL())
	hub := stream.New(b, resultsSvc, tokenSvc, logger)

	a := &App{
		Config:      config,
		Logger:      logger,
		Broker:      b,
		JobStore:    store,
		Gateway:     gateway,
		Submission:  submissionSvc,
		Results:     resultsSvc,
		Tokens:      tokenSvc,
		Stream:      hub,
		StartupTime: startupStart,
	}

	logger.Info().Dur("startup", time.Since(startupStart)).Msg("app initialized")

	return a, nil
}

// Close releases all resources held by the App.
func (a *App) Close() {
	if a.Stream != nil {
		a.Stream.Shutdown()
	}
	if a.Broker != nil {
		a.Broker.Close()
	}
}
