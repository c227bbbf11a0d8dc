package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/api"
	"github.com/chrisx599/ChatEmail/internal/app"
	"github.com/chrisx599/ChatEmail/internal/metrics"
	"github.com/chrisx599/ChatEmail/pkg/config"
	appLogger "github.com/chrisx599/ChatEmail/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting ChatEmail API server")

	metrics.Init()

	a, err := app.New(context.Background(), cfg)
	if err != nil {
		appLogger.Fatal("Failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := a.Close(); err != nil {
			appLogger.Warn("Failed to close application cleanly", zap.Error(err))
		}
	}()

	if snap, ok := a.Orchestrator.LoadCached(context.Background()); ok {
		appLogger.Info("Restored cached batch", zap.Int("emails", len(snap.AnalyzedEmails)))
	}

	server, stop := api.NewRouter(cfg, api.Deps{
		Fetcher: a.Fetcher,
		Emails:  a.Cache.Emails,
		Runner:  a.Orchestrator,
		Cache:   a.Cache,
		Store:   a,
	})
	defer stop()

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := server.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	if err := server.ShutdownWithTimeout(30 * time.Second); err != nil {
		appLogger.Warn("Server shutdown incomplete", zap.Error(err))
	}
	appLogger.Info("Server stopped")
}
