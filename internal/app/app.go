// Package app assembles the long-lived components shared by the HTTP server
// and the command line tool.
package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/chrisx599/ChatEmail/internal/batch"
	"github.com/chrisx599/ChatEmail/internal/cache"
	redismemo "github.com/chrisx599/ChatEmail/internal/cache/redis"
	"github.com/chrisx599/ChatEmail/internal/llm"
	"github.com/chrisx599/ChatEmail/internal/mail"
	"github.com/chrisx599/ChatEmail/internal/storage/sqlite"
	"github.com/chrisx599/ChatEmail/pkg/config"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

type App struct {
	Config *config.Config
	// Store is nil when the local store could not be opened.
	Store        *sqlite.Client
	Cache        *cache.Manager
	LLM          *llm.Client
	Orchestrator *batch.Orchestrator
	Fetcher      *mail.Fetcher

	provider *sqlite.Provider
	memo     *redismemo.Client
	storeErr error
}

// New builds every component from cfg. A local store that cannot be opened
// is logged and the app runs without persistence: reads miss and writes
// fail. A configured but unreachable redis is logged and skipped.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	a := &App{
		Config:   cfg,
		Fetcher:  mail.NewFetcher(cfg.IMAP),
		provider: sqlite.NewProvider(cfg.SQLite.Path),
	}

	var store cache.Store
	client, err := a.provider.Acquire(ctx)
	if err != nil {
		a.storeErr = fmt.Errorf("failed to open local store: %w", err)
		logger.Warn("Local store unavailable, continuing without cache",
			zap.String("sqlite_path", cfg.SQLite.Path),
			zap.Error(err),
		)
		store = cache.Unavailable(err)
	} else {
		a.Store = client
		store = client
	}
	a.Cache = cache.NewManager(store, cache.WithLogger(logger.Named("cache")))

	a.LLM = llm.NewClient(llm.Options{
		APIKey:            cfg.LLM.APIKey,
		BaseURL:           cfg.LLM.BaseURL,
		Model:             cfg.LLM.Model,
		Temperature:       cfg.LLM.Temperature,
		MaxTokens:         cfg.LLM.MaxTokens,
		Timeout:           time.Duration(cfg.LLM.TimeoutSec) * time.Second,
		OutputLanguage:    cfg.LLM.OutputLanguage,
		MaxBodyChars:      cfg.LLM.MaxBodyChars,
		RequestsPerSecond: cfg.LLM.RequestsPerSecond,
	})

	var analyzer batch.Analyzer = a.LLM
	if cfg.Redis.Enabled {
		memo, err := redismemo.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			logger.Warn("Redis unavailable, analyses will not be shared", zap.Error(err))
		} else {
			a.memo = memo
			scope := redismemo.Scope{Model: a.LLM.Model(), Language: cfg.LLM.OutputLanguage}
			analyzer = redismemo.NewMemoAnalyzer(memo, a.LLM, scope, cfg.ReportTTL())
		}
	}

	a.Orchestrator = batch.New(analyzer, a.LLM, batch.StoresFrom(a.Cache), batch.Config{
		MaxConcurrency: cfg.Batch.MaxConcurrency,
		ItemTimeout:    cfg.ItemTimeout(),
	})

	logger.Info("Application initialized",
		zap.String("sqlite_path", cfg.SQLite.Path),
		zap.Bool("persistent", a.Store != nil),
		zap.String("model", a.LLM.Model()),
		zap.Bool("redis", a.memo != nil),
		zap.Bool("mailbox_configured", a.Fetcher.Configured()),
	)
	return a, nil
}

// InvalidateMemo drops shared analyses. It reports 0 when redis is not in use.
func (a *App) InvalidateMemo(ctx context.Context) (int, error) {
	if a.memo == nil {
		return 0, nil
	}
	return a.memo.InvalidateAnalyses(ctx)
}

// Ping reports whether the local store is open and answering.
func (a *App) Ping() error {
	if a.Store == nil {
		return a.storeErr
	}
	return a.Store.Ping()
}

func (a *App) Close() error {
	var errs []error
	if a.memo != nil {
		errs = append(errs, a.memo.Close())
	}
	errs = append(errs, a.provider.Release(), a.provider.Close())
	return errors.Join(errs...)
}
