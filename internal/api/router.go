package api

import (
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"

	"github.com/chrisx599/ChatEmail/internal/api/handlers"
	"github.com/chrisx599/ChatEmail/internal/metrics"
	"github.com/chrisx599/ChatEmail/internal/middleware/ratelimit"
	"github.com/chrisx599/ChatEmail/internal/middleware/security"
	"github.com/chrisx599/ChatEmail/internal/middleware/validation"
	"github.com/chrisx599/ChatEmail/pkg/config"
	"github.com/chrisx599/ChatEmail/pkg/logger"
)

const Version = "1.0.0"

type Deps struct {
	Fetcher handlers.EmailFetcher
	Emails  handlers.EmailStore
	Runner  handlers.BatchRunner
	Cache   handlers.CacheAdmin
	Store   handlers.Pinger
}

// NewRouter builds the HTTP application. The returned stop function
// releases background resources held by the middleware.
func NewRouter(cfg *config.Config, deps Deps) (*fiber.App, func()) {
	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		MaxRequestsPerMinute: cfg.Server.MaxRequestsPerMinute,
		Logger:               logger.Named("ratelimit"),
	})

	app.Use(recover.New())
	if cfg.Server.Development {
		app.Use(fiberlogger.New())
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: strings.Join(cfg.Server.AllowedOrigins, ", "),
		AllowHeaders: "Origin, Content-Type, Accept, X-Client-ID",
		AllowMethods: "GET, POST, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		IsDevelopment:  cfg.Server.Development,
	}))

	health := handlers.NewHealthHandler(deps.Store, Version)
	app.Get("/health", health.Health)
	app.Get("/ready", health.Ready)
	app.Get("/metrics", metrics.MetricsHandler())

	emailHandler := handlers.NewEmailHandler(deps.Fetcher, deps.Emails)
	batchHandler := handlers.NewBatchHandler(deps.Runner, deps.Emails)
	exportHandler := handlers.NewExportHandler(deps.Runner, cfg.Export.Dir, cfg.Export.FilenamePrefix)
	cacheHandler := handlers.NewCacheHandler(deps.Cache)
	limits := validation.Config{
		MaxEmails: cfg.Batch.MaxEmails,
		Logger:    logger.Named("validation"),
	}
	wsHandler := handlers.NewWebSocketHandler(deps.Runner, deps.Emails, limits)

	api := app.Group("/api/v1",
		limiter.Middleware(),
		validation.Middleware(limits),
	)

	api.Post("/emails/fetch", emailHandler.FetchEmails)
	api.Get("/emails", emailHandler.ListEmails)

	api.Post("/batch/analyze", batchHandler.Analyze)
	api.Get("/batch/report", batchHandler.Report)

	api.Get("/export/:format", exportHandler.Export)

	api.Get("/cache/status", cacheHandler.Status)
	api.Delete("/cache", cacheHandler.ClearAll)
	api.Delete("/cache/:collection", cacheHandler.ClearCollection)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/batch", websocket.New(wsHandler.HandleConnection))

	return app, limiter.Stop
}
