// Package internal wires the application together.
package internal

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"

	"lantern/internal/config"
	"lantern/internal/geo"
	lanternhttp "lantern/internal/http"
	"lantern/internal/ingest"
	"lantern/internal/jobs"
	"lantern/internal/logger"
	"lantern/internal/pipeline"
	"lantern/internal/stats"
)

// Application holds the assembled service.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	Fiber     *fiber.App
	Geo       *geo.Service // nil in disabled mode
	scheduler *jobs.Scheduler
}

// NewApp creates a new application instance with default settings
func NewApp() *Application {
	return NewAppWithConfig(config.GetConfig())
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) *Application {
	log := logger.New(cfg)

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
		ErrorHandler:          jsonErrorHandler,
	})

	handlers := Handlers{AnalyticsEnabled: cfg.AnalyticsEnabled()}

	var geoService *geo.Service
	var scheduler *jobs.Scheduler

	if cfg.AnalyticsEnabled() {
		store := pipeline.NewClient(cfg.PipelineURL(), cfg.DatabaseAuthToken, nil, log)
		geoService = geo.NewService(cfg, log)

		handlers.Track = lanternhttp.NewCollectHandler(
			ingest.NewService(store, geoService, cfg.PrivateKey, ingest.SessionsMapping{}, log), log)
		handlers.Metrics = lanternhttp.NewCollectHandler(
			ingest.NewService(store, geoService, cfg.PrivateKey, ingest.UpsertMapping{}, log), log)
		handlers.Events = lanternhttp.NewCollectHandler(
			ingest.NewService(store, geoService, cfg.PrivateKey, ingest.FlatMapping{}, log), log)
		handlers.Stats = lanternhttp.NewStatsHandler(stats.NewService(store, log), log)

		scheduler = jobs.NewScheduler(cfg, geoService, log)
	} else {
		log.Warn("No database URL configured, running in disabled mode")

		handlers.Track = lanternhttp.NewCollectHandler(ingest.Disabled{}, log)
		handlers.Metrics = lanternhttp.NewCollectHandler(ingest.Disabled{}, log)
		handlers.Events = lanternhttp.NewCollectHandler(ingest.Disabled{}, log)
		handlers.Stats = lanternhttp.NewStatsHandler(nil, log)
	}

	MountRoutes(app, handlers)

	return &Application{
		Config:    cfg,
		Logger:    log,
		Fiber:     app,
		Geo:       geoService,
		scheduler: scheduler,
	}
}

// Run starts the background jobs and blocks serving HTTP traffic.
func (a *Application) Run() error {
	if a.scheduler != nil {
		a.scheduler.Start()
		defer a.scheduler.Stop()
	}

	a.Logger.Info("Listening",
		slog.String("port", a.Config.AppPort),
		slog.Bool("analytics", a.Config.AnalyticsEnabled()))
	return a.Fiber.Listen(":" + a.Config.AppPort)
}

// Shutdown stops background jobs and drains in-flight requests.
func (a *Application) Shutdown() error {
	if a.scheduler != nil {
		a.scheduler.Stop()
	}
	return a.Fiber.Shutdown()
}

// jsonErrorHandler keeps router-level failures (404, 405, body limits) in the
// same JSON shape the handlers use.
func jsonErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	message := "Internal Server Error"

	var fiberErr *fiber.Error
	if errors.As(err, &fiberErr) {
		code = fiberErr.Code
		message = fiberErr.Message
	}

	return c.Status(code).JSON(fiber.Map{"error": message})
}
