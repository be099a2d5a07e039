// Package internal contains core application functionality
package internal

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"funnelscope/internal/config"
	"funnelscope/internal/database"
	"funnelscope/internal/jobs"
	"funnelscope/internal/logging"
)

// Application bundles the HTTP server, the database and the background
// jobs behind one lifecycle.
type Application struct {
	Config    *config.Config
	Logger    *slog.Logger
	DBManager *database.DBManager
	Scheduler *jobs.Scheduler

	fiberApp *fiber.App
}

// NewApp creates a new application instance with default settings
func NewApp() (*Application, error) {
	cfg := config.GetConfig()
	return NewAppWithConfig(cfg)
}

// NewAppWithConfig creates a new application with the provided config
func NewAppWithConfig(cfg *config.Config) (*Application, error) {
	logger := logging.NewLogger(cfg)
	slog.SetDefault(logger)

	dbManager := database.NewDBManager(cfg, logger)
	if err := dbManager.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	scheduler, err := jobs.NewScheduler(dbManager, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize jobs: %w", err)
	}

	app := fiber.New(fiber.Config{
		AppName:               cfg.AppName,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())

	MountRoutes(app, cfg, logger, dbManager.GetConnection(), scheduler)

	return &Application{
		Config:    cfg,
		Logger:    logger,
		DBManager: dbManager,
		Scheduler: scheduler,
		fiberApp:  app,
	}, nil
}

// Fiber returns the underlying fiber app, mainly for tests.
func (a *Application) Fiber() *fiber.App {
	return a.fiberApp
}

// StartAsync starts the background jobs and the HTTP listener without
// blocking the caller.
func (a *Application) StartAsync() error {
	if err := a.Scheduler.Start(); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	go func() {
		addr := ":" + a.Config.GetPort()
		a.Logger.Info("HTTP server listening", slog.String("addr", addr))
		if err := a.fiberApp.Listen(addr); err != nil {
			a.Logger.Error("HTTP server stopped", slog.Any("error", err))
		}
	}()

	return nil
}

// Shutdown stops the jobs, drains the HTTP server and closes the database.
func (a *Application) Shutdown(ctx context.Context) error {
	a.Scheduler.Stop()

	if err := a.fiberApp.ShutdownWithContext(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}

	if err := a.DBManager.CheckpointWAL("TRUNCATE"); err != nil {
		a.Logger.Warn("WAL checkpoint on shutdown failed", slog.Any("error", err))
	}

	if db := a.DBManager.GetConnection(); db != nil {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	}

	return nil
}
