package app

import (
	"context"
	"fmt"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/vpio/server/internal/infra/config"
	"github.com/vpio/server/internal/infra/task"
)

// App represents the application.
type App struct {
	config *config.Config
	router *gin.Engine
	tasks  *task.Manager
	logger *zap.Logger
}

// NewApp assembles the application from its wired parts.
func NewApp(cfg *config.Config, router *gin.Engine, tasks *task.Manager, log *zap.Logger) *App {
	return &App{
		config: cfg,
		router: router,
		tasks:  tasks,
		logger: log,
	}
}

// Config returns the loaded configuration.
func (a *App) Config() *config.Config {
	return a.config
}

// Router returns the HTTP handler.
func (a *App) Router() *gin.Engine {
	return a.router
}

// Logger returns the process logger.
func (a *App) Logger() *zap.Logger {
	return a.logger
}

// Start launches the background jobs.
func (a *App) Start(ctx context.Context) error {
	if err := a.tasks.Start(ctx); err != nil {
		return fmt.Errorf("start tasks: %w", err)
	}
	return nil
}

// Stop stops the background jobs and waits for running ticks.
func (a *App) Stop() {
	a.tasks.Stop()
	_ = a.logger.Sync()
}

// LoadConfig loads application configuration.
func LoadConfig() (*config.Config, error) {
	return config.Load()
}
