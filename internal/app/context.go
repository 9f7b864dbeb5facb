package app

import (
	"context"

	"zipfetch/internal/domain"
	"zipfetch/internal/infra/config"
	"zipfetch/internal/infra/logger"
)

// Store is the run history surface the queue and API need without
// importing the store package.
type Store interface {
	SaveRun(run *domain.Run) error
	GetRun(id string) (*domain.Run, error)
	GetRuns() ([]*domain.Run, error)
	GetActiveRuns() ([]*domain.Run, error)
}

// Runner drives a single run through the fetch pipeline.
type Runner interface {
	Run(ctx context.Context, run *domain.Run) error
}

// Context holds the core environment and shared resources for zipfetch.
// It acts as the single source of truth for the application state.
type Context struct {
	Config *config.Config
	Logger *logger.Logger

	Store  Store
	Runner Runner
}

// NewContext initializes the base environment.
func NewContext(cfg *config.Config, log *logger.Logger) *Context {
	return &Context{
		Config: cfg,
		Logger: log,
	}
}
