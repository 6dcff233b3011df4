package app

import (
	"context"
	"errors"
	"fmt"

	"stock-forecaster/agents"
	"stock-forecaster/config"
	"stock-forecaster/models"
	"stock-forecaster/observability"
	"stock-forecaster/pipeline"
	"stock-forecaster/repository"

	"github.com/google/uuid"
)

var (
	// ErrDatabaseUnavailable is returned by run history lookups without a database
	ErrDatabaseUnavailable = errors.New("database not initialized")
	// ErrNoTickers is returned when a run has nothing left after normalization
	ErrNoTickers = errors.New("no tickers to process")
	// ErrBusy is returned when every run slot is taken
	ErrBusy = errors.New("run queue full, too many concurrent runs - try again later")
)

// PipelineRunner runs the forecast state machine over a ticker list
type PipelineRunner interface {
	Run(ctx context.Context, tickers []string, destination string) (pipeline.PipelineState, error)
}

// HealthChecker reports whether the market data provider is reachable
type HealthChecker interface {
	Health(ctx context.Context) agents.ProviderHealth
}

// App holds application dependencies using interfaces for testability
type App struct {
	cfg    *config.Config
	repo   repository.RunStore
	runner PipelineRunner
	health HealthChecker
	runSem chan struct{}
}

// New creates a new App. repo and health may be nil.
func New(cfg *config.Config, repo repository.RunStore, runner PipelineRunner, health HealthChecker) *App {
	limit := cfg.Pipeline.ConcurrencyLimit
	if limit <= 0 {
		limit = 1
	}
	return &App{
		cfg:    cfg,
		repo:   repo,
		runner: runner,
		health: health,
		runSem: make(chan struct{}, limit),
	}
}

// Config returns the application configuration
func (a *App) Config() *config.Config {
	return a.cfg
}

// Repo returns the run store, or nil without a database
func (a *App) Repo() repository.RunStore {
	return a.repo
}

// Shutdown releases the database pool
func (a *App) Shutdown() {
	if a.repo != nil {
		a.repo.Close()
	}
}

// DefaultDestination is the destination used when a run names none
func (a *App) DefaultDestination() string {
	return a.cfg.Output.Destination
}

// RunPipeline normalizes tickers, runs the pipeline and records the run when
// a database is configured. Per-ticker skips and sink failures are part of a
// completed run; only cancellation or a stuck controller fails it.
func (a *App) RunPipeline(ctx context.Context, tickers []string, destination string) (*models.PipelineRun, error) {
	if a.runner == nil {
		return nil, fmt.Errorf("pipeline not initialized")
	}

	tickers = models.NormalizeTickers(tickers)
	if len(tickers) == 0 {
		return nil, ErrNoTickers
	}

	select {
	case a.runSem <- struct{}{}:
		defer func() { <-a.runSem }()
	default:
		return nil, ErrBusy
	}

	run := models.NewPipelineRun(tickers, destination)
	logger := observability.WithRun(run.ID.String())
	logger.Info("pipeline run started", "tickers", len(tickers), "destination", destination)

	if a.repo != nil {
		if err := a.repo.CreatePipelineRun(ctx, run); err != nil {
			logger.Warn("failed to record pipeline run", "error", err)
		}
	}

	state, runErr := a.runner.Run(ctx, tickers, destination)
	if runErr != nil {
		run.Results = state.Results
		run.Skipped = state.Skipped
		run.Fail(runErr)
	} else {
		run.Complete(state.Results, state.Ranked, state.Skipped)
	}
	if state.Sink != nil {
		run.RowsWritten = state.Sink.Written
		run.SinkError = state.Sink.Error
	}

	if a.repo != nil {
		// a cancelled request still gets its run recorded
		if err := a.repo.FinishPipelineRun(context.WithoutCancel(ctx), run); err != nil {
			logger.Warn("failed to save pipeline run", "error", err)
		}
	}

	if runErr != nil {
		logger.Warn("pipeline run failed", "error", runErr)
		return run, runErr
	}
	logger.Info("pipeline run completed",
		"forecasts", len(run.Results),
		"skipped", len(run.Skipped),
		"ranked", len(run.Ranked),
		"rows_written", run.RowsWritten)
	return run, nil
}

// GetRuns returns recent pipeline runs, newest first
func (a *App) GetRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	if a.repo == nil {
		return nil, ErrDatabaseUnavailable
	}
	return a.repo.GetPipelineRuns(ctx, limit)
}

// GetRun returns a run by ID with its forecasts, or nil when not found
func (a *App) GetRun(ctx context.Context, id string) (*models.PipelineRun, error) {
	if a.repo == nil {
		return nil, ErrDatabaseUnavailable
	}

	runID, err := ParseUUID(id)
	if err != nil {
		return nil, err
	}

	return a.repo.GetPipelineRun(ctx, runID)
}

// GetLatestRun returns the most recent run, or nil when there is none
func (a *App) GetLatestRun(ctx context.Context) (*models.PipelineRun, error) {
	if a.repo == nil {
		return nil, ErrDatabaseUnavailable
	}
	return a.repo.GetLatestPipelineRun(ctx)
}

// GetRankedRows returns the rows the postgres sink stored for a destination
func (a *App) GetRankedRows(ctx context.Context, destination string, limit int) ([]models.ForecastRecord, error) {
	if a.repo == nil {
		return nil, ErrDatabaseUnavailable
	}
	return a.repo.GetRankedRows(ctx, destination, limit)
}

// DatabaseHealth pings the database. It returns ErrDatabaseUnavailable
// when no database is configured.
func (a *App) DatabaseHealth(ctx context.Context) error {
	if a.repo == nil {
		return ErrDatabaseUnavailable
	}
	return a.repo.Health(ctx)
}

// ProviderHealth probes the market data provider. ok is false when no
// checker is configured.
func (a *App) ProviderHealth(ctx context.Context) (health agents.ProviderHealth, ok bool) {
	if a.health == nil {
		return agents.ProviderHealth{}, false
	}
	return a.health.Health(ctx), true
}

// ParseUUID parses a string run ID
func ParseUUID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, fmt.Errorf("invalid UUID: %w", err)
	}
	return parsed, nil
}

// RunSemCapacity returns the capacity of the run semaphore (for testing)
func (a *App) RunSemCapacity() int {
	return cap(a.runSem)
}
