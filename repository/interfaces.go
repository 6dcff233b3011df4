package repository

import (
	"context"

	"stock-forecaster/models"

	"github.com/google/uuid"
)

// RunStore defines the run history operations used by the app and API
type RunStore interface {
	// Health and lifecycle
	Close()
	Health(ctx context.Context) error

	// Pipeline runs
	CreatePipelineRun(ctx context.Context, run *models.PipelineRun) error
	UpdatePipelineRun(ctx context.Context, run *models.PipelineRun) error
	FinishPipelineRun(ctx context.Context, run *models.PipelineRun) error
	GetPipelineRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error)
	GetLatestPipelineRun(ctx context.Context) (*models.PipelineRun, error)
	GetPipelineRuns(ctx context.Context, limit int) ([]models.PipelineRun, error)

	// Forecasts
	SaveForecasts(ctx context.Context, runID uuid.UUID, results, ranked []models.ForecastRecord) error
	GetForecastsForRun(ctx context.Context, runID uuid.UUID) (results, ranked []models.ForecastRecord, err error)

	// Postgres results sink
	AppendRows(ctx context.Context, destination string, records []models.ForecastRecord) (int, error)
	GetRankedRows(ctx context.Context, destination string, limit int) ([]models.ForecastRecord, error)
}

// Compile-time interface verification
var _ RunStore = (*Repository)(nil)
