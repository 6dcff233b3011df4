package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"stock-forecaster/models"
	"stock-forecaster/observability"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const pipelineRunColumns = `id, tickers, destination, status, skipped, rows_written, sink_error,
	error_message, duration_ms, started_at, completed_at`

// CreatePipelineRun inserts a run in its initial state
func (r *Repository) CreatePipelineRun(ctx context.Context, run *models.PipelineRun) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("insert", "pipeline_runs")

	skipped, err := json.Marshal(nonNilSkipped(run.Skipped))
	if err != nil {
		return fmt.Errorf("failed to marshal skipped tickers: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		INSERT INTO pipeline_runs (id, tickers, destination, status, skipped, started_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, run.ID, nonNilStrings(run.Tickers), run.Destination, run.Status, skipped, run.StartedAt)
	if err != nil {
		metrics.RecordDBError("insert", "pipeline_runs")
		return fmt.Errorf("failed to create pipeline run: %w", err)
	}
	return nil
}

// UpdatePipelineRun stores the final status of a run
func (r *Repository) UpdatePipelineRun(ctx context.Context, run *models.PipelineRun) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("update", "pipeline_runs")

	skipped, err := json.Marshal(nonNilSkipped(run.Skipped))
	if err != nil {
		return fmt.Errorf("failed to marshal skipped tickers: %w", err)
	}

	_, err = r.db.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, skipped = $3, rows_written = $4, sink_error = NULLIF($5, ''),
			error_message = NULLIF($6, ''), duration_ms = $7, completed_at = $8
		WHERE id = $1
	`, run.ID, run.Status, skipped, run.RowsWritten, run.SinkError, run.ErrorMessage, run.DurationMs, run.CompletedAt)
	if err != nil {
		metrics.RecordDBError("update", "pipeline_runs")
		return fmt.Errorf("failed to update pipeline run: %w", err)
	}
	return nil
}

// FinishPipelineRun updates the run and stores its forecasts in one transaction
func (r *Repository) FinishPipelineRun(ctx context.Context, run *models.PipelineRun) error {
	tx, txRepo, err := r.BeginTx(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := txRepo.UpdatePipelineRun(ctx, run); err != nil {
		return err
	}
	if err := txRepo.SaveForecasts(ctx, run.ID, run.Results, run.Ranked); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pipeline run: %w", err)
	}
	return nil
}

// GetPipelineRun returns a run with its forecasts, or nil if it does not exist
func (r *Repository) GetPipelineRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()

	row := r.db.QueryRow(ctx, `SELECT `+pipelineRunColumns+` FROM pipeline_runs WHERE id = $1`, id)
	run, err := scanPipelineRun(row)
	timer.ObserveDB("select", "pipeline_runs")
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		metrics.RecordDBError("select", "pipeline_runs")
		return nil, fmt.Errorf("failed to query pipeline run: %w", err)
	}

	if err := r.attachForecasts(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetLatestPipelineRun returns the most recently started run, or nil if none exist
func (r *Repository) GetLatestPipelineRun(ctx context.Context) (*models.PipelineRun, error) {
	runs, err := r.GetPipelineRuns(ctx, 1)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	run := &runs[0]
	if err := r.attachForecasts(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// GetPipelineRuns returns the most recent runs without their forecasts
func (r *Repository) GetPipelineRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "pipeline_runs")

	rows, err := r.db.Query(ctx, `
		SELECT `+pipelineRunColumns+`
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT $1
	`, limit)
	if err != nil {
		metrics.RecordDBError("select", "pipeline_runs")
		return nil, fmt.Errorf("failed to query pipeline runs: %w", err)
	}
	defer rows.Close()

	runs := []models.PipelineRun{}
	for rows.Next() {
		run, err := scanPipelineRun(rows)
		if err != nil {
			metrics.RecordDBError("select", "pipeline_runs")
			return nil, fmt.Errorf("failed to scan pipeline run: %w", err)
		}
		runs = append(runs, *run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read pipeline runs: %w", err)
	}
	return runs, nil
}

func (r *Repository) attachForecasts(ctx context.Context, run *models.PipelineRun) error {
	results, ranked, err := r.GetForecastsForRun(ctx, run.ID)
	if err != nil {
		return err
	}
	run.Results = results
	run.Ranked = ranked
	return nil
}

func scanPipelineRun(row pgx.Row) (*models.PipelineRun, error) {
	var run models.PipelineRun
	var skipped []byte
	var sinkError, errorMessage *string
	var durationMs *int

	err := row.Scan(&run.ID, &run.Tickers, &run.Destination, &run.Status, &skipped, &run.RowsWritten,
		&sinkError, &errorMessage, &durationMs, &run.StartedAt, &run.CompletedAt)
	if err != nil {
		return nil, err
	}

	if sinkError != nil {
		run.SinkError = *sinkError
	}
	if errorMessage != nil {
		run.ErrorMessage = *errorMessage
	}
	if durationMs != nil {
		run.DurationMs = *durationMs
	}
	run.Skipped = []models.SkippedTicker{}
	if len(skipped) > 0 {
		if err := json.Unmarshal(skipped, &run.Skipped); err != nil {
			return nil, fmt.Errorf("failed to unmarshal skipped tickers: %w", err)
		}
	}
	run.Results = []models.ForecastRecord{}
	run.Ranked = []models.ForecastRecord{}
	return &run, nil
}

func nonNilSkipped(s []models.SkippedTicker) []models.SkippedTicker {
	if s == nil {
		return []models.SkippedTicker{}
	}
	return s
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
