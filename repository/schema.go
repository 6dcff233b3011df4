package repository

import (
	"context"
	"fmt"
)

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS pipeline_runs (
		id UUID PRIMARY KEY,
		tickers TEXT[] NOT NULL DEFAULT '{}',
		destination TEXT NOT NULL DEFAULT '',
		status TEXT NOT NULL,
		skipped JSONB NOT NULL DEFAULT '[]',
		rows_written INTEGER NOT NULL DEFAULT 0,
		sink_error TEXT,
		error_message TEXT,
		duration_ms INTEGER,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs (started_at DESC)`,
	`CREATE TABLE IF NOT EXISTS forecasts (
		id UUID PRIMARY KEY,
		run_id UUID NOT NULL REFERENCES pipeline_runs(id) ON DELETE CASCADE,
		position INTEGER NOT NULL,
		rank INTEGER,
		ticker TEXT NOT NULL,
		predicted_change_pct DOUBLE PRECISION NOT NULL,
		reason TEXT NOT NULL,
		forecast_date TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_forecasts_run_id ON forecasts (run_id)`,
	`CREATE INDEX IF NOT EXISTS idx_forecasts_ticker ON forecasts (ticker, created_at DESC)`,
	`CREATE TABLE IF NOT EXISTS ranked_forecasts (
		id BIGSERIAL PRIMARY KEY,
		destination TEXT NOT NULL,
		forecast_date TEXT NOT NULL,
		ticker TEXT NOT NULL,
		predicted_change_pct DOUBLE PRECISION NOT NULL,
		reason TEXT NOT NULL,
		written_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ranked_forecasts_destination ON ranked_forecasts (destination, id)`,
}

// EnsureSchema creates the tables used for run history and the postgres sink
func (r *Repository) EnsureSchema(ctx context.Context) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	for _, stmt := range schemaStatements {
		if _, err := r.db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}
