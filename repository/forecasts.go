package repository

import (
	"context"
	"fmt"

	"stock-forecaster/models"
	"stock-forecaster/observability"

	"github.com/google/uuid"
)

// SaveForecasts stores every forecast of a run in arrival order and marks
// the ranked ones with their 1-based rank.
func (r *Repository) SaveForecasts(ctx context.Context, runID uuid.UUID, results, ranked []models.ForecastRecord) error {
	if err := r.checkDB(); err != nil {
		return err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("insert", "forecasts")

	ranks := make(map[uuid.UUID]int, len(ranked))
	for i, rec := range ranked {
		ranks[rec.ID] = i + 1
	}

	for i, rec := range results {
		id := rec.ID
		if id == uuid.Nil {
			id = uuid.New()
		}
		var rank *int
		if n, ok := ranks[rec.ID]; ok && rec.ID != uuid.Nil {
			rank = &n
		}

		_, err := r.db.Exec(ctx, `
			INSERT INTO forecasts (id, run_id, position, rank, ticker, predicted_change_pct, reason, forecast_date, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		`, id, runID, i, rank, rec.Ticker, rec.PredictedChangePct, rec.Reason, rec.Date, rec.CreatedAt)
		if err != nil {
			metrics.RecordDBError("insert", "forecasts")
			return fmt.Errorf("failed to save forecast for %s: %w", rec.Ticker, err)
		}
	}
	return nil
}

// GetForecastsForRun returns a run's forecasts in arrival order and its
// ranked forecasts in rank order.
func (r *Repository) GetForecastsForRun(ctx context.Context, runID uuid.UUID) (results, ranked []models.ForecastRecord, err error) {
	if err := r.checkDB(); err != nil {
		return nil, nil, err
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "forecasts")

	rows, err := r.db.Query(ctx, `
		SELECT id, rank, ticker, predicted_change_pct, reason, forecast_date, created_at
		FROM forecasts
		WHERE run_id = $1
		ORDER BY position
	`, runID)
	if err != nil {
		metrics.RecordDBError("select", "forecasts")
		return nil, nil, fmt.Errorf("failed to query forecasts: %w", err)
	}
	defer rows.Close()

	results = []models.ForecastRecord{}
	byRank := map[int]models.ForecastRecord{}
	for rows.Next() {
		var rec models.ForecastRecord
		var rank *int
		if err := rows.Scan(&rec.ID, &rank, &rec.Ticker, &rec.PredictedChangePct, &rec.Reason, &rec.Date, &rec.CreatedAt); err != nil {
			metrics.RecordDBError("select", "forecasts")
			return nil, nil, fmt.Errorf("failed to scan forecast: %w", err)
		}
		results = append(results, rec)
		if rank != nil {
			byRank[*rank] = rec
		}
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("failed to read forecasts: %w", err)
	}

	ranked = make([]models.ForecastRecord, 0, len(byRank))
	for i := 1; i <= len(byRank); i++ {
		if rec, ok := byRank[i]; ok {
			ranked = append(ranked, rec)
		}
	}
	return results, ranked, nil
}

// AppendRows implements the postgres results sink. Rows are inserted one at
// a time so a failure part way reports how many were stored.
func (r *Repository) AppendRows(ctx context.Context, destination string, records []models.ForecastRecord) (int, error) {
	if err := r.checkDB(); err != nil {
		return 0, err
	}
	metrics := observability.GetMetrics()

	written := 0
	for _, rec := range records {
		timer := metrics.NewTimer()
		_, err := r.db.Exec(ctx, `
			INSERT INTO ranked_forecasts (destination, forecast_date, ticker, predicted_change_pct, reason)
			VALUES ($1, $2, $3, $4, $5)
		`, destination, rec.Date, rec.Ticker, rec.PredictedChangePct, rec.Reason)
		timer.ObserveDB("insert", "ranked_forecasts")
		if err != nil {
			metrics.RecordDBError("insert", "ranked_forecasts")
			return written, fmt.Errorf("failed to append %s: %w", rec.Ticker, err)
		}
		written++
	}
	return written, nil
}

// GetRankedRows returns the rows written to a destination, oldest first
func (r *Repository) GetRankedRows(ctx context.Context, destination string, limit int) ([]models.ForecastRecord, error) {
	if err := r.checkDB(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	defer timer.ObserveDB("select", "ranked_forecasts")

	rows, err := r.db.Query(ctx, `
		SELECT forecast_date, ticker, predicted_change_pct, reason, written_at
		FROM ranked_forecasts
		WHERE destination = $1
		ORDER BY id
		LIMIT $2
	`, destination, limit)
	if err != nil {
		metrics.RecordDBError("select", "ranked_forecasts")
		return nil, fmt.Errorf("failed to query ranked rows: %w", err)
	}
	defer rows.Close()

	out := []models.ForecastRecord{}
	for rows.Next() {
		var rec models.ForecastRecord
		if err := rows.Scan(&rec.Date, &rec.Ticker, &rec.PredictedChangePct, &rec.Reason, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan ranked row: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
