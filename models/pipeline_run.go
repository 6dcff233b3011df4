package models

import (
	"time"

	"github.com/google/uuid"
)

// SkipKind classifies why a ticker produced no forecast
type SkipKind string

const (
	SkipDataUnavailable    SkipKind = "data_unavailable"
	SkipAnalysisParseError SkipKind = "analysis_parse_error"
	SkipAnalysisFailed     SkipKind = "analysis_failed"
)

// SkippedTicker records a ticker omitted from the results
type SkippedTicker struct {
	Ticker string   `json:"ticker"`
	Kind   SkipKind `json:"kind"`
	Reason string   `json:"reason"`
}

type PipelineRun struct {
	ID           uuid.UUID        `json:"id"`
	Tickers      []string         `json:"tickers"`
	Destination  string           `json:"destination,omitempty"`
	Status       RunStatus        `json:"status"`
	Results      []ForecastRecord `json:"results"`
	Ranked       []ForecastRecord `json:"ranked"`
	Skipped      []SkippedTicker  `json:"skipped"`
	RowsWritten  int              `json:"rows_written"`
	SinkError    string           `json:"sink_error,omitempty"`
	ErrorMessage string           `json:"error_message,omitempty"`
	DurationMs   int              `json:"duration_ms"`
	StartedAt    time.Time        `json:"started_at"`
	CompletedAt  *time.Time       `json:"completed_at,omitempty"`
}

type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusFailed    RunStatus = "failed"
)

func NewPipelineRun(tickers []string, destination string) *PipelineRun {
	return &PipelineRun{
		ID:          uuid.New(),
		Tickers:     tickers,
		Destination: destination,
		Status:      RunStatusRunning,
		StartedAt:   time.Now(),
	}
}

// Processed returns the number of tickers that left the pending list
func (r *PipelineRun) Processed() int {
	return len(r.Results) + len(r.Skipped)
}

func (r *PipelineRun) Complete(results, ranked []ForecastRecord, skipped []SkippedTicker) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = RunStatusCompleted
	r.Results = results
	r.Ranked = ranked
	r.Skipped = skipped
	r.DurationMs = int(now.Sub(r.StartedAt).Milliseconds())
}

func (r *PipelineRun) Fail(err error) {
	now := time.Now()
	r.CompletedAt = &now
	r.Status = RunStatusFailed
	r.ErrorMessage = err.Error()
	r.DurationMs = int(now.Sub(r.StartedAt).Milliseconds())
}
