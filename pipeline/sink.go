package pipeline

import (
	"context"
	"fmt"
	"time"

	"stock-forecaster/models"
	"stock-forecaster/observability"
	"stock-forecaster/services"
)

// RowAppender appends forecast rows to a destination and returns how many
// rows were stored, even on error.
type RowAppender interface {
	AppendRows(ctx context.Context, destination string, records []models.ForecastRecord) (int, error)
}

// Sink persists the ranked forecasts
type Sink interface {
	Write(ctx context.Context, records []models.ForecastRecord, destination string) SinkReport
}

// SinkReport describes what the sink did. Err is an *OutputWriteError.
type SinkReport struct {
	Sink        string `json:"sink"`
	Destination string `json:"destination,omitempty"`
	Written     int    `json:"written"`
	Skipped     bool   `json:"skipped"`
	Error       string `json:"error,omitempty"`
	Err         error  `json:"-"`
}

// Failed reports whether the write failed
func (r SinkReport) Failed() bool {
	return r.Err != nil || r.Error != ""
}

// Summary is a one-line description for console output
func (r SinkReport) Summary() string {
	switch {
	case r.Skipped:
		return "nothing written (no destination)"
	case r.Failed():
		return fmt.Sprintf("write to %s failed after %d rows: %s", r.Sink, r.Written, r.Error)
	default:
		return fmt.Sprintf("%d rows written to %s", r.Written, r.Sink)
	}
}

// OutputWriteError means the results could not be fully written
type OutputWriteError struct {
	Sink        string
	Destination string
	Written     int
	Err         error
}

func (e *OutputWriteError) Error() string {
	return fmt.Sprintf("failed to write results to %s %s (%d rows written): %v", e.Sink, e.Destination, e.Written, e.Err)
}

func (e *OutputWriteError) Unwrap() error {
	return e.Err
}

// ResultsSink writes records through a RowAppender. It never fails the run.
type ResultsSink struct {
	name     string
	appender RowAppender
}

// NewResultsSink creates a sink named for metrics and reports
func NewResultsSink(name string, appender RowAppender) *ResultsSink {
	return &ResultsSink{name: name, appender: appender}
}

// Write appends records in the given order. An empty destination is a no-op.
func (s *ResultsSink) Write(ctx context.Context, records []models.ForecastRecord, destination string) SinkReport {
	report := SinkReport{Sink: s.name, Destination: destination}
	if destination == "" {
		report.Skipped = true
		observability.Info("no destination configured, nothing written", "sink", s.name)
		return report
	}

	metrics := observability.GetMetrics()
	written, err := s.appender.AppendRows(ctx, destination, records)
	report.Written = written
	if written > 0 {
		metrics.RecordSinkWrite(s.name, written)
	}
	if err != nil {
		writeErr := &OutputWriteError{Sink: s.name, Destination: destination, Written: written, Err: err}
		report.Err = writeErr
		report.Error = writeErr.Error()
		metrics.RecordSinkError(s.name)
		observability.WithError(writeErr).Warn("results write failed", "sink", s.name, "written", written)
		return report
	}

	observability.Info("results written", "sink", s.name, "rows", written)
	return report
}

// SheetsAppender adapts a spreadsheet client to RowAppender
type SheetsAppender struct {
	writer services.SpreadsheetWriter
}

// NewSheetsAppender creates a SheetsAppender
func NewSheetsAppender(writer services.SpreadsheetWriter) *SheetsAppender {
	return &SheetsAppender{writer: writer}
}

// AppendRows appends (date, ticker, percentage, reason) rows to the spreadsheet
func (a *SheetsAppender) AppendRows(ctx context.Context, spreadsheetID string, records []models.ForecastRecord) (int, error) {
	return a.writer.AppendRows(ctx, spreadsheetID, Rows(records))
}

// WriteNewSheet writes every record to a fresh sheet titled after at
func (a *SheetsAppender) WriteNewSheet(ctx context.Context, spreadsheetID string, records []models.ForecastRecord, at time.Time) (string, error) {
	title := NewSheetTitle(at)
	if err := a.writer.WriteNewSheet(ctx, spreadsheetID, title, Rows(records)); err != nil {
		return title, err
	}
	return title, nil
}

// NewSheetTitle names the per-run analysis sheet
func NewSheetTitle(at time.Time) string {
	return "Stock Analysis " + at.Format("2006-01-02 15:04:05")
}

// Rows converts records to sheet rows in order
func Rows(records []models.ForecastRecord) [][]string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, r.Row())
	}
	return rows
}
