package agents

import (
	"errors"
	"fmt"

	"stock-forecaster/models"
)

// DataUnavailableError means price history or news could not be fetched for a ticker
type DataUnavailableError struct {
	Ticker string
	Reason string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data unavailable for %s: %s: %v", e.Ticker, e.Reason, e.Err)
	}
	return fmt.Sprintf("data unavailable for %s: %s", e.Ticker, e.Reason)
}

func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// AnalysisParseError means the model reply could not be read as a forecast
type AnalysisParseError struct {
	Ticker string
	Reason string
	Raw    string
}

func (e *AnalysisParseError) Error() string {
	if e.Ticker == "" {
		return "failed to parse forecast reply: " + e.Reason
	}
	return fmt.Sprintf("failed to parse forecast reply for %s: %s", e.Ticker, e.Reason)
}

// AnalysisFailedError means the model could not be invoked for a ticker
type AnalysisFailedError struct {
	Ticker string
	Err    error
}

func (e *AnalysisFailedError) Error() string {
	return fmt.Sprintf("analysis failed for %s: %v", e.Ticker, e.Err)
}

func (e *AnalysisFailedError) Unwrap() error {
	return e.Err
}

// SkipKindOf maps a per-ticker error to the reason the ticker is skipped.
// Unrecognised errors count as analysis failures.
func SkipKindOf(err error) models.SkipKind {
	var dataErr *DataUnavailableError
	var parseErr *AnalysisParseError
	switch {
	case errors.As(err, &dataErr):
		return models.SkipDataUnavailable
	case errors.As(err, &parseErr):
		return models.SkipAnalysisParseError
	default:
		return models.SkipAnalysisFailed
	}
}
