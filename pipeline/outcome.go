package pipeline

import (
	"stock-forecaster/agents"
	"stock-forecaster/models"
)

// TickerOutcome is the per-ticker result: exactly one of Record or Skip is set
type TickerOutcome struct {
	Ticker string                 `json:"ticker"`
	Record *models.ForecastRecord `json:"record,omitempty"`
	Skip   *models.SkippedTicker  `json:"skip,omitempty"`
}

// Forecast wraps a successful forecast
func Forecast(record models.ForecastRecord) TickerOutcome {
	return TickerOutcome{Ticker: record.Ticker, Record: &record}
}

// Skipped records that a ticker produced no forecast
func Skipped(ticker string, kind models.SkipKind, reason string) TickerOutcome {
	return TickerOutcome{
		Ticker: ticker,
		Skip:   &models.SkippedTicker{Ticker: ticker, Kind: kind, Reason: reason},
	}
}

// SkipFromError converts a per-ticker error into a skip outcome
func SkipFromError(ticker string, err error) TickerOutcome {
	return Skipped(ticker, agents.SkipKindOf(err), err.Error())
}

// IsSkip reports whether the ticker was skipped
func (o TickerOutcome) IsSkip() bool {
	return o.Skip != nil
}

// Label names the outcome for metrics and logs
func (o TickerOutcome) Label() string {
	if o.Skip != nil {
		return string(o.Skip.Kind)
	}
	return "forecast"
}
