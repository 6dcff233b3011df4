package models

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DateLayout is the date format used for prediction dates and sheet rows
const DateLayout = "2006-01-02"

// SheetColumns is the header row written to tabular destinations
var SheetColumns = []string{"date", "stock ticker", "% change in stock price", "reason"}

// ForecastRecord is a single one-week price change prediction for a ticker
type ForecastRecord struct {
	ID                 uuid.UUID `json:"id"`
	Ticker             string    `json:"ticker"`
	PredictedChangePct float64   `json:"predicted_change_pct"`
	Reason             string    `json:"reason"`
	Date               string    `json:"date"`
	CreatedAt          time.Time `json:"created_at"`
}

// NewForecastRecord creates a ForecastRecord dated at the given time
func NewForecastRecord(ticker string, changePct float64, reason string, at time.Time) ForecastRecord {
	return ForecastRecord{
		ID:                 uuid.New(),
		Ticker:             ticker,
		PredictedChangePct: changePct,
		Reason:             reason,
		Date:               at.Format(DateLayout),
		CreatedAt:          at,
	}
}

// Row returns the record as a (date, ticker, percentage, reason) row
func (r ForecastRecord) Row() []string {
	return []string{
		r.Date,
		r.Ticker,
		strconv.FormatFloat(r.PredictedChangePct, 'f', -1, 64),
		r.Reason,
	}
}

// TickerData is everything gathered for one ticker before analysis
type TickerData struct {
	Ticker    string       `json:"ticker"`
	Prices    PriceHistory `json:"prices"`
	News      []string     `json:"news"`
	Macro     []string     `json:"macro"`
	FetchedAt time.Time    `json:"fetched_at"`
}

// HasSnippets reports whether any news or macro text was gathered
func (d TickerData) HasSnippets() bool {
	return len(d.News) > 0 || len(d.Macro) > 0
}

// NormalizeTicker trims and uppercases a ticker symbol
func NormalizeTicker(ticker string) string {
	return strings.ToUpper(strings.TrimSpace(ticker))
}

// NormalizeTickers normalizes symbols, drops blanks and duplicates, and
// keeps first-occurrence order. Comma separated entries are split.
func NormalizeTickers(tickers []string) []string {
	seen := make(map[string]bool, len(tickers))
	out := make([]string, 0, len(tickers))
	for _, raw := range tickers {
		for _, part := range strings.Split(raw, ",") {
			t := NormalizeTicker(part)
			if t == "" || seen[t] {
				continue
			}
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}
