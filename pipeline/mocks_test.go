package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stock-forecaster/agents"
	"stock-forecaster/internal/statestore"
	"stock-forecaster/models"
	"stock-forecaster/observability"
)

// useTestMetrics registers metrics on a private registry for the test
func useTestMetrics(t *testing.T) *observability.Metrics {
	t.Helper()
	m := observability.NewMetrics(prometheus.NewRegistry())
	observability.SetMetrics(m)
	return m
}

type mockGatherer struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (m *mockGatherer) Gather(ctx context.Context, ticker string) (models.TickerData, error) {
	m.mu.Lock()
	m.calls = append(m.calls, ticker)
	m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return models.TickerData{}, &agents.DataUnavailableError{Ticker: ticker, Reason: "cancelled", Err: err}
	}
	if m.fail[ticker] {
		return models.TickerData{}, &agents.DataUnavailableError{Ticker: ticker, Reason: "unknown symbol"}
	}
	return models.TickerData{Ticker: ticker}, nil
}

// mockAnalyst returns the configured change for a ticker, a parse error for
// tickers in badReply and an invocation failure for tickers in llmDown.
type mockAnalyst struct {
	mu       sync.Mutex
	changes  map[string]float64
	badReply map[string]bool
	llmDown  map[string]bool
	calls    []string
}

func (m *mockAnalyst) Analyze(ctx context.Context, data models.TickerData) (models.ForecastRecord, error) {
	m.mu.Lock()
	m.calls = append(m.calls, data.Ticker)
	m.mu.Unlock()

	switch {
	case m.badReply[data.Ticker]:
		return models.ForecastRecord{}, &agents.AnalysisParseError{Ticker: data.Ticker, Reason: "no JSON object in reply"}
	case m.llmDown[data.Ticker]:
		return models.ForecastRecord{}, &agents.AnalysisFailedError{Ticker: data.Ticker, Err: errors.New("connection refused")}
	}
	at := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	return models.NewForecastRecord(data.Ticker, m.changes[data.Ticker], "reason for "+data.Ticker, at), nil
}

type mockAppender struct {
	mu          sync.Mutex
	written     []models.ForecastRecord
	destination string
	failAfter   int // fail after this many rows when >= 0 and err set
	err         error
	calls       int
}

func (m *mockAppender) AppendRows(ctx context.Context, destination string, records []models.ForecastRecord) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.destination = destination
	for i, r := range records {
		if m.err != nil && i >= m.failAfter {
			return i, m.err
		}
		m.written = append(m.written, r)
	}
	return len(records), nil
}

type mockSheetWriter struct {
	records     []models.ForecastRecord
	destination string
	err         error
}

func (m *mockSheetWriter) WriteNewSheet(ctx context.Context, destination string, records []models.ForecastRecord, at time.Time) (string, error) {
	m.destination = destination
	m.records = records
	return NewSheetTitle(at), m.err
}

// memStore is an in-memory StateStore that round-trips through JSON
type memStore struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemStore() *memStore {
	return &memStore{files: map[string][]byte{}}
}

func (s *memStore) Save(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	s.files[name] = data
	return nil
}

func (s *memStore) Load(name string, v any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.files[name]
	if !ok {
		return &statestore.MissingStateError{Path: name, Stage: fmt.Sprintf("producer of %s", name)}
	}
	return json.Unmarshal(data, v)
}

func record(ticker string, pct float64) models.ForecastRecord {
	return models.ForecastRecord{Ticker: ticker, PredictedChangePct: pct, Reason: "r", Date: "2025-03-14"}
}

func tickersOf(records []models.ForecastRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.Ticker
	}
	return out
}
