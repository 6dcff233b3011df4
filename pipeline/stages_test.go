package pipeline

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"stock-forecaster/internal/statestore"
	"stock-forecaster/models"
)

func newTestStages(g Gatherer, a Analyst, appender *mockAppender, sheets NewSheetWriter, store StateStore) *Stages {
	return NewStages(g, a, NewResultsSink("test", appender), sheets, store, StageOptions{Concurrency: 2, TickerTimeout: time.Second})
}

func TestStages_FullRun(t *testing.T) {
	useTestMetrics(t)
	store := newMemStore()
	appender := &mockAppender{}
	sheets := &mockSheetWriter{}
	gatherer := &mockGatherer{fail: map[string]bool{"ZZZZ": true}}
	analyst := &mockAnalyst{
		changes:  map[string]float64{"A": 2.5, "B": -1, "C": 5, "D": 0, "E": 3.1},
		badReply: map[string]bool{"F": true},
	}
	stages := newTestStages(gatherer, analyst, appender, sheets, store)
	ctx := context.Background()

	gathered, err := stages.Gather(ctx, []string{"a", "B", "c", "D", "e", "ZZZZ", "f", "A"})
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if !reflect.DeepEqual(gathered.Tickers, []string{"A", "B", "C", "D", "E", "F"}) {
		t.Errorf("gathered tickers = %v", gathered.Tickers)
	}
	if len(gathered.Skipped) != 1 || gathered.Skipped[0].Kind != models.SkipDataUnavailable {
		t.Errorf("gather skipped = %v", gathered.Skipped)
	}

	analysis, err := stages.Analyze(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(analysis.Results) != 5 {
		t.Errorf("results = %d, want 5", len(analysis.Results))
	}
	if len(analysis.Skipped) != 2 {
		t.Errorf("skipped = %v, want ZZZZ and F", analysis.Skipped)
	}
	if analysis.NewSheet == "" || len(sheets.records) != 5 || sheets.destination != "sheet-1" {
		t.Errorf("new sheet not written: %q, %d records", analysis.NewSheet, len(sheets.records))
	}

	ranked, err := stages.Rank()
	if err != nil {
		t.Fatalf("Rank() error = %v", err)
	}
	if got := tickersOf(ranked.Ranked); !reflect.DeepEqual(got, []string{"C", "E", "A"}) {
		t.Errorf("ranked = %v, want [C E A]", got)
	}

	report, err := stages.Write(ctx, "sheet-1")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}
	if report.Written != 3 || report.Failed() {
		t.Errorf("report = %+v", report)
	}
	if got := tickersOf(appender.written); !reflect.DeepEqual(got, []string{"C", "E", "A"}) {
		t.Errorf("written = %v", got)
	}
}

func TestStages_MissingInput(t *testing.T) {
	useTestMetrics(t)
	stages := newTestStages(&mockGatherer{}, &mockAnalyst{}, &mockAppender{}, nil, newMemStore())

	_, err := stages.Analyze(context.Background(), "")
	var missing *statestore.MissingStateError
	if !errors.As(err, &missing) {
		t.Errorf("Analyze() error = %v, want MissingStateError", err)
	}
	if _, err := stages.Rank(); !errors.As(err, &missing) {
		t.Errorf("Rank() error = %v, want MissingStateError", err)
	}
	if _, err := stages.Write(context.Background(), "x"); !errors.As(err, &missing) {
		t.Errorf("Write() error = %v, want MissingStateError", err)
	}
}

func TestStages_NewSheetFailureIsNotFatal(t *testing.T) {
	useTestMetrics(t)
	store := newMemStore()
	sheets := &mockSheetWriter{err: errors.New("forbidden")}
	stages := newTestStages(&mockGatherer{}, &mockAnalyst{changes: map[string]float64{"A": 1}}, &mockAppender{}, sheets, store)

	if _, err := stages.Gather(context.Background(), []string{"A"}); err != nil {
		t.Fatal(err)
	}
	analysis, err := stages.Analyze(context.Background(), "sheet-1")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if analysis.NewSheet != "" {
		t.Errorf("NewSheet = %q, want empty on failure", analysis.NewSheet)
	}
	if len(analysis.Results) != 1 {
		t.Errorf("results = %v", analysis.Results)
	}
}

// slowGatherer tracks the peak number of concurrent Gather calls
type slowGatherer struct {
	inFlight atomic.Int32
	peak     atomic.Int32
	mu       sync.Mutex
}

func (g *slowGatherer) Gather(ctx context.Context, ticker string) (models.TickerData, error) {
	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	g.mu.Lock()
	if n > g.peak.Load() {
		g.peak.Store(n)
	}
	g.mu.Unlock()
	time.Sleep(10 * time.Millisecond)
	return models.TickerData{Ticker: ticker}, nil
}

func TestStages_GatherRespectsConcurrency(t *testing.T) {
	useTestMetrics(t)
	gatherer := &slowGatherer{}
	stages := NewStages(gatherer, &mockAnalyst{}, NewResultsSink("test", &mockAppender{}), nil, newMemStore(),
		StageOptions{Concurrency: 3})

	tickers := make([]string, 12)
	for i := range tickers {
		tickers[i] = fmt.Sprintf("T%02d", i)
	}
	gathered, err := stages.Gather(context.Background(), tickers)
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(gathered.Tickers) != 12 {
		t.Errorf("gathered %d tickers, want 12", len(gathered.Tickers))
	}
	if peak := gatherer.peak.Load(); peak > 3 {
		t.Errorf("peak concurrency = %d, want <= 3", peak)
	}
}

func TestStages_CancelledContextStartsNoWork(t *testing.T) {
	useTestMetrics(t)
	gatherer := &mockGatherer{}
	analyst := &mockAnalyst{changes: map[string]float64{"A": 1, "B": 2}}
	store := newMemStore()
	stages := NewStages(gatherer, analyst, NewResultsSink("test", &mockAppender{}), nil, store,
		StageOptions{Concurrency: 1})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gathered, err := stages.Gather(ctx, []string{"A", "B", "C"})
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(gatherer.calls) != 0 {
		t.Errorf("gatherer called for %v after cancellation", gatherer.calls)
	}
	if len(gathered.Skipped) != 3 {
		t.Fatalf("skipped = %d, want 3", len(gathered.Skipped))
	}
	for _, s := range gathered.Skipped {
		if s.Kind != models.SkipDataUnavailable {
			t.Errorf("skip kind for %s = %s, want %s", s.Ticker, s.Kind, models.SkipDataUnavailable)
		}
	}

	// analyze a saved gather result with the cancelled context
	if err := store.Save(statestore.GatheredFile, GatheredState{
		Tickers: []string{"A", "B"},
		Data:    map[string]models.TickerData{"A": {Ticker: "A"}, "B": {Ticker: "B"}},
	}); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	analysis, err := stages.Analyze(ctx, "")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(analyst.calls) != 0 {
		t.Errorf("analyst called for %v after cancellation", analyst.calls)
	}
	if len(analysis.Results) != 0 || len(analysis.Skipped) != 2 {
		t.Fatalf("analysis = %d results, %d skipped", len(analysis.Results), len(analysis.Skipped))
	}
	for _, s := range analysis.Skipped {
		if s.Kind != models.SkipAnalysisFailed {
			t.Errorf("skip kind for %s = %s, want %s", s.Ticker, s.Kind, models.SkipAnalysisFailed)
		}
	}
}
