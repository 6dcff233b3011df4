package app

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"stock-forecaster/agents"
	"stock-forecaster/config"
	"stock-forecaster/models"
	"stock-forecaster/observability"
	"stock-forecaster/pipeline"
)

// testConfig returns a test configuration
func testConfig() *config.Config {
	return config.NewTestConfig()
}

func useTestMetrics(t *testing.T) {
	t.Helper()
	observability.SetMetrics(observability.NewMetrics(prometheus.NewRegistry()))
}

func completedState() pipeline.PipelineState {
	results := []models.ForecastRecord{record("AAPL", 2.5), record("MSFT", -1), record("NVDA", 5)}
	return pipeline.PipelineState{
		State:   pipeline.StateDone,
		Results: results,
		Ranked:  []models.ForecastRecord{results[2], results[0]},
		Skipped: []models.SkippedTicker{{Ticker: "XXXX", Kind: models.SkipDataUnavailable, Reason: "no price data"}},
		Sink:    &pipeline.SinkReport{Sink: config.SinkSheets, Destination: "sheet-1", Written: 2},
	}
}

func TestNew_WithConcurrencyLimit(t *testing.T) {
	cfg := config.NewTestConfig()
	cfg.Pipeline.ConcurrencyLimit = 3
	a := New(cfg, nil, nil, nil)

	if a.RunSemCapacity() != 3 {
		t.Errorf("expected concurrency limit 3, got %d", a.RunSemCapacity())
	}

	cfg.Pipeline.ConcurrencyLimit = 0
	if got := New(cfg, nil, nil, nil).RunSemCapacity(); got != 1 {
		t.Errorf("non-positive limit should fall back to 1, got %d", got)
	}
}

func TestApp_RunPipeline(t *testing.T) {
	useTestMetrics(t)

	t.Run("records a completed run", func(t *testing.T) {
		store := newMockRunStore()
		runner := &mockRunner{state: completedState()}
		a := New(testConfig(), store, runner, nil)

		run, err := a.RunPipeline(context.Background(), []string{" aapl", "MSFT,nvda", "aapl", "xxxx"}, "sheet-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		wantTickers := []string{"AAPL", "MSFT", "NVDA", "XXXX"}
		if strings.Join(runner.tickers[0], ",") != strings.Join(wantTickers, ",") {
			t.Errorf("runner got tickers %v, want %v", runner.tickers[0], wantTickers)
		}
		if run.Status != models.RunStatusCompleted {
			t.Errorf("status = %s, want completed", run.Status)
		}
		if run.Processed() != 4 {
			t.Errorf("processed = %d, want 4", run.Processed())
		}
		if len(run.Ranked) != 2 || run.Ranked[0].Ticker != "NVDA" {
			t.Errorf("unexpected ranking %+v", run.Ranked)
		}
		if run.RowsWritten != 2 || run.SinkError != "" {
			t.Errorf("rows written = %d, sink error = %q", run.RowsWritten, run.SinkError)
		}
		if store.created != 1 || store.finished != 1 {
			t.Errorf("created = %d, finished = %d, want 1 and 1", store.created, store.finished)
		}
		saved, _ := store.GetPipelineRun(context.Background(), run.ID)
		if saved == nil || saved.Status != models.RunStatusCompleted {
			t.Errorf("saved run = %+v", saved)
		}
	})

	t.Run("sink failure keeps the run successful", func(t *testing.T) {
		state := completedState()
		state.Sink = &pipeline.SinkReport{Sink: config.SinkSheets, Destination: "sheet-1", Written: 1, Error: "permission denied"}
		a := New(testConfig(), nil, &mockRunner{state: state}, nil)

		run, err := a.RunPipeline(context.Background(), []string{"AAPL"}, "sheet-1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if run.Status != models.RunStatusCompleted {
			t.Errorf("status = %s, want completed", run.Status)
		}
		if run.SinkError != "permission denied" || run.RowsWritten != 1 {
			t.Errorf("sink error = %q, rows = %d", run.SinkError, run.RowsWritten)
		}
		if len(run.Ranked) != 2 {
			t.Errorf("ranking should survive a sink failure, got %d", len(run.Ranked))
		}
	})

	t.Run("runner error fails the run and still records it", func(t *testing.T) {
		store := newMockRunStore()
		state := pipeline.PipelineState{Results: []models.ForecastRecord{record("AAPL", 1)}}
		a := New(testConfig(), store, &mockRunner{state: state, err: context.Canceled}, nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		run, err := a.RunPipeline(ctx, []string{"AAPL", "MSFT"}, "")
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if run.Status != models.RunStatusFailed || run.ErrorMessage == "" {
			t.Errorf("status = %s, error message = %q", run.Status, run.ErrorMessage)
		}
		if len(run.Results) != 1 {
			t.Errorf("partial results should be kept, got %d", len(run.Results))
		}
		if store.finished != 1 {
			t.Errorf("cancelled run should still be saved, finished = %d", store.finished)
		}
	})

	t.Run("create failure is not fatal", func(t *testing.T) {
		store := newMockRunStore()
		store.createErr = errors.New("insert failed")
		a := New(testConfig(), store, &mockRunner{state: completedState()}, nil)

		if _, err := a.RunPipeline(context.Background(), []string{"AAPL"}, ""); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})

	t.Run("empty ticker list", func(t *testing.T) {
		runner := &mockRunner{}
		a := New(testConfig(), nil, runner, nil)

		_, err := a.RunPipeline(context.Background(), []string{" ", ","}, "")
		if !errors.Is(err, ErrNoTickers) {
			t.Errorf("expected ErrNoTickers, got %v", err)
		}
		if len(runner.tickers) != 0 {
			t.Error("runner should not be called")
		}
	})

	t.Run("pipeline not initialized", func(t *testing.T) {
		a := New(testConfig(), nil, nil, nil)
		if _, err := a.RunPipeline(context.Background(), []string{"AAPL"}, ""); err == nil {
			t.Error("expected error without a runner")
		}
	})
}

func TestApp_RunPipeline_QueueFull(t *testing.T) {
	useTestMetrics(t)

	cfg := testConfig()
	cfg.Pipeline.ConcurrencyLimit = 1
	runner := &mockRunner{
		state:   completedState(),
		started: make(chan struct{}),
		release: make(chan struct{}),
	}
	a := New(cfg, nil, runner, nil)

	done := make(chan error, 1)
	go func() {
		_, err := a.RunPipeline(context.Background(), []string{"AAPL"}, "")
		done <- err
	}()

	select {
	case <-runner.started:
	case <-time.After(time.Second):
		t.Fatal("first run did not start")
	}

	runner.started = nil
	if _, err := a.RunPipeline(context.Background(), []string{"MSFT"}, ""); !errors.Is(err, ErrBusy) {
		t.Errorf("expected ErrBusy, got %v", err)
	}

	close(runner.release)
	if err := <-done; err != nil {
		t.Errorf("first run failed: %v", err)
	}
}

func TestApp_RunHistory(t *testing.T) {
	t.Run("database not initialized", func(t *testing.T) {
		a := New(testConfig(), nil, nil, nil)
		ctx := context.Background()

		if _, err := a.GetRuns(ctx, 10); !errors.Is(err, ErrDatabaseUnavailable) {
			t.Errorf("GetRuns() error = %v", err)
		}
		if _, err := a.GetLatestRun(ctx); !errors.Is(err, ErrDatabaseUnavailable) {
			t.Errorf("GetLatestRun() error = %v", err)
		}
		if _, err := a.GetRun(ctx, "550e8400-e29b-41d4-a716-446655440000"); !errors.Is(err, ErrDatabaseUnavailable) {
			t.Errorf("GetRun() error = %v", err)
		}
		if _, err := a.GetRankedRows(ctx, "sheet-1", 10); !errors.Is(err, ErrDatabaseUnavailable) {
			t.Errorf("GetRankedRows() error = %v", err)
		}
		if err := a.DatabaseHealth(ctx); !errors.Is(err, ErrDatabaseUnavailable) {
			t.Errorf("DatabaseHealth() error = %v", err)
		}
	})

	t.Run("with store", func(t *testing.T) {
		useTestMetrics(t)
		store := newMockRunStore()
		a := New(testConfig(), store, &mockRunner{state: completedState()}, nil)
		ctx := context.Background()

		first, _ := a.RunPipeline(ctx, []string{"AAPL"}, "")
		second, _ := a.RunPipeline(ctx, []string{"MSFT"}, "")

		runs, err := a.GetRuns(ctx, 10)
		if err != nil || len(runs) != 2 {
			t.Fatalf("GetRuns() = %d runs, %v", len(runs), err)
		}
		latest, err := a.GetLatestRun(ctx)
		if err != nil || latest == nil || latest.ID != second.ID {
			t.Errorf("GetLatestRun() = %+v, %v", latest, err)
		}
		got, err := a.GetRun(ctx, first.ID.String())
		if err != nil || got == nil || got.ID != first.ID {
			t.Errorf("GetRun() = %+v, %v", got, err)
		}
		if _, err := a.GetRun(ctx, "not-a-uuid"); err == nil {
			t.Error("expected error for invalid id")
		}
	})
}

func TestApp_ProviderHealth(t *testing.T) {
	a := New(testConfig(), nil, nil, nil)
	if _, ok := a.ProviderHealth(context.Background()); ok {
		t.Error("expected ok = false without a checker")
	}

	a = New(testConfig(), nil, nil, mockHealth{health: agents.ProviderHealth{Available: true}})
	health, ok := a.ProviderHealth(context.Background())
	if !ok || !health.Available {
		t.Errorf("ProviderHealth() = %+v, %v", health, ok)
	}
}

func TestApp_Shutdown(t *testing.T) {
	t.Run("with repository", func(t *testing.T) {
		store := newMockRunStore()
		New(testConfig(), store, nil, nil).Shutdown()
		if !store.closed {
			t.Error("expected repository to be closed")
		}
	})

	t.Run("without repository", func(t *testing.T) {
		New(testConfig(), nil, nil, nil).Shutdown() // Should not panic
	})
}

func TestParseUUID(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantError bool
	}{
		{
			name:      "valid UUID",
			input:     "550e8400-e29b-41d4-a716-446655440000",
			wantError: false,
		},
		{
			name:      "invalid UUID format",
			input:     "invalid-uuid",
			wantError: true,
		},
		{
			name:      "empty string",
			input:     "",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseUUID(tt.input)
			if (err != nil) != tt.wantError {
				t.Errorf("ParseUUID() error = %v, wantError %v", err, tt.wantError)
			}
		})
	}
}
