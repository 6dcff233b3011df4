package api

import (
	"context"
	"errors"
	"sync"

	"stock-forecaster/agents"
	"stock-forecaster/models"
	"stock-forecaster/pipeline"
	"stock-forecaster/repository"

	"github.com/google/uuid"
)

// fakeRunner ranks whatever it is given without calling any provider
type fakeRunner struct {
	mu          sync.Mutex
	tickers     []string
	destination string
	err         error
}

func (f *fakeRunner) Run(ctx context.Context, tickers []string, destination string) (pipeline.PipelineState, error) {
	f.mu.Lock()
	f.tickers = tickers
	f.destination = destination
	f.mu.Unlock()

	if f.err != nil {
		return pipeline.PipelineState{}, f.err
	}

	results := make([]models.ForecastRecord, 0, len(tickers))
	for i, ticker := range tickers {
		results = append(results, models.ForecastRecord{
			ID:                 uuid.New(),
			Ticker:             ticker,
			PredictedChangePct: float64(i + 1),
			Reason:             "steady demand",
			Date:               "2025-03-14",
		})
	}
	report := &pipeline.SinkReport{Sink: "sheets", Destination: destination, Skipped: destination == ""}
	if destination != "" {
		report.Written = len(results)
	}
	return pipeline.PipelineState{
		State:       pipeline.StateDone,
		Results:     results,
		Ranked:      pipeline.RankTop(results, pipeline.TopN),
		Skipped:     []models.SkippedTicker{},
		Destination: destination,
		Sink:        report,
	}, nil
}

type fakeHealth struct {
	available bool
}

func (f fakeHealth) Health(ctx context.Context) agents.ProviderHealth {
	h := agents.ProviderHealth{Available: f.available}
	if !f.available {
		h.Error = "connection refused"
	}
	return h
}

// fakeStore keeps runs in memory. Methods the API never reaches are left to
// the embedded interface.
type fakeStore struct {
	repository.RunStore

	mu        sync.Mutex
	runs      []models.PipelineRun
	rows      map[string][]models.ForecastRecord
	healthErr error
	listErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{rows: map[string][]models.ForecastRecord{}}
}

func (f *fakeStore) Close() {}

func (f *fakeStore) Health(ctx context.Context) error { return f.healthErr }

func (f *fakeStore) CreatePipelineRun(ctx context.Context, run *models.PipelineRun) error {
	return nil
}

func (f *fakeStore) FinishPipelineRun(ctx context.Context, run *models.PipelineRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, *run)
	if run.Destination != "" {
		f.rows[run.Destination] = append(f.rows[run.Destination], run.Ranked...)
	}
	return nil
}

func (f *fakeStore) GetPipelineRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.runs {
		if f.runs[i].ID == id {
			run := f.runs[i]
			return &run, nil
		}
	}
	return nil, nil
}

func (f *fakeStore) GetLatestPipelineRun(ctx context.Context) (*models.PipelineRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.runs) == 0 {
		return nil, nil
	}
	run := f.runs[len(f.runs)-1]
	return &run, nil
}

func (f *fakeStore) GetPipelineRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var runs []models.PipelineRun
	for i := len(f.runs) - 1; i >= 0 && len(runs) < limit; i-- {
		runs = append(runs, f.runs[i])
	}
	return runs, nil
}

func (f *fakeStore) GetRankedRows(ctx context.Context, destination string, limit int) ([]models.ForecastRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	rows := f.rows[destination]
	if len(rows) > limit {
		rows = rows[:limit]
	}
	return rows, nil
}

var errListFailed = errors.New("query failed")
