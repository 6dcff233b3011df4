package app

import (
	"context"
	"sync"

	"stock-forecaster/agents"
	"stock-forecaster/models"
	"stock-forecaster/pipeline"
	"stock-forecaster/repository"

	"github.com/google/uuid"
)

// mockRunStore keeps pipeline runs in memory
type mockRunStore struct {
	mu        sync.Mutex
	runs      map[uuid.UUID]models.PipelineRun
	order     []uuid.UUID
	created   int
	finished  int
	createErr error
	healthErr error
	closed    bool
}

var _ repository.RunStore = (*mockRunStore)(nil)

func newMockRunStore() *mockRunStore {
	return &mockRunStore{runs: map[uuid.UUID]models.PipelineRun{}}
}

func (m *mockRunStore) Close() { m.closed = true }

func (m *mockRunStore) Health(ctx context.Context) error { return m.healthErr }

func (m *mockRunStore) CreatePipelineRun(ctx context.Context, run *models.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	m.created++
	m.runs[run.ID] = *run
	m.order = append(m.order, run.ID)
	return nil
}

func (m *mockRunStore) UpdatePipelineRun(ctx context.Context, run *models.PipelineRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = *run
	return nil
}

func (m *mockRunStore) FinishPipelineRun(ctx context.Context, run *models.PipelineRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.finished++
	m.runs[run.ID] = *run
	return nil
}

func (m *mockRunStore) GetPipelineRun(ctx context.Context, id uuid.UUID) (*models.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[id]
	if !ok {
		return nil, nil
	}
	return &run, nil
}

func (m *mockRunStore) GetLatestPipelineRun(ctx context.Context) (*models.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.order) == 0 {
		return nil, nil
	}
	run := m.runs[m.order[len(m.order)-1]]
	return &run, nil
}

func (m *mockRunStore) GetPipelineRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var runs []models.PipelineRun
	for i := len(m.order) - 1; i >= 0 && len(runs) < limit; i-- {
		runs = append(runs, m.runs[m.order[i]])
	}
	return runs, nil
}

func (m *mockRunStore) SaveForecasts(ctx context.Context, runID uuid.UUID, results, ranked []models.ForecastRecord) error {
	return nil
}

func (m *mockRunStore) GetForecastsForRun(ctx context.Context, runID uuid.UUID) ([]models.ForecastRecord, []models.ForecastRecord, error) {
	return nil, nil, nil
}

func (m *mockRunStore) AppendRows(ctx context.Context, destination string, records []models.ForecastRecord) (int, error) {
	return len(records), nil
}

func (m *mockRunStore) GetRankedRows(ctx context.Context, destination string, limit int) ([]models.ForecastRecord, error) {
	return nil, nil
}

// mockRunner returns a canned state, optionally blocking until release is closed
type mockRunner struct {
	state   pipeline.PipelineState
	err     error
	started chan struct{}
	release chan struct{}

	mu      sync.Mutex
	tickers [][]string
}

func (m *mockRunner) Run(ctx context.Context, tickers []string, destination string) (pipeline.PipelineState, error) {
	m.mu.Lock()
	m.tickers = append(m.tickers, tickers)
	m.mu.Unlock()

	if m.started != nil {
		close(m.started)
	}
	if m.release != nil {
		<-m.release
	}
	return m.state, m.err
}

type mockHealth struct {
	health agents.ProviderHealth
}

func (m mockHealth) Health(ctx context.Context) agents.ProviderHealth {
	return m.health
}

func record(ticker string, pct float64) models.ForecastRecord {
	return models.ForecastRecord{ID: uuid.New(), Ticker: ticker, PredictedChangePct: pct, Reason: "test", Date: "2025-03-14"}
}
