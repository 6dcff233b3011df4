package repository

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"stock-forecaster/models"

	"github.com/google/uuid"
)

// getTestDB returns a repository connected to the test database.
// If DATABASE_URL is not set, the test is skipped.
func getTestDB(t *testing.T) *Repository {
	t.Helper()

	connString := os.Getenv("DATABASE_URL")
	if connString == "" {
		t.Skip("DATABASE_URL not set, skipping integration test")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	repo, err := NewRepository(ctx, connString)
	if err != nil {
		t.Fatalf("failed to connect to test database: %v", err)
	}

	return repo
}

// cleanupRun removes a test run and its forecasts
func cleanupRun(t *testing.T, repo *Repository, id uuid.UUID) {
	t.Helper()
	repo.pool.Exec(context.Background(), "DELETE FROM pipeline_runs WHERE id = $1", id)
}

// cleanupRankedRows removes rows written to a test destination
func cleanupRankedRows(t *testing.T, repo *Repository, destination string) {
	t.Helper()
	repo.pool.Exec(context.Background(), "DELETE FROM ranked_forecasts WHERE destination = $1", destination)
}

func testRecords(at time.Time) []models.ForecastRecord {
	return []models.ForecastRecord{
		models.NewForecastRecord("TESTA", 2.5, "Earnings beat", at),
		models.NewForecastRecord("TESTB", -1, "Guidance cut", at),
		models.NewForecastRecord("TESTC", 5, "AI demand", at),
	}
}

func TestRepository_NoDatabase(t *testing.T) {
	var repo *Repository
	if err := repo.checkDB(); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("checkDB() = %v, want ErrNoDatabase", err)
	}

	empty := &Repository{}
	ctx := context.Background()
	if _, err := empty.AppendRows(ctx, "x", nil); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("AppendRows() = %v, want ErrNoDatabase", err)
	}
	if _, err := empty.GetPipelineRuns(ctx, 5); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("GetPipelineRuns() = %v, want ErrNoDatabase", err)
	}
	if err := empty.Health(ctx); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("Health() = %v, want ErrNoDatabase", err)
	}
	if _, _, err := empty.BeginTx(ctx); !errors.Is(err, ErrNoDatabase) {
		t.Errorf("BeginTx() = %v, want ErrNoDatabase", err)
	}
}

func TestRepository_PipelineRun_Lifecycle(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	ctx := context.Background()

	run := models.NewPipelineRun([]string{"TESTA", "TESTB", "TESTC", "TESTZ"}, "test-destination")
	defer cleanupRun(t, repo, run.ID)

	if err := repo.CreatePipelineRun(ctx, run); err != nil {
		t.Fatalf("CreatePipelineRun() error = %v", err)
	}

	got, err := repo.GetPipelineRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetPipelineRun() error = %v", err)
	}
	if got == nil || got.Status != models.RunStatusRunning || len(got.Tickers) != 4 {
		t.Fatalf("unexpected run %+v", got)
	}

	results := testRecords(time.Now())
	ranked := []models.ForecastRecord{results[2], results[0]}
	skipped := []models.SkippedTicker{{Ticker: "TESTZ", Kind: models.SkipDataUnavailable, Reason: "unknown symbol"}}
	run.Complete(results, ranked, skipped)
	run.RowsWritten = 2

	if err := repo.FinishPipelineRun(ctx, run); err != nil {
		t.Fatalf("FinishPipelineRun() error = %v", err)
	}

	got, err = repo.GetPipelineRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetPipelineRun() error = %v", err)
	}
	if got.Status != models.RunStatusCompleted || got.RowsWritten != 2 || got.CompletedAt == nil {
		t.Errorf("unexpected completed run %+v", got)
	}
	if len(got.Results) != 3 || got.Results[0].Ticker != "TESTA" {
		t.Errorf("Results = %+v", got.Results)
	}
	if len(got.Ranked) != 2 || got.Ranked[0].Ticker != "TESTC" || got.Ranked[1].Ticker != "TESTA" {
		t.Errorf("Ranked = %+v", got.Ranked)
	}
	if len(got.Skipped) != 1 || got.Skipped[0].Kind != models.SkipDataUnavailable {
		t.Errorf("Skipped = %+v", got.Skipped)
	}

	latest, err := repo.GetLatestPipelineRun(ctx)
	if err != nil {
		t.Fatalf("GetLatestPipelineRun() error = %v", err)
	}
	if latest == nil {
		t.Fatal("expected a latest run")
	}

	runs, err := repo.GetPipelineRuns(ctx, 10)
	if err != nil {
		t.Fatalf("GetPipelineRuns() error = %v", err)
	}
	found := false
	for _, r := range runs {
		if r.ID == run.ID {
			found = true
		}
	}
	if !found {
		t.Error("run not listed")
	}
}

func TestRepository_GetPipelineRun_NotFound(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()

	got, err := repo.GetPipelineRun(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("GetPipelineRun() error = %v", err)
	}
	if got != nil {
		t.Errorf("expected nil for unknown run, got %+v", got)
	}
}

func TestRepository_PipelineRun_Failed(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	ctx := context.Background()

	run := models.NewPipelineRun([]string{"TESTA"}, "")
	defer cleanupRun(t, repo, run.ID)
	if err := repo.CreatePipelineRun(ctx, run); err != nil {
		t.Fatalf("CreatePipelineRun() error = %v", err)
	}

	run.Fail(errors.New("context canceled"))
	if err := repo.UpdatePipelineRun(ctx, run); err != nil {
		t.Fatalf("UpdatePipelineRun() error = %v", err)
	}

	got, err := repo.GetPipelineRun(ctx, run.ID)
	if err != nil {
		t.Fatalf("GetPipelineRun() error = %v", err)
	}
	if got.Status != models.RunStatusFailed || got.ErrorMessage != "context canceled" {
		t.Errorf("unexpected run %+v", got)
	}
}

func TestRepository_AppendRows(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()
	ctx := context.Background()

	destination := "test-" + uuid.NewString()
	defer cleanupRankedRows(t, repo, destination)

	records := testRecords(time.Now())
	written, err := repo.AppendRows(ctx, destination, records)
	if err != nil {
		t.Fatalf("AppendRows() error = %v", err)
	}
	if written != 3 {
		t.Errorf("written = %d, want 3", written)
	}

	rows, err := repo.GetRankedRows(ctx, destination, 10)
	if err != nil {
		t.Fatalf("GetRankedRows() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows = %d, want 3", len(rows))
	}
	for i, rec := range records {
		if rows[i].Ticker != rec.Ticker || rows[i].PredictedChangePct != rec.PredictedChangePct {
			t.Errorf("row %d = %+v, want %s", i, rows[i], rec.Ticker)
		}
	}
}

func TestRepository_AppendRows_CancelledContext(t *testing.T) {
	repo := getTestDB(t)
	defer repo.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	written, err := repo.AppendRows(ctx, "test-cancelled", testRecords(time.Now()))
	if err == nil {
		t.Fatal("expected error for cancelled context")
	}
	if written != 0 {
		t.Errorf("written = %d, want 0", written)
	}
}
