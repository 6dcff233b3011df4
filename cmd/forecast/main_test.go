package main

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"

	"stock-forecaster/models"
	"stock-forecaster/pipeline"
)

func newTargetCmd(t *testing.T, flags ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "test"}
	addTickerFlags(cmd)
	addDestinationFlag(cmd)
	if err := cmd.ParseFlags(flags); err != nil {
		t.Fatalf("ParseFlags() error = %v", err)
	}
	return cmd
}

func writeTickerFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tickers.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write ticker file: %v", err)
	}
	return path
}

func TestResolveTarget(t *testing.T) {
	file := writeTickerFile(t, "destination: file-sheet\ntickers:\n  - msft\n  - aapl\n  - GOOG\n")

	tests := []struct {
		name            string
		args            []string
		flags           []string
		wantTickers     string
		wantDestination string
	}{
		{
			name:            "positional tickers use the default destination",
			args:            []string{"aapl", "MSFT,nvda", "AAPL"},
			wantTickers:     "AAPL,MSFT,NVDA",
			wantDestination: "env-sheet",
		},
		{
			name:            "ticker file appends and sets destination",
			args:            []string{"TSLA", "msft"},
			flags:           []string{"--tickers-file", file},
			wantTickers:     "TSLA,MSFT,AAPL,GOOG",
			wantDestination: "file-sheet",
		},
		{
			name:            "flag overrides the ticker file",
			flags:           []string{"--tickers-file", file, "--destination", "flag-sheet"},
			wantTickers:     "MSFT,AAPL,GOOG",
			wantDestination: "flag-sheet",
		},
		{
			name:            "empty flag disables output",
			args:            []string{"AAPL"},
			flags:           []string{"--destination", ""},
			wantTickers:     "AAPL",
			wantDestination: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newTargetCmd(t, tt.flags...)
			target, err := resolveTarget(cmd, tt.args, "env-sheet")
			if err != nil {
				t.Fatalf("resolveTarget() error = %v", err)
			}
			if got := strings.Join(target.Tickers, ","); got != tt.wantTickers {
				t.Errorf("tickers = %s, want %s", got, tt.wantTickers)
			}
			if target.Destination != tt.wantDestination {
				t.Errorf("destination = %q, want %q", target.Destination, tt.wantDestination)
			}
		})
	}
}

func TestResolveTarget_NoTickers(t *testing.T) {
	cmd := newTargetCmd(t)
	if _, err := resolveTarget(cmd, []string{" ", ","}, ""); !errors.Is(err, errNoTickers) {
		t.Errorf("expected errNoTickers, got %v", err)
	}

	empty := writeTickerFile(t, "tickers: []\n")
	cmd = newTargetCmd(t, "--tickers-file", empty)
	if _, err := resolveTarget(cmd, nil, ""); !errors.Is(err, errNoTickers) {
		t.Errorf("expected errNoTickers for an empty file, got %v", err)
	}
}

func TestResolveTarget_MissingFile(t *testing.T) {
	cmd := newTargetCmd(t, "--tickers-file", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := resolveTarget(cmd, []string{"AAPL"}, ""); err == nil {
		t.Error("expected error for a missing ticker file")
	}
}

func TestPrintSummary(t *testing.T) {
	run := models.NewPipelineRun([]string{"AAPL", "MSFT", "XXXX"}, "sheet-1")
	results := []models.ForecastRecord{
		{Ticker: "AAPL", PredictedChangePct: 2.5, Reason: "Earnings beat", Date: "2025-03-14"},
		{Ticker: "MSFT", PredictedChangePct: -1, Reason: "Guidance cut", Date: "2025-03-14"},
	}
	run.Complete(results, results[:1], []models.SkippedTicker{{Ticker: "XXXX", Kind: models.SkipDataUnavailable, Reason: "no price data"}})
	run.RowsWritten = 1
	run.SinkError = "permission denied"

	var buf bytes.Buffer
	printSummary(&buf, run)
	out := buf.String()

	for _, want := range []string{"processed: 3", "forecasts: 2", "ranked:    1", "written:   1", "permission denied", "skipped XXXX (data_unavailable)"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestPrintRanked(t *testing.T) {
	var buf bytes.Buffer
	printRanked(&buf, nil)
	if !strings.Contains(buf.String(), "No positive forecasts") {
		t.Errorf("unexpected output for empty ranking: %s", buf.String())
	}

	buf.Reset()
	printRanked(&buf, []models.ForecastRecord{
		{Ticker: "NVDA", PredictedChangePct: 5, Reason: "AI demand", Date: "2025-03-14"},
		{Ticker: "AAPL", PredictedChangePct: 2.5, Reason: strings.Repeat("long reason ", 20), Date: "2025-03-14"},
	})
	out := buf.String()
	if !strings.Contains(out, "Top 2 forecasts") || !strings.Contains(out, "+5.00%") || !strings.Contains(out, "+2.50%") {
		t.Errorf("unexpected table:\n%s", out)
	}
	if strings.Index(out, "NVDA") > strings.Index(out, "AAPL") {
		t.Error("ranking order not preserved")
	}
	if !strings.Contains(out, "...") {
		t.Error("long reasons should be truncated")
	}
}

func TestPrintSinkReport(t *testing.T) {
	var buf bytes.Buffer
	printSinkReport(&buf, pipeline.SinkReport{Sink: "sheets", Written: 3})
	if !strings.Contains(buf.String(), "3 rows written to sheets") {
		t.Errorf("unexpected output %q", buf.String())
	}

	buf.Reset()
	printSinkReport(&buf, pipeline.SinkReport{Skipped: true})
	if !strings.Contains(buf.String(), "nothing written") {
		t.Errorf("unexpected output %q", buf.String())
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("  short\n reason ", 20); got != "short reason" {
		t.Errorf("truncate() = %q", got)
	}
	if got := truncate("abcdefghij", 8); got != "abcde..." {
		t.Errorf("truncate() = %q", got)
	}
}

func TestCommandTree(t *testing.T) {
	want := map[string]bool{"run": false, "stage": false, "serve": false}
	for _, c := range rootCmd.Commands() {
		if _, ok := want[c.Name()]; ok {
			want[c.Name()] = true
		}
	}
	for name, found := range want {
		if !found {
			t.Errorf("missing command %q", name)
		}
	}

	stages := map[string]bool{}
	for _, c := range stageCmd.Commands() {
		stages[c.Name()] = true
	}
	for _, name := range []string{"gather", "analyze", "rank", "write"} {
		if !stages[name] {
			t.Errorf("missing stage %q", name)
		}
	}
}
