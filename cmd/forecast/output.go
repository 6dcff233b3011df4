package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"stock-forecaster/models"
	"stock-forecaster/pipeline"
)

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#7C3AED"))
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#9CA3AF"))
	upStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#10B981"))
	downStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#EF4444"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// maxReasonWidth truncates reasons in the console table only
const maxReasonWidth = 80

// printSummary writes the processed/forecast/ranked/written counts
func printSummary(w io.Writer, run *models.PipelineRun) {
	fmt.Fprintln(w, titleStyle.Render("Run summary"))
	fmt.Fprintf(w, "  processed: %d\n", run.Processed())
	fmt.Fprintf(w, "  forecasts: %d\n", len(run.Results))
	fmt.Fprintf(w, "  skipped:   %d\n", len(run.Skipped))
	fmt.Fprintf(w, "  ranked:    %d\n", len(run.Ranked))
	fmt.Fprintf(w, "  written:   %d\n", run.RowsWritten)
	if run.SinkError != "" {
		fmt.Fprintln(w, downStyle.Render("  output error: "+run.SinkError))
	}
	for _, s := range run.Skipped {
		fmt.Fprintln(w, mutedStyle.Render(fmt.Sprintf("  skipped %s (%s): %s", s.Ticker, s.Kind, s.Reason)))
	}
}

// printRanked writes the ranked forecasts as a table
func printRanked(w io.Writer, ranked []models.ForecastRecord) {
	fmt.Fprintln(w)
	if len(ranked) == 0 {
		fmt.Fprintln(w, mutedStyle.Render("No positive forecasts to rank."))
		return
	}

	fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("Top %d forecasts", len(ranked))))
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-4s %-10s %-8s %10s  %s", "#", "date", "ticker", "change", "reason")))
	for i, r := range ranked {
		fmt.Fprintf(w, "%-4d %-10s %-8s %s  %s\n", i+1, r.Date, r.Ticker, formatChange(r.PredictedChangePct), truncate(r.Reason, maxReasonWidth))
	}
}

// printSinkReport writes the outcome of a staged write
func printSinkReport(w io.Writer, report pipeline.SinkReport) {
	if report.Failed() {
		fmt.Fprintln(w, downStyle.Render(report.Summary()))
		return
	}
	fmt.Fprintln(w, report.Summary())
}

func formatChange(pct float64) string {
	s := fmt.Sprintf("%+9.2f%%", pct)
	if pct < 0 {
		return downStyle.Render(s)
	}
	return upStyle.Render(s)
}

func truncate(s string, n int) string {
	s = strings.Join(strings.Fields(s), " ")
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n-3]) + "..."
}
