package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stock-forecaster/agents"
	"stock-forecaster/config"
	"stock-forecaster/internal/app"
	"stock-forecaster/observability"
	"stock-forecaster/pipeline"
	"stock-forecaster/repository"
)

var stageCmd = &cobra.Command{
	Use:   "stage",
	Short: "Run one pipeline stage, keeping its output in PIPELINE_STATE_DIR",
	Long: `The staged mode splits a run into gather, analyze, rank and write.
Each stage reads the previous stage's JSON file from PIPELINE_STATE_DIR and
saves its own, so stages can be re-run independently. Gather and analyze
process tickers concurrently, up to CONCURRENCY_LIMIT at once.`,
}

var stageGatherCmd = &cobra.Command{
	Use:   "gather [TICKERS...]",
	Short: "Fetch prices, news and macro context for each ticker",
	RunE:  runGatherStage,
}

var stageAnalyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Forecast every gathered ticker",
	RunE:  runAnalyzeStage,
}

var stageRankCmd = &cobra.Command{
	Use:   "rank",
	Short: "Rank the analysis results",
	Args:  cobra.NoArgs,
	RunE:  runRankStage,
}

var stageWriteCmd = &cobra.Command{
	Use:   "write",
	Short: "Write the ranked results to the configured sink",
	Args:  cobra.NoArgs,
	RunE:  runWriteStage,
}

func init() {
	addTickerFlags(stageGatherCmd)

	stageAnalyzeCmd.Flags().Bool("new-sheet", false, "also write all results to a new sheet named after the current time")
	addDestinationFlag(stageAnalyzeCmd)
	addDestinationFlag(stageWriteCmd)

	stageCmd.AddCommand(stageGatherCmd, stageAnalyzeCmd, stageRankCmd, stageWriteCmd)
}

func runGatherStage(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget(cmd, args, "")
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gatherer, err := app.NewGatherer(cfg)
	if err != nil {
		return err
	}
	stages, err := app.NewStages(cfg, gatherer, nil, nil, nil)
	if err != nil {
		return err
	}

	state, err := stages.Gather(ctx, target.Tickers)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "gathered %d of %d tickers\n", len(state.Data), len(state.Tickers))
	for _, s := range state.Skipped {
		fmt.Fprintln(out, mutedStyle.Render(fmt.Sprintf("  skipped %s (%s): %s", s.Ticker, s.Kind, s.Reason)))
	}
	return nil
}

func runAnalyzeStage(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	llm, err := app.NewLLM(ctx, cfg)
	if err != nil {
		return err
	}

	newSheet, _ := cmd.Flags().GetBool("new-sheet")
	destination := ""
	var sheets pipeline.NewSheetWriter
	if newSheet {
		destination = flagOrDefault(cmd, "destination", cfg.Output.Destination)
		if destination == "" {
			return errors.New("--new-sheet needs --destination or GOOGLE_SHEET_ID")
		}
		_, sheets = app.NewSink(ctx, cfg, nil)
		if sheets == nil {
			observability.Warn("sheets client unavailable, skipping new sheet")
		}
	}

	stages, err := app.NewStages(cfg, nil, agents.NewForecastAnalyst(llm), nil, sheets)
	if err != nil {
		return err
	}

	state, err := stages.Analyze(ctx, destination)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "analyzed: %d forecasts, %d skipped\n", len(state.Results), len(state.Skipped))
	if state.NewSheet != "" {
		fmt.Fprintf(out, "results written to sheet %q\n", state.NewSheet)
	}
	return nil
}

func runRankStage(cmd *cobra.Command, args []string) error {
	stages, err := app.NewStages(cfg, nil, nil, nil, nil)
	if err != nil {
		return err
	}

	state, err := stages.Rank()
	if err != nil {
		return err
	}
	printRanked(cmd.OutOrStdout(), state.Ranked)
	return nil
}

func runWriteStage(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var repo *repository.Repository
	if cfg.Output.Sink == config.SinkPostgres {
		r, err := app.OpenRepository(ctx, cfg)
		if err != nil {
			return fmt.Errorf("postgres sink: %w", err)
		}
		defer r.Close()
		repo = r
	}

	sink, _ := app.NewSink(ctx, cfg, repo)
	stages, err := app.NewStages(cfg, nil, nil, sink, nil)
	if err != nil {
		return err
	}

	report, err := stages.Write(ctx, flagOrDefault(cmd, "destination", cfg.Output.Destination))
	if err != nil {
		return err
	}
	printSinkReport(cmd.OutOrStdout(), report)
	return nil
}

func flagOrDefault(cmd *cobra.Command, name, def string) string {
	if cmd.Flags().Changed(name) {
		v, _ := cmd.Flags().GetString(name)
		return v
	}
	return def
}
