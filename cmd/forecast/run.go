package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"stock-forecaster/internal/app"
)

var runCmd = &cobra.Command{
	Use:   "run [TICKERS...]",
	Short: "Run the full pipeline: gather, analyze, rank and write",
	Example: `  forecast run AAPL MSFT NVDA --destination 1AbCdEf
  forecast run AAPL,MSFT
  forecast run --tickers-file tickers.yaml`,
	RunE: runPipeline,
}

func init() {
	addTickerFlags(runCmd)
	addDestinationFlag(runCmd)
}

func runPipeline(cmd *cobra.Command, args []string) error {
	target, err := resolveTarget(cmd, args, cfg.Output.Destination)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.Build(ctx, cfg)
	if err != nil {
		return err
	}
	defer application.Shutdown()

	run, err := application.RunPipeline(ctx, target.Tickers, target.Destination)
	if run != nil {
		out := cmd.OutOrStdout()
		printSummary(out, run)
		printRanked(out, run.Ranked)
	}
	return err
}
