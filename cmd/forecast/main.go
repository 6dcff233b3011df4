// Command forecast predicts one-week price changes for a list of tickers,
// ranks the strongest gainers and writes them to a spreadsheet or database.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"stock-forecaster/config"
	"stock-forecaster/observability"
)

var (
	cfg             *config.Config
	shutdownTracing observability.ShutdownFunc
)

var rootCmd = &cobra.Command{
	Use:   "forecast",
	Short: "Forecast one-week stock moves with an LLM and rank the top gainers",
	Long: `forecast gathers recent prices, news and macro context for each ticker,
asks a language model for a one-week price change prediction, ranks the
positive predictions and writes the top results to Google Sheets or Postgres.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if shutdownTracing != nil {
			if err := shutdownTracing(context.Background()); err != nil {
				observability.Warn("failed to flush traces", "error", err)
			}
		}
	},
}

func init() {
	rootCmd.AddCommand(runCmd, stageCmd, serveCmd)
}

// setup loads .env and the environment, then initializes logging, metrics and tracing
func setup(cmd *cobra.Command, args []string) error {
	if err := godotenv.Load(); err != nil {
		// a missing .env is normal; real environment variables still apply
		fmt.Fprintln(os.Stderr, "No .env file found, using environment variables")
	}

	var err error
	cfg, err = config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	observability.InitLoggerWithLevel(cfg.Log.Format == "json", observability.ParseLevel(cfg.Log.Level))
	observability.InitMetrics()

	shutdownTracing, err = observability.InitTracing(cfg.Log.TracingEnabled)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	return nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
