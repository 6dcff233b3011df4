package main

import (
	"errors"

	"github.com/spf13/cobra"

	"stock-forecaster/config"
	"stock-forecaster/models"
)

// errNoTickers is the only configuration error that stops a run
var errNoTickers = errors.New("no tickers given: pass them as arguments or with --tickers-file")

// runTarget is the resolved ticker list and output destination for a command
type runTarget struct {
	Tickers     []string
	Destination string
}

// resolveTarget merges positional tickers with a ticker file. The
// destination comes from --destination, then the ticker file, then
// GOOGLE_SHEET_ID.
func resolveTarget(cmd *cobra.Command, args []string, defaultDestination string) (runTarget, error) {
	tickers := append([]string{}, args...)
	destination := defaultDestination

	if path, _ := cmd.Flags().GetString("tickers-file"); path != "" {
		tf, err := config.LoadTickerFile(path)
		if err != nil {
			return runTarget{}, err
		}
		tickers = append(tickers, tf.Tickers...)
		if tf.Destination != "" {
			destination = tf.Destination
		}
	}

	if cmd.Flags().Changed("destination") {
		destination, _ = cmd.Flags().GetString("destination")
	}

	tickers = models.NormalizeTickers(tickers)
	if len(tickers) == 0 {
		return runTarget{}, errNoTickers
	}
	return runTarget{Tickers: tickers, Destination: destination}, nil
}

func addTickerFlags(cmd *cobra.Command) {
	cmd.Flags().String("tickers-file", "", "YAML file with a tickers list and optional destination")
}

func addDestinationFlag(cmd *cobra.Command) {
	cmd.Flags().String("destination", "", "output destination, e.g. a Google Sheet ID (defaults to GOOGLE_SHEET_ID)")
}
