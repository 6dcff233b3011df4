package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TickerFile is the on-disk run configuration: an ordered ticker list and
// an optional output destination.
//
//	destination: 1AbCdEf...   # optional
//	tickers:
//	  - AAPL
//	  - MSFT
type TickerFile struct {
	Destination string   `yaml:"destination"`
	Tickers     []string `yaml:"tickers"`
}

// LoadTickerFile reads a YAML ticker file
func LoadTickerFile(path string) (*TickerFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ticker file %s: %w", path, err)
	}

	var tf TickerFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return nil, fmt.Errorf("failed to parse ticker file %s: %w", path, err)
	}

	return &tf, nil
}
