package services

import (
	"context"
	"fmt"
	"time"

	"stock-forecaster/models"
	"stock-forecaster/observability"

	"github.com/alpacahq/alpaca-trade-api-go/v3/marketdata"
	"github.com/shopspring/decimal"
)

// alpacaDataClient is the subset of the Alpaca market data client we use
type alpacaDataClient interface {
	GetBars(symbol string, req marketdata.GetBarsRequest) ([]marketdata.Bar, error)
}

// AlpacaService fetches daily price history from Alpaca market data
type AlpacaService struct {
	dataClient alpacaDataClient
	now        func() time.Time
}

// NewAlpacaService creates a new AlpacaService instance
func NewAlpacaService(apiKey, apiSecret string) *AlpacaService {
	dataClient := marketdata.NewClient(marketdata.ClientOpts{
		APIKey:    apiKey,
		APISecret: apiSecret,
	})

	return &AlpacaService{
		dataClient: dataClient,
		now:        time.Now,
	}
}

// GetDailyBars returns daily bars for the last N calendar days
func (s *AlpacaService) GetDailyBars(ctx context.Context, symbol string, days int) (models.PriceHistory, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerAlpaca, "bars")
	timer := metrics.NewTimer()

	end := s.now()
	start := end.AddDate(0, 0, -days)

	bars, err := WithCircuitBreaker(ctx, BreakerAlpaca, func() ([]marketdata.Bar, error) {
		return s.dataClient.GetBars(symbol, marketdata.GetBarsRequest{
			TimeFrame: marketdata.OneDay,
			Start:     start,
			End:       end,
		})
	})

	timer.ObserveExternalAPI(BreakerAlpaca, "bars")
	if err != nil {
		metrics.RecordExternalAPIError(BreakerAlpaca, "bars", categorizeAPIError(err))
		return models.PriceHistory{}, fmt.Errorf("failed to get bars for %s: %w", symbol, err)
	}

	history := models.PriceHistory{Symbol: symbol, Bars: make([]models.Bar, 0, len(bars))}
	for _, bar := range bars {
		history.Bars = append(history.Bars, models.Bar{
			Symbol:    symbol,
			Timestamp: bar.Timestamp,
			Open:      decimal.NewFromFloat(bar.Open),
			High:      decimal.NewFromFloat(bar.High),
			Low:       decimal.NewFromFloat(bar.Low),
			Close:     decimal.NewFromFloat(bar.Close),
			Volume:    int64(bar.Volume),
		})
	}

	return history, nil
}
