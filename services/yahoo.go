package services

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"resty.dev/v3"

	"stock-forecaster/models"
	"stock-forecaster/observability"

	"github.com/shopspring/decimal"
)

// DefaultYahooBaseURL is the public Yahoo Finance query host
const DefaultYahooBaseURL = "https://query1.finance.yahoo.com"

// yahooUserAgent avoids the 403 Yahoo returns for default client agents
const yahooUserAgent = "Mozilla/5.0 (compatible; stock-forecaster/1.0)"

// YahooService fetches daily price history from the Yahoo Finance chart API
type YahooService struct {
	client *resty.Client
	now    func() time.Time
}

// chartResponse is the subset of /v8/finance/chart we read
type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol   string `json:"symbol"`
				Currency string `json:"currency"`
			} `json:"meta"`
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Open   []*float64 `json:"open"`
					High   []*float64 `json:"high"`
					Low    []*float64 `json:"low"`
					Close  []*float64 `json:"close"`
					Volume []*int64   `json:"volume"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// NewYahooService creates a new YahooService instance
func NewYahooService(baseURL string) *YahooService {
	if baseURL == "" {
		baseURL = DefaultYahooBaseURL
	}
	client := newHTTPClient(baseURL).SetHeader("User-Agent", yahooUserAgent)

	return &YahooService{
		client: client,
		now:    time.Now,
	}
}

// GetDailyBars returns daily bars for the last N calendar days, oldest first.
// Sessions with a missing close are dropped.
func (s *YahooService) GetDailyBars(ctx context.Context, symbol string, days int) (models.PriceHistory, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerYahoo, "chart")
	timer := metrics.NewTimer()

	history, err := WithCircuitBreaker(ctx, BreakerYahoo, func() (models.PriceHistory, error) {
		return s.fetchChart(ctx, symbol, days)
	})

	timer.ObserveExternalAPI(BreakerYahoo, "chart")
	if err != nil {
		metrics.RecordExternalAPIError(BreakerYahoo, "chart", categorizeAPIError(err))
		return models.PriceHistory{}, fmt.Errorf("failed to get chart for %s: %w", symbol, err)
	}
	return history, nil
}

func (s *YahooService) fetchChart(ctx context.Context, symbol string, days int) (models.PriceHistory, error) {
	end := s.now()
	start := end.AddDate(0, 0, -days)

	var result chartResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetQueryParams(map[string]string{
			"period1":  strconv.FormatInt(start.Unix(), 10),
			"period2":  strconv.FormatInt(end.Unix(), 10),
			"interval": "1d",
			"events":   "history",
		}).
		SetResult(&result).
		SetError(&result).
		Get("/v8/finance/chart/{symbol}")
	if err != nil {
		return models.PriceHistory{}, NewTransportError(BreakerYahoo, err)
	}

	if !resp.IsSuccess() {
		apiErr := ClassifyHTTPStatus(BreakerYahoo, resp.StatusCode())
		if result.Chart.Error != nil {
			apiErr.Message = result.Chart.Error.Description
		}
		return models.PriceHistory{}, apiErr
	}

	if result.Chart.Error != nil {
		return models.PriceHistory{}, NewValidationError(BreakerYahoo, result.Chart.Error.Description)
	}
	if len(result.Chart.Result) == 0 {
		return models.PriceHistory{}, NewValidationError(BreakerYahoo, "no chart result for "+symbol)
	}

	return chartToHistory(symbol, result), nil
}

func chartToHistory(symbol string, result chartResponse) models.PriceHistory {
	chart := result.Chart.Result[0]
	history := models.PriceHistory{Symbol: symbol, Bars: make([]models.Bar, 0, len(chart.Timestamp))}
	if len(chart.Indicators.Quote) == 0 {
		return history
	}
	quote := chart.Indicators.Quote[0]

	for i, ts := range chart.Timestamp {
		closePrice := at(quote.Close, i)
		if closePrice == nil {
			continue
		}
		bar := models.Bar{
			Symbol:    symbol,
			Timestamp: time.Unix(ts, 0).UTC(),
			Close:     decimal.NewFromFloat(*closePrice),
		}
		bar.Open = priceOr(at(quote.Open, i), bar.Close)
		bar.High = priceOr(at(quote.High, i), bar.Close)
		bar.Low = priceOr(at(quote.Low, i), bar.Close)
		if i < len(quote.Volume) && quote.Volume[i] != nil {
			bar.Volume = *quote.Volume[i]
		}
		history.Bars = append(history.Bars, bar)
	}

	return history
}

func at(values []*float64, i int) *float64 {
	if i < len(values) {
		return values[i]
	}
	return nil
}

func priceOr(v *float64, fallback decimal.Decimal) decimal.Decimal {
	if v == nil {
		return fallback
	}
	return decimal.NewFromFloat(*v)
}
