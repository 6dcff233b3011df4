package agents

import (
	"context"
	"time"

	"stock-forecaster/config"
	"stock-forecaster/models"
	"stock-forecaster/observability"
)

// probeSymbol is a liquid ticker used to check the price provider is reachable
const probeSymbol = "SPY"

// DataGatherer assembles everything the forecast prompt needs for one ticker
type DataGatherer struct {
	prices       PriceHistoryProvider
	news         *NewsMacroFetcher
	lookbackDays int
	healthCache  *HealthCache
	now          func() time.Time
}

// NewDataGatherer creates a DataGatherer. The lookback never drops below
// config.MinLookbackDays.
func NewDataGatherer(prices PriceHistoryProvider, searcher NewsSearcher, lookbackDays int) *DataGatherer {
	return NewDataGathererWithCacheTTL(prices, searcher, lookbackDays, DefaultHealthCacheTTL)
}

// NewDataGathererWithCacheTTL creates a DataGatherer with a custom health cache TTL
func NewDataGathererWithCacheTTL(prices PriceHistoryProvider, searcher NewsSearcher, lookbackDays int, cacheTTL time.Duration) *DataGatherer {
	if lookbackDays < config.MinLookbackDays {
		lookbackDays = config.MinLookbackDays
	}
	return &DataGatherer{
		prices:       prices,
		news:         NewNewsMacroFetcher(searcher),
		lookbackDays: lookbackDays,
		healthCache:  NewHealthCache(cacheTTL),
		now:          time.Now,
	}
}

// LookbackDays returns the calendar-day price window requested per ticker
func (g *DataGatherer) LookbackDays() int {
	return g.lookbackDays
}

// Gather fetches price history and news/macro snippets for a ticker. Any
// fetch failure, or an empty price history, is a *DataUnavailableError.
func (g *DataGatherer) Gather(ctx context.Context, ticker string) (models.TickerData, error) {
	ticker = models.NormalizeTicker(ticker)
	if ticker == "" {
		return models.TickerData{}, &DataUnavailableError{Ticker: ticker, Reason: "empty ticker"}
	}

	history, err := g.prices.GetDailyBars(ctx, ticker, g.lookbackDays)
	if err != nil {
		return models.TickerData{}, &DataUnavailableError{Ticker: ticker, Reason: "price history fetch failed", Err: err}
	}
	if history.IsEmpty() {
		return models.TickerData{}, &DataUnavailableError{Ticker: ticker, Reason: "no price history returned"}
	}

	news, macro, err := g.news.Fetch(ctx, ticker)
	if err != nil {
		return models.TickerData{}, err
	}

	observability.WithTicker(ticker).Debug("gathered ticker data",
		"bars", history.Len(),
		"news", len(news),
		"macro", len(macro))

	return models.TickerData{
		Ticker:    ticker,
		Prices:    history,
		News:      news,
		Macro:     macro,
		FetchedAt: g.now(),
	}, nil
}

// IsAvailable checks that the price provider answers.
// Results are cached to reduce API calls during frequent health checks.
func (g *DataGatherer) IsAvailable(ctx context.Context) bool {
	if available, valid := g.healthCache.Get(); valid {
		return available
	}

	return g.probe(ctx).Available
}

// Health probes the price provider, honouring the cache, and returns the
// result with its error message for health reporting.
func (g *DataGatherer) Health(ctx context.Context) ProviderHealth {
	if _, valid := g.healthCache.Get(); valid {
		return g.healthCache.Snapshot()
	}
	return g.probe(ctx)
}

func (g *DataGatherer) probe(ctx context.Context) ProviderHealth {
	history, err := g.prices.GetDailyBars(ctx, probeSymbol, 5)
	if err == nil && history.IsEmpty() {
		err = &DataUnavailableError{Ticker: probeSymbol, Reason: "no price history returned"}
	}
	g.healthCache.SetResult(err)
	return g.healthCache.Snapshot()
}

// InvalidateHealthCache clears the health cache, forcing the next check to make a live call.
func (g *DataGatherer) InvalidateHealthCache() {
	g.healthCache.Invalidate()
}
