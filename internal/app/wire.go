package app

import (
	"context"
	"fmt"
	"time"

	"stock-forecaster/agents"
	"stock-forecaster/config"
	"stock-forecaster/internal/statestore"
	"stock-forecaster/models"
	"stock-forecaster/observability"
	"stock-forecaster/pipeline"
	"stock-forecaster/repository"
	"stock-forecaster/services"
)

// Build wires the configured providers, sink and optional database into an App.
// A database that cannot be reached is logged and skipped unless the
// postgres sink depends on it.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	var store repository.RunStore
	var repo *repository.Repository
	if cfg.HasDatabase() {
		r, err := OpenRepository(ctx, cfg)
		switch {
		case err == nil:
			repo = r
			store = r
		case cfg.Output.Sink == config.SinkPostgres:
			return nil, fmt.Errorf("postgres sink: %w", err)
		default:
			observability.Warn("failed to initialize database, run history disabled", "error", err)
		}
	}

	llm, err := NewLLM(ctx, cfg)
	if err != nil {
		return nil, err
	}
	gatherer, err := NewGatherer(cfg)
	if err != nil {
		return nil, err
	}

	analyst := agents.NewForecastAnalyst(llm)
	sink, _ := NewSink(ctx, cfg, repo)

	controller := pipeline.NewController(gatherer, analyst, sink, pipeline.Options{
		TopN:          cfg.Pipeline.TopN,
		TickerTimeout: tickerTimeout(cfg),
		Observer:      logState,
	})

	return New(cfg, store, controller, gatherer), nil
}

// NewStages returns a staged runner persisting stage outputs in
// PIPELINE_STATE_DIR. Each stage only uses its own dependency, so callers
// pass nil for the ones a stage does not need.
func NewStages(cfg *config.Config, gatherer pipeline.Gatherer, analyst pipeline.Analyst, sink pipeline.Sink, sheets pipeline.NewSheetWriter) (*pipeline.Stages, error) {
	store, err := statestore.New(cfg.Pipeline.StateDir)
	if err != nil {
		return nil, err
	}
	return pipeline.NewStages(gatherer, analyst, sink, sheets, store, pipeline.StageOptions{
		Concurrency:   cfg.Pipeline.ConcurrencyLimit,
		TopN:          cfg.Pipeline.TopN,
		TickerTimeout: tickerTimeout(cfg),
	}), nil
}

// NewGatherer creates a DataGatherer from the configured providers
func NewGatherer(cfg *config.Config) (*agents.DataGatherer, error) {
	prices, err := NewPriceProvider(cfg)
	if err != nil {
		return nil, err
	}
	searcher, err := NewNewsSearcher(cfg)
	if err != nil {
		return nil, err
	}
	return agents.NewDataGatherer(prices, searcher, cfg.MarketData.LookbackDays), nil
}

// OpenRepository connects to DATABASE_URL and ensures the schema exists
func OpenRepository(ctx context.Context, cfg *config.Config) (*repository.Repository, error) {
	if !cfg.HasDatabase() {
		return nil, repository.ErrNoDatabase
	}
	return repository.NewRepository(ctx, cfg.Database.URL)
}

// NewLLM creates the configured language model client
func NewLLM(ctx context.Context, cfg *config.Config) (services.LLMService, error) {
	switch cfg.LLM.Provider {
	case config.LLMProviderBedrock:
		return services.NewBedrockService(ctx, cfg)
	case config.LLMProviderOpenAI, "":
		return services.NewOpenAIService(cfg)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.LLM.Provider)
	}
}

// NewPriceProvider creates the configured market data client
func NewPriceProvider(cfg *config.Config) (services.PriceHistoryProvider, error) {
	switch cfg.MarketData.Provider {
	case config.MarketDataAlpaca:
		if !cfg.HasAlpaca() {
			return nil, fmt.Errorf("ALPACA_API_KEY and ALPACA_API_SECRET are required for the alpaca provider")
		}
		return services.NewAlpacaService(cfg.Alpaca.APIKey, cfg.Alpaca.APISecret), nil
	case config.MarketDataYahoo, "":
		return services.NewYahooService(cfg.MarketData.YahooBaseURL), nil
	default:
		return nil, fmt.Errorf("unknown market data provider %q", cfg.MarketData.Provider)
	}
}

// NewNewsSearcher creates the configured news and macro search client
func NewNewsSearcher(cfg *config.Config) (services.NewsSearcher, error) {
	switch cfg.News.Provider {
	case config.NewsProviderNewsAPI:
		return services.NewNewsAPIService(cfg.News.NewsAPIKey, cfg.News.NewsAPIBaseURL)
	case config.NewsProviderTavily, "":
		return services.NewTavilyService(cfg.News.TavilyAPIKey, cfg.News.TavilyBaseURL)
	default:
		return nil, fmt.Errorf("unknown news provider %q", cfg.News.Provider)
	}
}

// NewSink creates the configured results sink. The Sheets sink also returns
// a writer for new analysis sheets. A Sheets client that cannot be created
// leaves a sink whose writes fail, so the run still completes.
func NewSink(ctx context.Context, cfg *config.Config, repo *repository.Repository) (pipeline.Sink, pipeline.NewSheetWriter) {
	if cfg.Output.Sink == config.SinkPostgres && repo != nil {
		return pipeline.NewResultsSink(config.SinkPostgres, repo), nil
	}

	client, err := services.NewSheetsService(ctx, cfg.Output.CredentialsFile, cfg.Output.SheetsEndpoint)
	if err != nil {
		observability.Warn("sheets client unavailable, results will not be written", "error", err)
		return pipeline.NewResultsSink(config.SinkSheets, unavailableAppender{err: err}), nil
	}
	appender := pipeline.NewSheetsAppender(client)
	return pipeline.NewResultsSink(config.SinkSheets, appender), appender
}

// unavailableAppender fails every write with the error that prevented the
// client from being created
type unavailableAppender struct {
	err error
}

func (u unavailableAppender) AppendRows(context.Context, string, []models.ForecastRecord) (int, error) {
	return 0, u.err
}

func tickerTimeout(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Pipeline.TickerTimeoutSeconds) * time.Second
}

// logState prints per-ticker progress as the controller moves between states
func logState(s pipeline.PipelineState) {
	switch s.State {
	case pipeline.StateGatherData:
		observability.WithTicker(s.Current).Info("gathering data", "remaining", len(s.Pending))
	case pipeline.StateAnalyze:
		observability.WithTicker(s.Current).Info("analyzing")
	case pipeline.StateRank:
		observability.Info("ranking forecasts", "forecasts", len(s.Results), "skipped", len(s.Skipped))
	case pipeline.StateWriteOutput:
		observability.Info("writing results", "ranked", len(s.Ranked), "destination", s.Destination)
	}
}
