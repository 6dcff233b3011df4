package pipeline

import (
	"context"
	"sync"
	"time"

	"stock-forecaster/agents"
	"stock-forecaster/internal/statestore"
	"stock-forecaster/models"
	"stock-forecaster/observability"
)

// DefaultConcurrency bounds the tickers gathered or analyzed at once in staged mode
const DefaultConcurrency = 5

// StateStore persists stage outputs between CLI invocations
type StateStore interface {
	Save(name string, v any) error
	Load(name string, v any) error
}

// NewSheetWriter writes every analysis result to a freshly created sheet
type NewSheetWriter interface {
	WriteNewSheet(ctx context.Context, destination string, records []models.ForecastRecord, at time.Time) (string, error)
}

// GatheredState is the output of the gather stage
type GatheredState struct {
	Tickers []string                     `json:"tickers"`
	Data    map[string]models.TickerData `json:"data"`
	Skipped []models.SkippedTicker       `json:"skipped"`
}

// AnalysisState is the output of the analyze stage
type AnalysisState struct {
	Results  []models.ForecastRecord `json:"results"`
	Skipped  []models.SkippedTicker  `json:"skipped"`
	NewSheet string                  `json:"new_sheet,omitempty"`
}

// RankedState is the output of the rank stage
type RankedState struct {
	Ranked []models.ForecastRecord `json:"ranked"`
}

// StageOptions tunes staged execution
type StageOptions struct {
	Concurrency   int
	TopN          int
	TickerTimeout time.Duration
}

// Stages runs the pipeline as separate gather, analyze, rank and write steps.
// Gather and analyze process tickers concurrently; a ticker's failure never
// affects another.
type Stages struct {
	gatherer Gatherer
	analyst  Analyst
	sink     Sink
	sheets   NewSheetWriter
	store    StateStore
	opts     StageOptions
}

// NewStages creates a Stages runner. sheets may be nil when new-sheet output
// is unavailable.
func NewStages(gatherer Gatherer, analyst Analyst, sink Sink, sheets NewSheetWriter, store StateStore, opts StageOptions) *Stages {
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	opts.TopN = limitTopN(opts.TopN)
	return &Stages{gatherer: gatherer, analyst: analyst, sink: sink, sheets: sheets, store: store, opts: opts}
}

func (s *Stages) tickerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.opts.TickerTimeout > 0 {
		return context.WithTimeout(ctx, s.opts.TickerTimeout)
	}
	return context.WithCancel(ctx)
}

// forEach runs fn for every index with at most Concurrency calls in flight.
// Indexes that cannot start before ctx is done go to cancelled instead of fn.
func (s *Stages) forEach(ctx context.Context, n int, fn func(ctx context.Context, i int), cancelled func(i int, err error)) {
	sem := make(chan struct{}, s.opts.Concurrency)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				cancelled(idx, ctx.Err())
				return
			}
			defer func() { <-sem }()

			if err := ctx.Err(); err != nil {
				cancelled(idx, err)
				return
			}

			tctx, cancel := s.tickerContext(ctx)
			defer cancel()
			fn(tctx, idx)
		}(i)
	}
	wg.Wait()
}

// Gather normalizes tickers, gathers data for all of them and saves the result
func (s *Stages) Gather(ctx context.Context, tickers []string) (GatheredState, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.gather")
	defer span.End()

	normalized := models.NormalizeTickers(tickers)
	type result struct {
		data models.TickerData
		err  error
	}
	results := make([]result, len(normalized))

	metrics := observability.GetMetrics()
	s.forEach(ctx, len(normalized), func(ctx context.Context, i int) {
		timer := metrics.NewTimer()
		data, err := s.gatherer.Gather(ctx, normalized[i])
		timer.ObserveTickerStage("gather")
		results[i] = result{data: data, err: err}
	}, func(i int, err error) {
		results[i] = result{err: &agents.DataUnavailableError{Ticker: normalized[i], Reason: "cancelled before fetch", Err: err}}
	})

	state := GatheredState{
		Tickers: []string{},
		Data:    make(map[string]models.TickerData, len(normalized)),
		Skipped: []models.SkippedTicker{},
	}
	for i, r := range results {
		ticker := normalized[i]
		if r.err != nil {
			outcome := SkipFromError(ticker, r.err)
			state.Skipped = append(state.Skipped, *outcome.Skip)
			metrics.RecordTickerOutcome(outcome.Label())
			observability.WithTicker(ticker).Warn("skipping ticker", "kind", outcome.Skip.Kind, "error", r.err)
			continue
		}
		state.Tickers = append(state.Tickers, ticker)
		state.Data[ticker] = r.data
	}

	if err := s.store.Save(statestore.GatheredFile, state); err != nil {
		return state, err
	}
	observability.Info("gather stage complete", "gathered", len(state.Tickers), "skipped", len(state.Skipped))
	return state, nil
}

// Analyze forecasts every gathered ticker and saves the results. When
// newSheetDestination is set, all results are also written to a new sheet;
// a failure there is logged and does not fail the stage.
func (s *Stages) Analyze(ctx context.Context, newSheetDestination string) (AnalysisState, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.analyze")
	defer span.End()

	var gathered GatheredState
	if err := s.store.Load(statestore.GatheredFile, &gathered); err != nil {
		return AnalysisState{}, err
	}

	outcomes := make([]TickerOutcome, len(gathered.Tickers))
	metrics := observability.GetMetrics()
	s.forEach(ctx, len(gathered.Tickers), func(ctx context.Context, i int) {
		ticker := gathered.Tickers[i]
		timer := metrics.NewTimer()
		record, err := s.analyst.Analyze(ctx, gathered.Data[ticker])
		timer.ObserveTickerStage("analyze")
		if err != nil {
			outcomes[i] = SkipFromError(ticker, err)
			return
		}
		outcomes[i] = Forecast(record)
	}, func(i int, err error) {
		ticker := gathered.Tickers[i]
		outcomes[i] = SkipFromError(ticker, &agents.AnalysisFailedError{Ticker: ticker, Err: err})
	})

	state := AnalysisState{
		Results: []models.ForecastRecord{},
		Skipped: append([]models.SkippedTicker{}, gathered.Skipped...),
	}
	for _, o := range outcomes {
		metrics.RecordTickerOutcome(o.Label())
		if o.Skip != nil {
			state.Skipped = append(state.Skipped, *o.Skip)
			observability.WithTicker(o.Ticker).Warn("skipping ticker", "kind", o.Skip.Kind, "reason", o.Skip.Reason)
			continue
		}
		metrics.RecordForecast(o.Record.PredictedChangePct)
		state.Results = append(state.Results, *o.Record)
	}

	if newSheetDestination != "" && s.sheets != nil {
		title, err := s.sheets.WriteNewSheet(ctx, newSheetDestination, state.Results, time.Now())
		if err != nil {
			observability.WithError(err).Warn("failed to write analysis sheet", "title", title)
		} else {
			state.NewSheet = title
			observability.Info("analysis written to new sheet", "title", title, "rows", len(state.Results))
		}
	}

	if err := s.store.Save(statestore.AnalysisFile, state); err != nil {
		return state, err
	}
	observability.Info("analyze stage complete", "forecasts", len(state.Results), "skipped", len(state.Skipped))
	return state, nil
}

// Rank ranks the saved analysis results and saves the ranking
func (s *Stages) Rank() (RankedState, error) {
	var analysis AnalysisState
	if err := s.store.Load(statestore.AnalysisFile, &analysis); err != nil {
		return RankedState{}, err
	}

	state := RankedState{Ranked: RankTop(analysis.Results, s.opts.TopN)}
	observability.GetMetrics().SetRankedForecasts(len(state.Ranked))
	if err := s.store.Save(statestore.RankedFile, state); err != nil {
		return state, err
	}
	return state, nil
}

// Write sends the saved ranking to the sink. Sink failures are reported, not returned.
func (s *Stages) Write(ctx context.Context, destination string) (SinkReport, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.write")
	defer span.End()

	var ranked RankedState
	if err := s.store.Load(statestore.RankedFile, &ranked); err != nil {
		return SinkReport{}, err
	}
	return s.sink.Write(ctx, ranked.Ranked, destination), nil
}
