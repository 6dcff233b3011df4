package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"stock-forecaster/models"
	"stock-forecaster/observability"
)

// Gatherer fetches everything needed to forecast a ticker
type Gatherer interface {
	Gather(ctx context.Context, ticker string) (models.TickerData, error)
}

// Analyst turns gathered data into a forecast
type Analyst interface {
	Analyze(ctx context.Context, data models.TickerData) (models.ForecastRecord, error)
}

// Observer is called with the state value every time a state is entered
type Observer func(s PipelineState)

// Options tunes a Controller
type Options struct {
	TopN          int
	TickerTimeout time.Duration
	Observer      Observer
}

// Controller drives the state machine one ticker at a time, executing the
// commands Transition emits.
type Controller struct {
	gatherer Gatherer
	analyst  Analyst
	sink     Sink
	opts     Options
}

// NewController creates a new Controller
func NewController(gatherer Gatherer, analyst Analyst, sink Sink, opts Options) *Controller {
	opts.TopN = limitTopN(opts.TopN)
	return &Controller{gatherer: gatherer, analyst: analyst, sink: sink, opts: opts}
}

// Run processes tickers in order, ranks the forecasts and writes them to
// destination. Per-ticker failures become skips and sink failures are
// recorded in the report; neither fails the run. Cancelling ctx stops the
// run between states and returns the partial state with ctx.Err().
func (c *Controller) Run(ctx context.Context, tickers []string, destination string) (PipelineState, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.run",
		attribute.Int("tickers", len(tickers)),
		attribute.Bool("has_destination", destination != ""))
	defer span.End()

	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()

	state := NewPipelineState(tickers, destination, c.opts.TopN)
	c.enter(state)

	ev := Event{}
	for !state.Done() {
		if err := ctx.Err(); err != nil {
			timer.ObservePipelineRun("cancelled")
			span.SetStatus(codes.Error, "cancelled")
			return state, err
		}

		next, cmd := Transition(state, ev)
		if next.State == state.State && cmd.Kind == CommandNone {
			err := fmt.Errorf("pipeline stuck in %s", state.State)
			timer.ObservePipelineRun("failed")
			span.RecordError(err)
			return state, err
		}

		ev = c.execute(ctx, cmd)
		state = next
		c.enter(state)
	}

	observability.InfoContext(ctx, "pipeline finished",
		"forecasts", len(state.Results),
		"skipped", len(state.Skipped),
		"ranked", len(state.Ranked),
		"sink", state.Sink.Summary())
	metrics.SetRankedForecasts(len(state.Ranked))
	timer.ObservePipelineRun("completed")
	return state, nil
}

func (c *Controller) enter(s PipelineState) {
	observability.GetMetrics().RecordStateTransition(s.State.String())
	if c.opts.Observer != nil {
		c.opts.Observer(s)
	}
}

func (c *Controller) execute(ctx context.Context, cmd Command) Event {
	switch cmd.Kind {
	case CommandGather:
		data, err := c.gather(ctx, cmd.Ticker)
		if err != nil {
			return GatherFailed(SkipFromError(cmd.Ticker, err))
		}
		return Gathered(data)
	case CommandAnalyze:
		return Analyzed(c.analyze(ctx, cmd.Ticker, cmd.Data))
	case CommandWrite:
		return Written(c.write(ctx, cmd.Records, cmd.Destination))
	default:
		return Event{}
	}
}

func (c *Controller) tickerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.TickerTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.TickerTimeout)
	}
	return context.WithCancel(ctx)
}

func (c *Controller) gather(ctx context.Context, ticker string) (models.TickerData, error) {
	ctx, span := observability.StartSpan(ctx, "pipeline.gather", attribute.String("ticker", ticker))
	defer span.End()
	ctx, cancel := c.tickerContext(ctx)
	defer cancel()

	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	data, err := c.gatherer.Gather(ctx, ticker)
	timer.ObserveTickerStage("gather")

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "data unavailable")
		metrics.RecordTickerOutcome(string(models.SkipDataUnavailable))
		observability.WithTicker(ticker).Warn("skipping ticker", "kind", models.SkipDataUnavailable, "error", err)
		return models.TickerData{}, err
	}
	return data, nil
}

func (c *Controller) analyze(ctx context.Context, ticker string, data models.TickerData) TickerOutcome {
	ctx, span := observability.StartSpan(ctx, "pipeline.analyze", attribute.String("ticker", ticker))
	defer span.End()
	ctx, cancel := c.tickerContext(ctx)
	defer cancel()

	metrics := observability.GetMetrics()
	timer := metrics.NewTimer()
	record, err := c.analyst.Analyze(ctx, data)
	timer.ObserveTickerStage("analyze")

	var outcome TickerOutcome
	if err != nil {
		outcome = SkipFromError(ticker, err)
		span.RecordError(err)
		span.SetStatus(codes.Error, outcome.Label())
		observability.WithTicker(ticker).Warn("skipping ticker", "kind", outcome.Skip.Kind, "error", err)
	} else {
		outcome = Forecast(record)
		metrics.RecordForecast(record.PredictedChangePct)
		span.SetAttributes(attribute.Float64("predicted_change_pct", record.PredictedChangePct))
		observability.WithTicker(ticker).Info("forecast",
			"predicted_change_pct", record.PredictedChangePct,
			"reason", record.Reason)
	}
	metrics.RecordTickerOutcome(outcome.Label())
	return outcome
}

func (c *Controller) write(ctx context.Context, records []models.ForecastRecord, destination string) SinkReport {
	ctx, span := observability.StartSpan(ctx, "pipeline.write", attribute.Int("records", len(records)))
	defer span.End()

	report := c.sink.Write(ctx, records, destination)
	span.SetAttributes(attribute.Int("written", report.Written), attribute.Bool("skipped", report.Skipped))
	if report.Err != nil {
		span.RecordError(report.Err)
		span.SetStatus(codes.Error, "output write error")
	}
	return report
}
