package pipeline

import (
	"fmt"
	"slices"

	"stock-forecaster/models"
)

// State is a node of the forecasting state machine
type State int

const (
	StateSelectTicker State = iota
	StateGatherData
	StateAnalyze
	StateRank
	StateWriteOutput
	StateDone
)

func (s State) String() string {
	switch s {
	case StateSelectTicker:
		return "select_ticker"
	case StateGatherData:
		return "gather_data"
	case StateAnalyze:
		return "analyze"
	case StateRank:
		return "rank"
	case StateWriteOutput:
		return "write_output"
	case StateDone:
		return "done"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// CommandKind names the side effect a transition asks the controller to run
type CommandKind int

const (
	CommandNone CommandKind = iota
	CommandGather
	CommandAnalyze
	CommandWrite
)

func (k CommandKind) String() string {
	switch k {
	case CommandNone:
		return "none"
	case CommandGather:
		return "gather"
	case CommandAnalyze:
		return "analyze"
	case CommandWrite:
		return "write"
	default:
		return fmt.Sprintf("command(%d)", int(k))
	}
}

// Command is the side effect emitted by Transition
type Command struct {
	Kind        CommandKind
	Ticker      string
	Data        models.TickerData
	Records     []models.ForecastRecord
	Destination string
}

// EventKind names the result fed back into Transition
type EventKind int

const (
	EventNone EventKind = iota
	EventGathered
	EventGatherFailed
	EventAnalyzed
	EventWritten
)

// Event is the outcome of the previous command
type Event struct {
	Kind    EventKind
	Data    models.TickerData
	Outcome TickerOutcome
	Report  SinkReport
}

// Gathered reports data fetched for the current ticker
func Gathered(data models.TickerData) Event {
	return Event{Kind: EventGathered, Data: data}
}

// GatherFailed reports a fetch failure for the current ticker
func GatherFailed(outcome TickerOutcome) Event {
	return Event{Kind: EventGatherFailed, Outcome: outcome}
}

// Analyzed reports a forecast or a skip for the current ticker
func Analyzed(outcome TickerOutcome) Event {
	return Event{Kind: EventAnalyzed, Outcome: outcome}
}

// Written reports the sink outcome
func Written(report SinkReport) Event {
	return Event{Kind: EventWritten, Report: report}
}

// PipelineState is the full value threaded through the state machine
type PipelineState struct {
	State       State                        `json:"state"`
	Pending     []string                     `json:"pending"`
	Current     string                       `json:"current,omitempty"`
	Gathered    map[string]models.TickerData `json:"gathered,omitempty"`
	Results     []models.ForecastRecord      `json:"results"`
	Skipped     []models.SkippedTicker       `json:"skipped"`
	Ranked      []models.ForecastRecord      `json:"ranked"`
	Destination string                       `json:"destination,omitempty"`
	TopN        int                          `json:"top_n"`
	Sink        *SinkReport                  `json:"sink,omitempty"`
}

// NewPipelineState starts a run at SelectTicker with normalized, de-duplicated tickers
func NewPipelineState(tickers []string, destination string, topN int) PipelineState {
	topN = limitTopN(topN)
	return PipelineState{
		State:       StateSelectTicker,
		Pending:     models.NormalizeTickers(tickers),
		Gathered:    map[string]models.TickerData{},
		Results:     []models.ForecastRecord{},
		Skipped:     []models.SkippedTicker{},
		Ranked:      []models.ForecastRecord{},
		Destination: destination,
		TopN:        topN,
	}
}

// clone copies every slice and map so a transition never aliases its input
func (s PipelineState) clone() PipelineState {
	c := s
	c.Pending = slices.Clone(s.Pending)
	c.Results = slices.Clone(s.Results)
	c.Skipped = slices.Clone(s.Skipped)
	c.Ranked = slices.Clone(s.Ranked)
	c.Gathered = make(map[string]models.TickerData, len(s.Gathered))
	for k, v := range s.Gathered {
		c.Gathered[k] = v
	}
	if s.Sink != nil {
		report := *s.Sink
		c.Sink = &report
	}
	return c
}

// Done reports whether the run reached its terminal state
func (s PipelineState) Done() bool {
	return s.State == StateDone
}
