package pipeline

// Transition computes the next state and the command to execute from the
// current state and the result of the previous command. It never mutates s.
// An event that does not belong to the current state leaves the state
// unchanged and emits CommandNone.
func Transition(s PipelineState, ev Event) (PipelineState, Command) {
	next := s.clone()

	switch s.State {
	case StateSelectTicker:
		if len(next.Pending) == 0 {
			next.Current = ""
			next.State = StateRank
			return next, Command{Kind: CommandNone}
		}
		next.Current = next.Pending[0]
		next.Pending = next.Pending[1:]
		next.State = StateGatherData
		return next, Command{Kind: CommandGather, Ticker: next.Current}

	case StateGatherData:
		switch ev.Kind {
		case EventGathered:
			next.Gathered[next.Current] = ev.Data
			next.State = StateAnalyze
			return next, Command{Kind: CommandAnalyze, Ticker: next.Current, Data: ev.Data}
		case EventGatherFailed:
			if ev.Outcome.Skip != nil {
				next.Skipped = append(next.Skipped, *ev.Outcome.Skip)
			}
			next.Current = ""
			next.State = StateSelectTicker
			return next, Command{Kind: CommandNone}
		}

	case StateAnalyze:
		if ev.Kind == EventAnalyzed {
			switch {
			case ev.Outcome.Record != nil:
				next.Results = append(next.Results, *ev.Outcome.Record)
			case ev.Outcome.Skip != nil:
				next.Skipped = append(next.Skipped, *ev.Outcome.Skip)
			}
			next.Current = ""
			next.State = StateSelectTicker
			return next, Command{Kind: CommandNone}
		}

	case StateRank:
		next.Ranked = RankTop(next.Results, next.TopN)
		next.State = StateWriteOutput
		return next, Command{
			Kind:        CommandWrite,
			Records:     next.Ranked,
			Destination: next.Destination,
		}

	case StateWriteOutput:
		if ev.Kind == EventWritten {
			report := ev.Report
			next.Sink = &report
			next.State = StateDone
			return next, Command{Kind: CommandNone}
		}
	}

	return s, Command{Kind: CommandNone}
}
