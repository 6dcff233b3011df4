package agents

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"stock-forecaster/models"
	"stock-forecaster/observability"
)

const forecastSystemPrompt = `You are an equity analyst producing short-horizon price forecasts.

Using the recent price action, company news and macroeconomic context you are given,
predict the percentage change in the stock's price exactly one week from today and
explain the main driver in one or two sentences.

Respond with JSON only, using exactly these keys:
{
  "predicted_change_pct": <number, e.g. 2.5 for +2.5%, -1.2 for -1.2%>,
  "reason": "<one or two sentence explanation>"
}`

const noSnippetsLine = "No news or macro data. Rely on the price data alone."

const (
	rangeSessions  = 14
	recentSessions = 7
)

// ForecastAnalyst asks the language model for a one-week price change forecast
type ForecastAnalyst struct {
	llm LLMService
	now func() time.Time
}

// NewForecastAnalyst creates a new ForecastAnalyst
func NewForecastAnalyst(llm LLMService) *ForecastAnalyst {
	return &ForecastAnalyst{llm: llm, now: time.Now}
}

// Analyze builds the prompt for a ticker, invokes the model and parses its
// reply. Model failures are *AnalysisFailedError, unreadable replies are
// *AnalysisParseError.
func (a *ForecastAnalyst) Analyze(ctx context.Context, data models.TickerData) (models.ForecastRecord, error) {
	ticker := models.NormalizeTicker(data.Ticker)

	reply, err := a.llm.InvokeWithPrompt(ctx, forecastSystemPrompt, BuildUserPrompt(data))
	if err != nil {
		return models.ForecastRecord{}, &AnalysisFailedError{Ticker: ticker, Err: err}
	}

	parsed, err := ParseForecastReply(reply)
	if err != nil {
		var parseErr *AnalysisParseError
		if errors.As(err, &parseErr) {
			parseErr.Ticker = ticker
		}
		observability.WithTicker(ticker).Debug("unparseable forecast reply", "reply", reply)
		return models.ForecastRecord{}, err
	}

	return models.NewForecastRecord(ticker, parsed.PredictedChangePct, parsed.Reason, a.now()), nil
}

// BuildUserPrompt renders the per-ticker prompt from gathered data
func BuildUserPrompt(data models.TickerData) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Ticker: %s\n\n", models.NormalizeTicker(data.Ticker))
	sb.WriteString("Price trend summary:\n")
	sb.WriteString(PriceSummary(data.Prices))
	sb.WriteString("\n\nNews and macro:\n")
	sb.WriteString(NewsMacroSummary(data.News, data.Macro))
	sb.WriteString("\n\nRespond with the JSON object only (predicted_change_pct, reason).")
	return sb.String()
}

// PriceSummary describes the price window: dates, sessions, start and current
// price, overall move, recent high/low and the latest closes.
func PriceSummary(h models.PriceHistory) string {
	if h.IsEmpty() {
		return "No price data available."
	}

	first, last := h.First(), h.Last()
	high, low := h.HighLow(rangeSessions)

	closes := h.LastCloses(recentSessions)
	formatted := make([]string, len(closes))
	for i, c := range closes {
		formatted[i] = c.StringFixed(2)
	}

	change := h.ChangePct()
	sign := ""
	if change.IsPositive() {
		sign = "+"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Window: %s to %s (%d sessions)\n", first.Date(), last.Date(), h.Len())
	fmt.Fprintf(&sb, "Start price: %s\n", first.Close.StringFixed(2))
	fmt.Fprintf(&sb, "Current price: %s\n", last.Close.StringFixed(2))
	fmt.Fprintf(&sb, "Change over window: %s%s%%\n", sign, change.StringFixed(2))
	fmt.Fprintf(&sb, "%d-session high: %s\n", rangeSessions, high.StringFixed(2))
	fmt.Fprintf(&sb, "%d-session low: %s\n", rangeSessions, low.StringFixed(2))
	fmt.Fprintf(&sb, "Last %d closes: %s", len(closes), strings.Join(formatted, ", "))
	return sb.String()
}

// NewsMacroSummary joins snippets into "News:" and "Macro:" lines
func NewsMacroSummary(news, macro []string) string {
	var lines []string
	if len(news) > 0 {
		lines = append(lines, "News: "+strings.Join(news, " | "))
	}
	if len(macro) > 0 {
		lines = append(lines, "Macro: "+strings.Join(macro, " | "))
	}
	if len(lines) == 0 {
		return noSnippetsLine
	}
	return strings.Join(lines, "\n")
}
