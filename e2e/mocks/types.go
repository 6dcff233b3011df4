package mocks

import "time"

// Forecast is the JSON object the mock LLM replies with for a ticker.
type Forecast struct {
	PredictedChangePct float64 `json:"predicted_change_pct"`
	Reason             string  `json:"reason"`
}

// SearchHit is a single Tavily search result.
type SearchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

// SheetState is what the mock Sheets API holds for one spreadsheet.
type SheetState struct {
	Header []string
	Rows   [][]string
	Added  []string
}

type chartQuote struct {
	Open   []float64 `json:"open"`
	High   []float64 `json:"high"`
	Low    []float64 `json:"low"`
	Close  []float64 `json:"close"`
	Volume []int64   `json:"volume"`
}

type chartResult struct {
	Meta struct {
		Symbol   string `json:"symbol"`
		Currency string `json:"currency"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []chartQuote `json:"quote"`
	} `json:"indicators"`
}

type chartError struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *chartError   `json:"error"`
	} `json:"chart"`
}

type chatCompletion struct {
	ID      string       `json:"id"`
	Object  string       `json:"object"`
	Created int64        `json:"created"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

type chatChoice struct {
	Index   int `json:"index"`
	Message struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	FinishReason string `json:"finish_reason"`
}

// generateChart builds n daily sessions ending today with a steady uptrend
func generateChart(symbol string, n int, now time.Time) chartResponse {
	var resp chartResponse
	var result chartResult
	result.Meta.Symbol = symbol
	result.Meta.Currency = "USD"

	quote := chartQuote{}
	base := 100.0
	for i := n - 1; i >= 0; i-- {
		day := now.AddDate(0, 0, -i)
		price := base + float64(n-i)*0.5
		result.Timestamp = append(result.Timestamp, day.Unix())
		quote.Open = append(quote.Open, price-0.25)
		quote.High = append(quote.High, price+1)
		quote.Low = append(quote.Low, price-1)
		quote.Close = append(quote.Close, price)
		quote.Volume = append(quote.Volume, int64(1000000+i*1000))
	}
	result.Indicators.Quote = []chartQuote{quote}
	resp.Chart.Result = []chartResult{result}
	return resp
}
