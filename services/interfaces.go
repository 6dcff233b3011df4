package services

import (
	"context"

	"stock-forecaster/models"
)

// LLMService is a single-turn chat completion backend
type LLMService interface {
	InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error)
}

// PriceHistoryProvider returns daily bars for the last N calendar days, oldest first
type PriceHistoryProvider interface {
	GetDailyBars(ctx context.Context, symbol string, days int) (models.PriceHistory, error)
}

// NewsSearcher runs a web or news search and returns ranked text hits
type NewsSearcher interface {
	Search(ctx context.Context, query string, maxResults int) (*SearchResult, error)
}

// SearchResult is a provider-neutral search response
type SearchResult struct {
	Answer  string      `json:"answer,omitempty"`
	Results []SearchHit `json:"results"`
}

// SearchHit is one search result
type SearchHit struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score,omitempty"`
}

// SpreadsheetWriter appends rows to a spreadsheet and creates result sheets
type SpreadsheetWriter interface {
	AppendRows(ctx context.Context, spreadsheetID string, rows [][]string) (int, error)
	WriteNewSheet(ctx context.Context, spreadsheetID, title string, rows [][]string) error
}

// Compile-time interface verification
var _ LLMService = (*OpenAIService)(nil)
var _ LLMService = (*BedrockService)(nil)
var _ PriceHistoryProvider = (*YahooService)(nil)
var _ PriceHistoryProvider = (*AlpacaService)(nil)
var _ NewsSearcher = (*TavilyService)(nil)
var _ NewsSearcher = (*NewsAPIService)(nil)
var _ SpreadsheetWriter = (*SheetsService)(nil)
