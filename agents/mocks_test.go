package agents

import (
	"context"
	"sync"
	"time"

	"stock-forecaster/models"
	"stock-forecaster/services"

	"github.com/shopspring/decimal"
)

type mockLLMService struct {
	mu         sync.Mutex
	response   string
	err        error
	lastSystem string
	lastUser   string
	calls      int
}

func (m *mockLLMService) InvokeWithPrompt(ctx context.Context, systemPrompt, userPrompt string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.lastSystem = systemPrompt
	m.lastUser = userPrompt
	if m.err != nil {
		return "", m.err
	}
	return m.response, nil
}

type mockPriceProvider struct {
	mu      sync.Mutex
	history map[string]models.PriceHistory
	err     error
	calls   int
	days    int
}

func (m *mockPriceProvider) GetDailyBars(ctx context.Context, symbol string, days int) (models.PriceHistory, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	m.days = days
	if m.err != nil {
		return models.PriceHistory{}, m.err
	}
	return m.history[symbol], nil
}

type mockNewsSearcher struct {
	mu      sync.Mutex
	results map[string]*services.SearchResult
	errOn   map[string]error
	queries []string
	limits  []int
}

func (m *mockNewsSearcher) Search(ctx context.Context, query string, maxResults int) (*services.SearchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, query)
	m.limits = append(m.limits, maxResults)
	if err, ok := m.errOn[query]; ok {
		return nil, err
	}
	if r, ok := m.results[query]; ok {
		return r, nil
	}
	return &services.SearchResult{}, nil
}

// makeHistory builds a daily window of closes starting at 2025-03-03
func makeHistory(symbol string, closes ...float64) models.PriceHistory {
	start := time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)
	bars := make([]models.Bar, len(closes))
	for i, c := range closes {
		price := decimal.NewFromFloat(c)
		bars[i] = models.Bar{
			Symbol:    symbol,
			Timestamp: start.AddDate(0, 0, i),
			Open:      price,
			High:      price.Add(decimal.NewFromInt(1)),
			Low:       price.Sub(decimal.NewFromInt(1)),
			Close:     price,
			Volume:    1000,
		}
	}
	return models.PriceHistory{Symbol: symbol, Bars: bars}
}

func hits(contents ...string) []services.SearchHit {
	out := make([]services.SearchHit, len(contents))
	for i, c := range contents {
		out[i] = services.SearchHit{Title: "t", URL: "https://example.com", Content: c}
	}
	return out
}
