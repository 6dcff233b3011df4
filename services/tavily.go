package services

import (
	"context"
	"fmt"
	"strings"

	"resty.dev/v3"

	"stock-forecaster/observability"
)

// DefaultTavilyBaseURL is the Tavily search API host
const DefaultTavilyBaseURL = "https://api.tavily.com"

// TavilyService runs web searches through the Tavily API
type TavilyService struct {
	client *resty.Client
}

type tavilySearchRequest struct {
	Query         string `json:"query"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
	MaxResults    int    `json:"max_results"`
}

type tavilySearchResponse struct {
	Query   string `json:"query"`
	Answer  string `json:"answer"`
	Results []struct {
		Title   string  `json:"title"`
		URL     string  `json:"url"`
		Content string  `json:"content"`
		Score   float64 `json:"score"`
	} `json:"results"`
}

// NewTavilyService creates a new TavilyService instance
func NewTavilyService(apiKey, baseURL string) (*TavilyService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("TAVILY_API_KEY is required")
	}
	if baseURL == "" {
		baseURL = DefaultTavilyBaseURL
	}

	// Searches are read-only, so POST retries are safe.
	client := newHTTPClient(baseURL).
		SetAuthToken(apiKey).
		SetAllowNonIdempotentRetry(true)

	return &TavilyService{client: client}, nil
}

// Search runs an advanced search with a synthesized answer
func (s *TavilyService) Search(ctx context.Context, query string, maxResults int) (*SearchResult, error) {
	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerTavily, "search")
	timer := metrics.NewTimer()

	result, err := WithCircuitBreaker(ctx, BreakerTavily, func() (*SearchResult, error) {
		return s.search(ctx, query, maxResults)
	})

	timer.ObserveExternalAPI(BreakerTavily, "search")
	if err != nil {
		metrics.RecordExternalAPIError(BreakerTavily, "search", categorizeAPIError(err))
		return nil, fmt.Errorf("tavily search %q: %w", query, err)
	}
	return result, nil
}

func (s *TavilyService) search(ctx context.Context, query string, maxResults int) (*SearchResult, error) {
	var body tavilySearchResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(tavilySearchRequest{
			Query:         query,
			SearchDepth:   "advanced",
			IncludeAnswer: true,
			MaxResults:    maxResults,
		}).
		SetResult(&body).
		Post("/search")
	if err != nil {
		return nil, NewTransportError(BreakerTavily, err)
	}
	if !resp.IsSuccess() {
		return nil, ClassifyHTTPStatus(BreakerTavily, resp.StatusCode())
	}

	result := &SearchResult{
		Answer:  strings.TrimSpace(body.Answer),
		Results: make([]SearchHit, 0, len(body.Results)),
	}
	for _, r := range body.Results {
		result.Results = append(result.Results, SearchHit{
			Title:   r.Title,
			URL:     r.URL,
			Content: r.Content,
			Score:   r.Score,
		})
	}
	return result, nil
}
