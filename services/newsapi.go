package services

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"stock-forecaster/models"
	"stock-forecaster/observability"
)

// DefaultNewsAPIBaseURL is the NewsAPI.org v2 endpoint
const DefaultNewsAPIBaseURL = "https://newsapi.org/v2"

// NewsAPIService handles communication with NewsAPI.org
type NewsAPIService struct {
	apiKey      string
	httpClient  *http.Client
	baseURL     string
	retryConfig RetryConfig
}

// NewNewsAPIService creates a new NewsAPIService instance
func NewNewsAPIService(apiKey, baseURL string) (*NewsAPIService, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("NEWS_API_KEY is required")
	}
	if baseURL == "" {
		baseURL = DefaultNewsAPIBaseURL
	}
	return &NewsAPIService{
		apiKey:      apiKey,
		httpClient:  &http.Client{Timeout: defaultRequestTimeout},
		baseURL:     strings.TrimRight(baseURL, "/"),
		retryConfig: DefaultRetryConfig,
	}, nil
}

// NewsAPIResponse represents the response from NewsAPI
type NewsAPIResponse struct {
	Status       string `json:"status"`
	Code         string `json:"code"`
	Message      string `json:"message"`
	TotalResults int    `json:"totalResults"`
	Articles     []struct {
		Source struct {
			ID   string `json:"id"`
			Name string `json:"name"`
		} `json:"source"`
		Author      string `json:"author"`
		Title       string `json:"title"`
		Description string `json:"description"`
		URL         string `json:"url"`
		PublishedAt string `json:"publishedAt"`
		Content     string `json:"content"`
	} `json:"articles"`
}

// GetNews returns the most recent articles matching a query
func (s *NewsAPIService) GetNews(ctx context.Context, query string, limit int) ([]models.NewsArticle, error) {
	if limit <= 0 {
		limit = 10
	}
	if limit > 100 {
		limit = 100
	}

	metrics := observability.GetMetrics()
	metrics.RecordExternalAPIRequest(BreakerNewsAPI, "everything")
	timer := metrics.NewTimer()

	articles, err := WithCircuitBreaker(ctx, BreakerNewsAPI, func() ([]models.NewsArticle, error) {
		var articles []models.NewsArticle
		err := WithRetry(ctx, s.retryConfig, func() error {
			var err error
			articles, err = s.fetchEverything(ctx, query, limit)
			return err
		})
		return articles, err
	})

	timer.ObserveExternalAPI(BreakerNewsAPI, "everything")
	if err != nil {
		metrics.RecordExternalAPIError(BreakerNewsAPI, "everything", categorizeAPIError(err))
		return nil, err
	}
	return articles, nil
}

func (s *NewsAPIService) fetchEverything(ctx context.Context, query string, limit int) ([]models.NewsArticle, error) {
	params := url.Values{}
	params.Set("q", query)
	params.Set("language", "en")
	params.Set("sortBy", "publishedAt")
	params.Set("pageSize", strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/everything?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("X-Api-Key", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, NewTransportError(BreakerNewsAPI, err)
	}
	defer resp.Body.Close()

	var newsResp NewsAPIResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&newsResp)

	if resp.StatusCode != http.StatusOK {
		apiErr := ClassifyHTTPStatus(BreakerNewsAPI, resp.StatusCode)
		if decodeErr == nil && newsResp.Message != "" {
			apiErr.Message = newsResp.Message
		}
		return nil, apiErr
	}
	if decodeErr != nil {
		return nil, NewValidationError(BreakerNewsAPI, "failed to decode response: "+decodeErr.Error())
	}

	articles := make([]models.NewsArticle, 0, len(newsResp.Articles))
	for _, item := range newsResp.Articles {
		publishedAt, err := time.Parse(time.RFC3339, item.PublishedAt)
		if err != nil {
			observability.Debug("unparseable article timestamp", "published_at", item.PublishedAt, "error", err)
			publishedAt = time.Time{}
		}

		articles = append(articles, models.NewsArticle{
			Title:       item.Title,
			Description: item.Description,
			URL:         item.URL,
			Source:      item.Source.Name,
			Author:      item.Author,
			PublishedAt: publishedAt,
		})
	}

	return articles, nil
}

// Search adapts GetNews to the NewsSearcher interface. NewsAPI has no
// synthesized answer, so hits carry "title: description".
func (s *NewsAPIService) Search(ctx context.Context, query string, maxResults int) (*SearchResult, error) {
	articles, err := s.GetNews(ctx, query, maxResults)
	if err != nil {
		return nil, fmt.Errorf("newsapi search %q: %w", query, err)
	}

	result := &SearchResult{Results: make([]SearchHit, 0, len(articles))}
	for _, a := range articles {
		content := strings.TrimSpace(a.Title)
		if desc := strings.TrimSpace(a.Description); desc != "" {
			if content != "" {
				content += ": "
			}
			content += desc
		}
		result.Results = append(result.Results, SearchHit{
			Title:   a.Title,
			URL:     a.URL,
			Content: content,
		})
	}
	return result, nil
}
