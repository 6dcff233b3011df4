// Package mocks provides HTTP mock servers for external APIs used in E2E tests.
package mocks

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"sync"
	"time"
)

// DefaultSessions is the number of daily sessions served per chart
const DefaultSessions = 45

var promptTicker = regexp.MustCompile(`Ticker: ([A-Z0-9.^=-]+)`)

// MockServer serves Yahoo chart, Tavily search, OpenAI chat completions and
// Google Sheets values endpoints from a single httptest server.
type MockServer struct {
	mu     sync.RWMutex
	server *httptest.Server

	// Response configurations
	sessions      int
	forecasts     map[string]string // raw LLM reply content per ticker
	defaultReply  string
	searchAnswer  string
	searchResults []SearchHit
	sheets        map[string]*SheetState

	// Error injection
	missingTickers map[string]bool
	llmFailures    map[string]bool
	tavilyError    error
	sheetsError    error

	// Request tracking for assertions
	requestLog []RequestLog
}

// RequestLog records incoming requests for test assertions.
type RequestLog struct {
	Method string
	Path   string
	Body   string
}

// NewMockServer creates a new mock server with default responses.
func NewMockServer() *MockServer {
	m := &MockServer{
		forecasts:      make(map[string]string),
		sheets:         make(map[string]*SheetState),
		missingTickers: make(map[string]bool),
		llmFailures:    make(map[string]bool),
		requestLog:     make([]RequestLog, 0),
	}
	m.setDefaults()
	m.server = httptest.NewServer(m)
	return m
}

// URL returns the mock server's base URL.
func (m *MockServer) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockServer) Close() {
	m.server.Close()
}

// ServeHTTP implements http.Handler to route requests to appropriate mock handlers.
func (m *MockServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body []byte
	if r.Body != nil {
		body, _ = io.ReadAll(r.Body)
		r.Body = io.NopCloser(bytes.NewReader(body))
	}

	m.mu.Lock()
	m.requestLog = append(m.requestLog, RequestLog{
		Method: r.Method,
		Path:   r.URL.Path,
		Body:   string(body),
	})
	m.mu.Unlock()

	path := r.URL.Path

	switch {
	case strings.HasPrefix(path, "/v8/finance/chart/"):
		m.handleChart(w, strings.TrimPrefix(path, "/v8/finance/chart/"))
	case r.Method == http.MethodPost && path == "/search":
		m.handleTavily(w)
	case r.Method == http.MethodPost && strings.HasSuffix(path, "/chat/completions"):
		m.handleChat(w, body)
	case strings.HasPrefix(path, "/v4/spreadsheets/"):
		m.handleSheets(w, r, body)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

// GetRequestLog returns all logged requests for assertions.
func (m *MockServer) GetRequestLog() []RequestLog {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]RequestLog{}, m.requestLog...)
}

// ClearRequestLog clears the request log.
func (m *MockServer) ClearRequestLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requestLog = make([]RequestLog, 0)
}

// CountRequests returns how many logged requests have a path starting with prefix.
func (m *MockServer) CountRequests(prefix string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, req := range m.requestLog {
		if strings.HasPrefix(req.Path, prefix) {
			n++
		}
	}
	return n
}

// SetForecast configures the LLM reply for a ticker.
func (m *MockServer) SetForecast(ticker string, pct float64, reason string) {
	reply, _ := json.Marshal(Forecast{PredictedChangePct: pct, Reason: reason})
	m.SetRawReply(ticker, string(reply))
}

// SetRawReply configures the exact LLM reply content for a ticker.
func (m *MockServer) SetRawReply(ticker, content string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.forecasts[ticker] = content
}

// SetLLMFailure makes chat completions for a ticker return a server error.
func (m *MockServer) SetLLMFailure(ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.llmFailures[ticker] = true
}

// SetMissingTicker makes the chart endpoint report the ticker as not found.
func (m *MockServer) SetMissingTicker(ticker string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.missingTickers[ticker] = true
}

// SetSessions configures how many daily sessions each chart returns.
func (m *MockServer) SetSessions(n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions = n
}

// SetSearchResults configures the Tavily answer and hits.
func (m *MockServer) SetSearchResults(answer string, hits []SearchHit) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searchAnswer = answer
	m.searchResults = hits
}

// SetTavilyError configures Tavily to return an error.
func (m *MockServer) SetTavilyError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tavilyError = err
}

// SetSheetsError configures the Sheets API to reject every call.
func (m *MockServer) SetSheetsError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sheetsError = err
}

// Sheet returns a copy of what has been written to a spreadsheet.
func (m *MockServer) Sheet(id string) SheetState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sheets[id]
	if !ok {
		return SheetState{}
	}
	return SheetState{
		Header: append([]string(nil), s.Header...),
		Rows:   append([][]string(nil), s.Rows...),
		Added:  append([]string(nil), s.Added...),
	}
}

func (m *MockServer) setDefaults() {
	m.sessions = DefaultSessions
	m.defaultReply = `{"predicted_change_pct": 0.5, "reason": "No strong signal."}`
	m.searchAnswer = "Markets steady ahead of the Fed meeting."
	m.searchResults = []SearchHit{
		{Title: "Earnings preview", URL: "https://example.com/earnings", Content: "Analysts expect revenue growth.", Score: 0.9},
		{Title: "Rates outlook", URL: "https://example.com/rates", Content: "Treasury yields eased this week.", Score: 0.8},
	}
}

func (m *MockServer) handleChart(w http.ResponseWriter, symbol string) {
	m.mu.RLock()
	missing := m.missingTickers[symbol]
	sessions := m.sessions
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if missing {
		var resp chartResponse
		resp.Chart.Error = &chartError{Code: "Not Found", Description: "No data found, symbol may be delisted"}
		w.WriteHeader(http.StatusNotFound)
		json.NewEncoder(w).Encode(resp)
		return
	}

	json.NewEncoder(w).Encode(generateChart(symbol, sessions, time.Now().UTC()))
}

func (m *MockServer) handleTavily(w http.ResponseWriter) {
	m.mu.RLock()
	err := m.tavilyError
	answer := m.searchAnswer
	hits := m.searchResults
	m.mu.RUnlock()

	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"answer":  answer,
		"results": hits,
	})
}

func (m *MockServer) handleChat(w http.ResponseWriter, body []byte) {
	ticker := ""
	if match := promptTicker.FindSubmatch(body); match != nil {
		ticker = string(match[1])
	}

	m.mu.RLock()
	failing := m.llmFailures[ticker]
	content, ok := m.forecasts[ticker]
	if !ok {
		content = m.defaultReply
	}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	if failing {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"error": {"message": "model rejected the request", "type": "invalid_request_error"}}`))
		return
	}

	resp := chatCompletion{
		ID:      "chatcmpl-" + ticker,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   "test-model",
	}
	choice := chatChoice{FinishReason: "stop"}
	choice.Message.Role = "assistant"
	choice.Message.Content = content
	resp.Choices = []chatChoice{choice}
	resp.Usage.PromptTokens = len(body) / 4
	resp.Usage.CompletionTokens = len(content) / 4
	resp.Usage.TotalTokens = resp.Usage.PromptTokens + resp.Usage.CompletionTokens
	json.NewEncoder(w).Encode(resp)
}

func (m *MockServer) handleSheets(w http.ResponseWriter, r *http.Request, body []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w.Header().Set("Content-Type", "application/json")

	if m.sheetsError != nil {
		w.WriteHeader(http.StatusForbidden)
		fmt.Fprintf(w, `{"error": {"code": 403, "message": %q}}`, m.sheetsError.Error())
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v4/spreadsheets/")
	id := rest
	if i := strings.IndexAny(rest, "/:"); i >= 0 {
		id = rest[:i]
	}
	sheet, ok := m.sheets[id]
	if !ok {
		sheet = &SheetState{}
		m.sheets[id] = sheet
	}

	var values struct {
		Values [][]interface{} `json:"values"`
	}

	switch {
	case r.Method == http.MethodPost && strings.HasSuffix(rest, ":batchUpdate"):
		var req struct {
			Requests []struct {
				AddSheet struct {
					Properties struct {
						Title string `json:"title"`
					} `json:"properties"`
				} `json:"addSheet"`
			} `json:"requests"`
		}
		json.Unmarshal(body, &req)
		for _, rq := range req.Requests {
			sheet.Added = append(sheet.Added, rq.AddSheet.Properties.Title)
		}
		w.Write([]byte(`{}`))
	case r.Method == http.MethodPost && strings.HasSuffix(rest, ":append"):
		json.Unmarshal(body, &values)
		sheet.Rows = append(sheet.Rows, toStrings(values.Values)...)
		fmt.Fprintf(w, `{"updates": {"updatedRows": %d}}`, len(values.Values))
	case r.Method == http.MethodPut && strings.Contains(rest, "/values/"):
		json.Unmarshal(body, &values)
		rng := rest[strings.Index(rest, "/values/")+len("/values/"):]
		if rng == "A1:D1" && len(values.Values) > 0 {
			sheet.Header = toStrings(values.Values)[0]
		}
		w.Write([]byte(`{}`))
	case r.Method == http.MethodGet && strings.Contains(rest, "/values/"):
		resp := map[string]interface{}{"range": "Sheet1!A1:D1"}
		if sheet.Header != nil {
			resp["values"] = [][]string{sheet.Header}
		}
		json.NewEncoder(w).Encode(resp)
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": {"code": 404, "message": "unknown sheets call"}}`))
	}
}

func toStrings(values [][]interface{}) [][]string {
	rows := make([][]string, 0, len(values))
	for _, v := range values {
		row := make([]string, len(v))
		for i, cell := range v {
			row[i] = fmt.Sprint(cell)
		}
		rows = append(rows, row)
	}
	return rows
}
