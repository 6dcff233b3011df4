package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"stock-forecaster/config"
	"stock-forecaster/internal/app"
	"stock-forecaster/models"
	"stock-forecaster/services"

	"github.com/go-chi/chi/v5"
)

// MaxLimit caps the limit query parameter
const MaxLimit = 100

// MaxRunBodyBytes caps the size of a POST /api/runs body
const MaxRunBodyBytes = 64 << 10

var tickerPattern = regexp.MustCompile(`^[A-Z0-9.^=-]+$`)

// Handler handles HTTP API requests
type Handler struct {
	app *app.App
	cfg *config.Config
}

// NewHandler creates a new Handler
func NewHandler(application *app.App, cfg *config.Config) *Handler {
	return &Handler{app: application, cfg: cfg}
}

// HandleHealth returns the health status of the application
func (h *Handler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	status := map[string]interface{}{
		"status": "ok",
		"services": map[string]string{
			"database":    "unknown",
			"market_data": "unknown",
		},
	}
	svc := status["services"].(map[string]string)

	ctx := r.Context()
	if h.app.Repo() != nil {
		if err := h.app.DatabaseHealth(ctx); err == nil {
			svc["database"] = "connected"
		} else {
			svc["database"] = "disconnected"
			status["status"] = "degraded"
		}
	} else {
		svc["database"] = "not_configured"
	}

	if health, ok := h.app.ProviderHealth(ctx); ok {
		if health.Available {
			svc["market_data"] = "available"
		} else {
			svc["market_data"] = "unavailable"
			status["status"] = "degraded"
		}
	} else {
		svc["market_data"] = "not_configured"
	}

	// Add circuit breaker status
	cbStatus := services.GetGlobalRegistry().Status()
	status["circuit_breakers"] = cbStatus

	// Check if any breakers are open (degraded state)
	for _, cb := range cbStatus {
		if cb.State == "open" {
			status["status"] = "degraded"
			break
		}
	}

	h.jsonResponse(w, status)
}

// RunRequest is the body of POST /api/runs. A missing destination uses the
// configured default; an empty one disables output.
type RunRequest struct {
	Tickers     []string `json:"tickers"`
	Destination *string  `json:"destination,omitempty"`
}

// HandleCreateRun runs the pipeline synchronously and returns the finished run
func (h *Handler) HandleCreateRun(w http.ResponseWriter, r *http.Request) {
	var req RunRequest
	r.Body = http.MaxBytesReader(w, r.Body, MaxRunBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.jsonError(w, fmt.Sprintf("Request body exceeds %d bytes", MaxRunBodyBytes), http.StatusRequestEntityTooLarge)
			return
		}
		h.jsonError(w, "Invalid JSON body", http.StatusBadRequest)
		return
	}

	tickers := models.NormalizeTickers(req.Tickers)
	if len(tickers) == 0 {
		h.jsonError(w, "At least one ticker is required", http.StatusBadRequest)
		return
	}
	for _, ticker := range tickers {
		if err := h.ValidateTicker(ticker); err != nil {
			h.jsonError(w, fmt.Sprintf("%s: %v", ticker, err), http.StatusBadRequest)
			return
		}
	}

	destination := h.app.DefaultDestination()
	if req.Destination != nil {
		destination = *req.Destination
	}

	run, err := h.app.RunPipeline(r.Context(), tickers, destination)
	if run != nil {
		w.Header().Set(RunIDHeader, run.ID.String())
		w.Header().Set(RunStatusHeader, string(run.Status))
	}
	switch {
	case err == nil:
		h.jsonResponse(w, run)
	case errors.Is(err, app.ErrNoTickers):
		h.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, app.ErrBusy):
		h.jsonError(w, err.Error(), http.StatusTooManyRequests)
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		h.jsonError(w, "pipeline run cancelled: "+err.Error(), http.StatusServiceUnavailable)
	default:
		h.jsonError(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleGetRuns returns recent pipeline runs
func (h *Handler) HandleGetRuns(w http.ResponseWriter, r *http.Request) {
	limit := h.ParseLimitParam(r, 20)

	runs, err := h.app.GetRuns(r.Context(), limit)
	if err != nil {
		h.historyError(w, err)
		return
	}
	if runs == nil {
		runs = []models.PipelineRun{}
	}

	h.jsonResponse(w, runs)
}

// HandleGetLatestRun returns the most recent pipeline run
func (h *Handler) HandleGetLatestRun(w http.ResponseWriter, r *http.Request) {
	run, err := h.app.GetLatestRun(r.Context())
	if err != nil {
		h.historyError(w, err)
		return
	}

	if run == nil {
		h.jsonResponse(w, map[string]interface{}{"run": nil})
		return
	}

	h.jsonResponse(w, run)
}

// HandleGetRun returns a specific pipeline run by ID
func (h *Handler) HandleGetRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if id == "" {
		h.jsonError(w, "Missing run ID", http.StatusBadRequest)
		return
	}
	if _, err := app.ParseUUID(id); err != nil {
		h.jsonError(w, err.Error(), http.StatusBadRequest)
		return
	}

	run, err := h.app.GetRun(r.Context(), id)
	if err != nil {
		h.historyError(w, err)
		return
	}

	if run == nil {
		h.jsonError(w, "Run not found", http.StatusNotFound)
		return
	}

	h.jsonResponse(w, run)
}

// HandleGetResults returns ranked rows stored by the postgres sink for a destination
func (h *Handler) HandleGetResults(w http.ResponseWriter, r *http.Request) {
	destination := r.URL.Query().Get("destination")
	if destination == "" {
		destination = h.app.DefaultDestination()
	}
	if destination == "" {
		h.jsonError(w, "destination is required", http.StatusBadRequest)
		return
	}

	rows, err := h.app.GetRankedRows(r.Context(), destination, h.ParseLimitParam(r, 50))
	if err != nil {
		h.historyError(w, err)
		return
	}
	if rows == nil {
		rows = []models.ForecastRecord{}
	}

	h.jsonResponse(w, rows)
}

func (h *Handler) historyError(w http.ResponseWriter, err error) {
	if errors.Is(err, app.ErrDatabaseUnavailable) {
		h.jsonError(w, err.Error(), http.StatusServiceUnavailable)
		return
	}
	h.jsonError(w, err.Error(), http.StatusInternalServerError)
}

// ValidateTicker validates a normalized ticker symbol
func (h *Handler) ValidateTicker(ticker string) error {
	if ticker == "" {
		return fmt.Errorf("ticker is required")
	}

	if len(ticker) > 12 {
		return fmt.Errorf("ticker too long (max 12 characters)")
	}

	if !tickerPattern.MatchString(ticker) {
		return fmt.Errorf("invalid ticker format (alphanumeric, dots, dashes, carets and equals only)")
	}

	return nil
}

// ParseLimitParam parses the limit query parameter
func (h *Handler) ParseLimitParam(r *http.Request, defaultLimit int) int {
	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if l, err := strconv.Atoi(limitStr); err == nil && l > 0 {
			if l > MaxLimit {
				return MaxLimit
			}
			return l
		}
	}
	return defaultLimit
}

func (h *Handler) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func (h *Handler) jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
