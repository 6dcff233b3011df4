package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"stock-forecaster/observability"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Headers set on POST /api/runs responses that produced a run
const (
	RunIDHeader     = "X-Run-ID"
	RunStatusHeader = "X-Run-Status"
)

// statusRecorder captures the status code and body size of a response
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (rec *statusRecorder) WriteHeader(code int) {
	rec.status = code
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *statusRecorder) Write(b []byte) (int, error) {
	n, err := rec.ResponseWriter.Write(b)
	rec.bytes += n
	return n, err
}

// routePattern returns the matched chi pattern, or the raw path outside a router
func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}

func isRunRequest(r *http.Request, pattern string) bool {
	return r.Method == http.MethodPost && strings.TrimSuffix(pattern, "/") == "/api/runs"
}

// runOutcome labels a run request by the status of the run it produced, or
// by the response code when it was rejected before running
func runOutcome(rec *statusRecorder) string {
	if status := rec.Header().Get(RunStatusHeader); status != "" {
		return status
	}
	switch rec.status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return "invalid"
	case http.StatusTooManyRequests:
		return "busy"
	case http.StatusServiceUnavailable:
		return "cancelled"
	default:
		return "error"
	}
}

// MetricsMiddleware records HTTP metrics for each request. Pipeline run
// requests are also counted and logged by outcome.
func MetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := newStatusRecorder(w)

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		pattern := routePattern(r)
		metrics := observability.GetMetrics()
		metrics.RecordHTTPRequest(r.Method, pattern, strconv.Itoa(rec.status), duration, rec.bytes)

		if !isRunRequest(r, pattern) {
			return
		}
		outcome := runOutcome(rec)
		metrics.RecordRunRequest(outcome)
		observability.Info("run request finished",
			"request_id", middleware.GetReqID(r.Context()),
			"run_id", rec.Header().Get(RunIDHeader),
			"outcome", outcome,
			"status_code", rec.status,
			"duration_ms", duration.Milliseconds())
	})
}
