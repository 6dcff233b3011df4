package services

import (
	"time"

	"resty.dev/v3"

	"stock-forecaster/observability"
)

const (
	defaultRetryCount       = 3
	defaultRetryWaitTime    = 1 * time.Second
	defaultRetryMaxWaitTime = 10 * time.Second
	defaultRequestTimeout   = 30 * time.Second
)

// newHTTPClient creates a JSON client with retry and exponential backoff
func newHTTPClient(baseURL string) *resty.Client {
	return resty.New().
		SetBaseURL(baseURL).
		SetTimeout(defaultRequestTimeout).
		SetHeader("Accept", "application/json").
		SetRetryCount(defaultRetryCount).
		SetRetryWaitTime(defaultRetryWaitTime).
		SetRetryMaxWaitTime(defaultRetryMaxWaitTime).
		AddRetryConditions(retryCondition).
		AddRetryHooks(retryHook)
}

// retryCondition retries network errors, 5xx, 429 and 408
func retryCondition(r *resty.Response, err error) bool {
	if err != nil {
		return true
	}

	code := r.StatusCode()
	switch {
	case code >= 500:
		return true
	case code == 429, code == 408:
		return true
	default:
		return false
	}
}

func retryHook(r *resty.Response, err error) {
	if err != nil {
		observability.Debug("retrying request due to error",
			"url", r.Request.URL,
			"attempt", r.Request.Attempt,
			"error", err.Error())
		return
	}

	observability.Debug("retrying request due to status code",
		"url", r.Request.URL,
		"attempt", r.Request.Attempt,
		"status_code", r.StatusCode())
}
