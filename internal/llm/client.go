package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/Veraticus/fundwatch/internal/common"
)

// Client defines the interface for LLM providers.
type Client interface {
	// Complete sends one system instruction and one user message and returns
	// the raw reply text.
	Complete(ctx context.Context, system, prompt string) (string, error)
}

// Config holds provider settings.
type Config struct {
	Provider    string
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
}

// APIError is a non-2xx reply from a provider.
type APIError struct {
	Provider   string
	Body       string
	StatusCode int
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.StatusCode, e.Body)
}

// Unwrap exposes rate limiting so retries wait out the longest interval.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusTooManyRequests {
		return common.ErrRateLimit
	}
	return nil
}

// Temporary reports whether the request may succeed if repeated.
func (e *APIError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= http.StatusInternalServerError
}

// IsRetryable extends common.IsRetryable with provider status codes.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return common.IsRetryable(err)
}

func newHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}
