// Package feeds pulls candidate articles from RSS/Atom feeds and news search.
//
// Fetchers never return errors for upstream failures. Each request yields an
// Outcome that the health tracker consumes.
package feeds

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/Veraticus/fundwatch/internal/common"
)

// UserAgent is sent on every request; several trade publications reject
// non-browser agents.
const UserAgent = "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/126.0.0.0 Safari/537.36"

const (
	defaultTimeout    = 20 * time.Second
	defaultMaxSnippet = 1000
	maxBodyBytes      = 10 << 20
)

// Source is one feed to fetch.
type Source struct {
	Name    string
	URL     string
	Enabled bool
}

// Outcome reports how a single fetch went.
type Outcome struct {
	Err          error
	Source       Source
	ArticleCount int
	Success      bool
}

// Options configures the HTTP side of the fetchers.
type Options struct {
	Client     *http.Client
	Logger     *slog.Logger
	Retry      common.RetryPolicy
	Timeout    time.Duration
	Delay      time.Duration
	MaxAge     time.Duration
	MaxSnippet int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.Client == nil {
		o.Client = &http.Client{Timeout: o.Timeout}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.MaxSnippet <= 0 {
		o.MaxSnippet = defaultMaxSnippet
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = common.DefaultRetryPolicy()
	}
	return o
}

// StatusError is a non-2xx upstream response.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

// get fetches link with retries and returns the body, capped at maxBodyBytes.
func get(ctx context.Context, opts Options, link string) ([]byte, error) {
	var body []byte
	err := common.WithRetry(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: false}
		}
		req.Header.Set("User-Agent", UserAgent)
		req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml, text/html;q=0.9, */*;q=0.8")

		resp, err := opts.Client.Do(req)
		if err != nil {
			return &common.RetryableError{Err: err, Retryable: ctx.Err() == nil}
		}
		defer func() {
			if closeErr := resp.Body.Close(); closeErr != nil {
				opts.Logger.Debug("Failed to close response body", "error", closeErr)
			}
		}()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			statusErr := &StatusError{URL: link, StatusCode: resp.StatusCode}
			retryable := resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500
			return &common.RetryableError{Err: statusErr, Retryable: retryable}
		}

		body, err = io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return &common.RetryableError{Err: fmt.Errorf("failed to read body: %w", err), Retryable: true}
		}
		return nil
	}, opts.Retry)
	return body, err
}

// Wait blocks for d or until ctx is done.
func Wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// HTMLToText strips markup and collapses whitespace.
func HTMLToText(html string) string {
	if !strings.ContainsAny(html, "<&") {
		return collapse(html)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return collapse(html)
	}
	doc.Find("script, style, noscript").Remove()
	return collapse(doc.Text())
}

// Truncate shortens s to at most n runes, cutting at a word boundary when possible.
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)[:n]
	cut := string(runes)
	if idx := strings.LastIndexByte(cut, ' '); idx > len(cut)/2 {
		cut = cut[:idx]
	}
	return strings.TrimSpace(cut) + "…"
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
