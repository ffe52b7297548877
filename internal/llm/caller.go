package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/time/rate"

	"github.com/Veraticus/fundwatch/internal/common"
)

// Options configures Filter and Extractor.
type Options struct {
	Logger *slog.Logger
	// Limiter spaces out provider calls. Shared between stages so the
	// combined call rate stays under the provider limit.
	Limiter *rate.Limiter
	Now     func() time.Time
	Retry   common.RetryPolicy
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.Retry.Retryable == nil {
		o.Retry.Retryable = IsRetryable
	}
	return o
}

// NewLimiter returns a token bucket allowing one call per interval.
// A zero interval disables limiting.
func NewLimiter(interval time.Duration) *rate.Limiter {
	if interval <= 0 {
		return rate.NewLimiter(rate.Inf, 1)
	}
	return rate.NewLimiter(rate.Every(interval), 1)
}

type caller struct {
	client Client
	opts   Options
}

// complete waits for the limiter and calls the provider under the retry policy.
func (c caller) complete(ctx context.Context, system, prompt string) (string, error) {
	var reply string
	err := common.WithRetry(ctx, func() error {
		if c.opts.Limiter != nil {
			if err := c.opts.Limiter.Wait(ctx); err != nil {
				return fmt.Errorf("rate limiter: %w", err)
			}
		}
		text, err := c.client.Complete(ctx, system, prompt)
		if err != nil {
			return err
		}
		reply = text
		return nil
	}, c.opts.Retry)
	return reply, err
}
