package llm

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Options are the provider-independent client settings.
type Options struct {
	Temperature float64
	MaxTokens   int
	Timeout     time.Duration
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int
	RetryDelay time.Duration
}

func (o Options) withDefaults(maxTokens int) Options {
	if o.MaxTokens <= 0 {
		o.MaxTokens = maxTokens
	}
	if o.Timeout <= 0 {
		o.Timeout = 120 * time.Second
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = defaultRetryDelay
	}
	return o
}

func newHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        10,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// withRetry calls fn until it succeeds, fails permanently, or maxRetries
// retries are spent. The wait grows linearly with the attempt number.
func withRetry(ctx context.Context, provider string, maxRetries int, delay time.Duration, fn func() (*ChatResponse, error)) (*ChatResponse, error) {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%s: context cancelled during retry wait: %w", provider, ctx.Err())
			case <-time.After(delay * time.Duration(attempt)):
			}
		}

		resp, err := fn()
		if err == nil {
			return resp, nil
		}
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%s: %w", provider, ctx.Err())
		}
		if !isTransientError(err) {
			return nil, err
		}
		lastErr = err
	}

	return nil, fmt.Errorf("%s: exhausted %d retries: %w", provider, maxRetries, lastErr)
}
