package provider

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

const (
	defaultMaxRetries   = 1
	defaultRetryInitial = 500 * time.Millisecond
)

// retryableError indicates a transient failure that can be retried.
type retryableError struct {
	statusCode int
	body       string
}

func (e *retryableError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.statusCode, e.body)
}

// retryPolicy bounds doWithRetry. maxRetries counts extra attempts.
type retryPolicy struct {
	maxRetries uint64
	initial    time.Duration
}

func newRetryPolicy(maxRetries int) retryPolicy {
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	return retryPolicy{maxRetries: uint64(maxRetries), initial: defaultRetryInitial}
}

func (p retryPolicy) backOff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.initial
	b.MaxElapsedTime = 0 // bounded by attempt count and ctx instead
	return backoff.WithContext(backoff.WithMaxRetries(b, p.maxRetries), ctx)
}

// doWithRetry executes an HTTP request with exponential backoff retry
// for transient errors (network failures, 5xx, 429). buildReq is called
// once per attempt so request bodies are fresh.
func doWithRetry(ctx context.Context, client *http.Client, policy retryPolicy, buildReq func() (*http.Request, error), logger *slog.Logger) (*http.Response, error) {
	var resp *http.Response
	attempt := 0

	op := func() error {
		attempt++
		req, err := buildReq()
		if err != nil {
			return backoff.Permanent(fmt.Errorf("build request: %w", err))
		}

		r, err := client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}

		// Retry on 5xx server errors and 429 rate-limit.
		if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
			body, _ := io.ReadAll(io.LimitReader(r.Body, 4096))
			r.Body.Close()
			return &retryableError{statusCode: r.StatusCode, body: string(body)}
		}

		resp = r
		return nil
	}

	notify := func(err error, wait time.Duration) {
		logger.Warn("request failed, will retry", "attempt", attempt+1, "backoff", wait, "error", err)
	}

	if err := backoff.RetryNotify(op, policy.backOff(ctx), notify); err != nil {
		if attempt > 1 {
			return nil, fmt.Errorf("request failed after %d attempts: %w", attempt, err)
		}
		return nil, err
	}
	return resp, nil
}
