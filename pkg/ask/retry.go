package ask

import (
	"context"
	"io"
	"math"
	"math/rand"
	"net/http"
	"time"
)

// doWithRetry executes makeRequest, retrying network errors and retryable
// statuses as configured. The last response is returned unclassified so the
// caller can turn a non-2xx status into a TransportError.
func doWithRetry(ctx context.Context, config RetryConfig, makeRequest func(ctx context.Context) (*http.Response, error)) (*http.Response, error) {
	var (
		resp *http.Response
		err  error
	)

	for attempt := 0; attempt <= config.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := config.backoff(attempt)
			if resp != nil {
				if retryAfter := parseRetryAfter(resp.Header.Get("Retry-After")); retryAfter > 0 {
					wait = retryAfter
				}
				io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBody))
				resp.Body.Close()
				resp = nil
			}

			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}

		resp, err = makeRequest(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}

		if resp.StatusCode/100 == 2 || !isRetryable(resp.StatusCode, config.RetryableStatuses) {
			return resp, nil
		}
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// backoff returns the delay before the given retry attempt (1-based).
func (c RetryConfig) backoff(attempt int) time.Duration {
	backoff := float64(c.InitialBackoff) * math.Pow(c.BackoffFactor, float64(attempt-1))
	if c.MaxBackoff > 0 && backoff > float64(c.MaxBackoff) {
		backoff = float64(c.MaxBackoff)
	}
	jitter := backoff * c.JitterFraction * rand.Float64()
	return time.Duration(backoff + jitter)
}
