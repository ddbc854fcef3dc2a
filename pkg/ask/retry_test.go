package ask

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func fastRetry(statuses ...int) RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    5 * time.Millisecond,
		MaxBackoff:        50 * time.Millisecond,
		BackoffFactor:     2.0,
		JitterFraction:    0.0,
		RetryableStatuses: statuses,
	}
}

func TestRetry(t *testing.T) {
	t.Run("zero config makes a single attempt", func(t *testing.T) {
		var attempt atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempt.Add(1)
			w.WriteHeader(503)
		}))
		defer srv.Close()

		resp, err := doWithRetry(context.Background(), RetryConfig{}, func(ctx context.Context) (*http.Response, error) {
			return http.Get(srv.URL)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 503 {
			t.Errorf("StatusCode = %d, want 503", resp.StatusCode)
		}
		if attempt.Load() != 1 {
			t.Errorf("attempts = %d, want 1", attempt.Load())
		}
	})

	t.Run("retryable codes retried then succeed", func(t *testing.T) {
		var attempt atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if attempt.Add(1) <= 2 {
				w.WriteHeader(429)
				fmt.Fprint(w, "rate limited")
				return
			}
			fmt.Fprint(w, "ok")
		}))
		defer srv.Close()

		resp, err := doWithRetry(context.Background(), fastRetry(429, 503), func(ctx context.Context) (*http.Response, error) {
			return http.Get(srv.URL)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 200 {
			t.Errorf("StatusCode = %d, want 200", resp.StatusCode)
		}
		if attempt.Load() != 3 {
			t.Errorf("attempts = %d, want 3", attempt.Load())
		}
	})

	t.Run("non-retryable code returned immediately", func(t *testing.T) {
		var attempt atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempt.Add(1)
			w.WriteHeader(401)
		}))
		defer srv.Close()

		resp, err := doWithRetry(context.Background(), fastRetry(429, 500), func(ctx context.Context) (*http.Response, error) {
			return http.Get(srv.URL)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 401 {
			t.Errorf("StatusCode = %d, want 401", resp.StatusCode)
		}
		if attempt.Load() != 1 {
			t.Errorf("attempts = %d, want 1 (should not retry)", attempt.Load())
		}
	})

	t.Run("exhausted retries return the last response", func(t *testing.T) {
		var attempt atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			attempt.Add(1)
			w.WriteHeader(500)
		}))
		defer srv.Close()

		config := fastRetry(500)
		config.MaxRetries = 2
		resp, err := doWithRetry(context.Background(), config, func(ctx context.Context) (*http.Response, error) {
			return http.Get(srv.URL)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != 500 {
			t.Errorf("StatusCode = %d, want 500", resp.StatusCode)
		}
		if attempt.Load() != 3 {
			t.Errorf("attempts = %d, want 3", attempt.Load())
		}
	})

	t.Run("network errors retried", func(t *testing.T) {
		var attempt atomic.Int32
		cause := errors.New("connection refused")
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		defer srv.Close()

		resp, err := doWithRetry(context.Background(), fastRetry(), func(ctx context.Context) (*http.Response, error) {
			if attempt.Add(1) < 3 {
				return nil, cause
			}
			return http.Get(srv.URL)
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		resp.Body.Close()
		if attempt.Load() != 3 {
			t.Errorf("attempts = %d, want 3", attempt.Load())
		}
	})

	t.Run("persistent network error returned", func(t *testing.T) {
		cause := errors.New("connection refused")
		_, err := doWithRetry(context.Background(), fastRetry(), func(ctx context.Context) (*http.Response, error) {
			return nil, cause
		})
		if !errors.Is(err, cause) {
			t.Errorf("err = %v, want %v", err, cause)
		}
	})

	t.Run("context cancellation during backoff", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(500)
		}))
		defer srv.Close()

		config := fastRetry(500)
		config.MaxRetries = 10
		config.InitialBackoff = 10 * time.Second
		config.MaxBackoff = 30 * time.Second

		ctx, cancel := context.WithCancel(context.Background())
		go func() {
			time.Sleep(100 * time.Millisecond)
			cancel()
		}()

		start := time.Now()
		_, err := doWithRetry(ctx, config, func(ctx context.Context) (*http.Response, error) {
			return http.Get(srv.URL)
		})
		elapsed := time.Since(start)

		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
		if elapsed > time.Second {
			t.Errorf("elapsed = %v, expected < 1s", elapsed)
		}
	})
}

func TestBackoff(t *testing.T) {
	c := RetryConfig{InitialBackoff: 100 * time.Millisecond, MaxBackoff: time.Second, BackoffFactor: 2}
	want := []time.Duration{100 * time.Millisecond, 200 * time.Millisecond, 400 * time.Millisecond, 800 * time.Millisecond, time.Second, time.Second}
	for i, w := range want {
		if got := c.backoff(i + 1); got != w {
			t.Errorf("backoff(%d) = %v, want %v", i+1, got, w)
		}
	}
}
