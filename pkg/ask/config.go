package ask

import (
	"log/slog"
	"net/http"
	"time"
)

const (
	// DefaultPath is the backend's question-answering endpoint.
	DefaultPath = "/ask"

	defaultReadBufferSize = 4 << 10
)

// ClientConfig holds streaming client configuration.
type ClientConfig struct {
	BaseURL        string            // backend API root, e.g. "http://localhost:8000/api/v1"
	Path           string            // endpoint path (default "/ask")
	Headers        map[string]string // additional HTTP headers
	HTTPClient     *http.Client      // custom HTTP client (timeouts, TLS, proxies)
	Retry          RetryConfig       // zero value: a single attempt
	ReadBufferSize int               // bytes requested per body read (default 4 KiB)
	Logger         *slog.Logger      // nil uses slog.Default()
}

// RetryConfig controls retries of connection establishment. Once a stream
// has started nothing is retried.
type RetryConfig struct {
	MaxRetries        int           // extra attempts after the first (0 disables retries)
	InitialBackoff    time.Duration // first backoff
	MaxBackoff        time.Duration // backoff cap
	BackoffFactor     float64       // multiplier per retry
	JitterFraction    float64       // random jitter as fraction of backoff
	RetryableStatuses []int         // HTTP codes to retry
}

// DefaultRetryConfig returns the retry policy callers can opt into.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:        3,
		InitialBackoff:    500 * time.Millisecond,
		MaxBackoff:        10 * time.Second,
		BackoffFactor:     2.0,
		JitterFraction:    0.1,
		RetryableStatuses: []int{408, 429, 500, 502, 503, 504},
	}
}
