package ask

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxErrorBody caps how much of a failed response body is kept on a TransportError.
const maxErrorBody = 4 << 10

var (
	// ErrEmptyQuestion is returned before any network I/O when a request has no question.
	ErrEmptyQuestion = errors.New("ask: question is empty")

	// ErrMalformedFrame marks a data frame whose payload is not valid JSON.
	// Streams recover from it silently.
	ErrMalformedFrame = errors.New("ask: malformed frame")

	// ErrUnrecognizedShape marks a JSON frame carrying none of the known keys.
	// Streams recover from it silently.
	ErrUnrecognizedShape = errors.New("ask: unrecognized frame shape")

	// ErrInvalidAnswer is returned by Ask when the response has no answer.
	ErrInvalidAnswer = errors.New("ask: invalid response format from server")
)

// TransportErrorKind identifies which stage of the HTTP exchange failed.
type TransportErrorKind int

const (
	TransportConnect TransportErrorKind = iota + 1 // request could not be sent
	TransportStatus                                // non-2xx response
	TransportNoBody                                // 2xx response without a readable body
	TransportRead                                  // body read failed mid-stream
)

func (k TransportErrorKind) String() string {
	switch k {
	case TransportConnect:
		return "connect"
	case TransportStatus:
		return "status"
	case TransportNoBody:
		return "no_body"
	case TransportRead:
		return "read"
	default:
		return "unknown"
	}
}

// TransportError is fatal for the current stream attempt. The core never
// retries it on its own unless ClientConfig.Retry asks for it.
type TransportError struct {
	Kind       TransportErrorKind
	StatusCode int           // HTTP status when Kind is TransportStatus or TransportNoBody
	Class      string        // status classification, e.g. "rate_limit"
	Message    string        // human-readable message extracted from the body
	Body       string        // raw body snippet, at most maxErrorBody bytes
	Retryable  bool          // whether re-invoking the pipeline may succeed
	RetryAfter time.Duration // from Retry-After, if present
	Err        error         // underlying cause for connect and read failures
}

func (e *TransportError) Error() string {
	switch e.Kind {
	case TransportStatus:
		return fmt.Sprintf("ask: %s (HTTP %d): %s", e.Class, e.StatusCode, e.Message)
	case TransportNoBody:
		return fmt.Sprintf("ask: response has no body (HTTP %d)", e.StatusCode)
	case TransportRead:
		return fmt.Sprintf("ask: read stream: %v", e.Err)
	default:
		return fmt.Sprintf("ask: connect: %v", e.Err)
	}
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError is raised when the backend reports an error frame. Iteration
// stops at the frame that carried it.
type ServerError struct {
	Message string
}

func (e *ServerError) Error() string {
	return "ask: server error: " + e.Message
}

// classifyError maps a non-2xx response to a TransportError.
func classifyError(resp *http.Response) *TransportError {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	body := string(raw)

	class, retryable := classifyStatus(resp.StatusCode)
	return &TransportError{
		Kind:       TransportStatus,
		StatusCode: resp.StatusCode,
		Class:      class,
		Message:    errorMessage(body, resp.StatusCode),
		Body:       body,
		Retryable:  retryable,
		RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
	}
}

// classifyStatus maps an HTTP status to an error class and retryability.
func classifyStatus(statusCode int) (class string, retryable bool) {
	switch statusCode {
	case 400, 422:
		return "invalid_request", false
	case 401:
		return "authentication_failed", false
	case 403:
		return "forbidden", false
	case 404:
		return "not_found", false
	case 408:
		return "timeout", true
	case 429:
		return "rate_limit", true
	case 500, 502, 503, 504:
		return "server_error", true
	default:
		return "unknown", false
	}
}

// errorMessage pulls the message out of a JSON error body ({"message": ...}
// or FastAPI's {"detail": ...}), falling back to the trimmed text.
func errorMessage(body string, statusCode int) string {
	var parsed struct {
		Message string          `json:"message"`
		Detail  json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal([]byte(body), &parsed); err == nil {
		if parsed.Message != "" {
			return parsed.Message
		}
		if len(parsed.Detail) > 0 {
			return textValue(parsed.Detail)
		}
	}
	if msg := strings.TrimSpace(body); msg != "" {
		return msg
	}
	return http.StatusText(statusCode)
}

// isRetryable checks if a status code should be retried.
func isRetryable(statusCode int, retryableStatuses []int) bool {
	for _, s := range retryableStatuses {
		if statusCode == s {
			return true
		}
	}
	return false
}

// parseRetryAfter parses the Retry-After header value.
// Supports both seconds (integer) and HTTP-date formats.
func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(value, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(value); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
