// Package ask is the streaming client for the DevSecrin /ask endpoint. It
// opens the Server-Sent-Events response, decodes data frames across
// arbitrary chunk boundaries, classifies the JSON payloads and hands them
// out as a pull-based, cancellable sequence of Events.
package ask

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// Client talks to the ask endpoint. All methods are safe for concurrent use;
// every call gets its own transport, decoder and classifier state.
type Client interface {
	// Stream opens a streaming answer for req.
	Stream(ctx context.Context, req StreamRequest) (*Stream, error)

	// Ask requests the whole answer in a single response.
	Ask(ctx context.Context, req StreamRequest) (*Answer, error)
}

// httpClient implements the Client interface.
type httpClient struct {
	config     ClientConfig
	httpClient *http.Client
	endpoint   string
	log        *slog.Logger
}

// NewClient creates a new ask client with the given configuration.
func NewClient(cfg ClientConfig) Client {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if cfg.Path == "" {
		cfg.Path = DefaultPath
	}
	if cfg.ReadBufferSize <= 0 {
		cfg.ReadBufferSize = defaultReadBufferSize
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &httpClient{
		config:     cfg,
		httpClient: cfg.HTTPClient,
		endpoint:   strings.TrimRight(cfg.BaseURL, "/") + "/" + strings.TrimLeft(cfg.Path, "/"),
		log:        cfg.Logger,
	}
}

// Stream opens the response stream. The returned Stream must be drained or
// closed; cancelling ctx has the same effect as Stream.Close.
func (c *httpClient) Stream(ctx context.Context, req StreamRequest) (*Stream, error) {
	req.Stream = true

	streamCtx, cancel := context.WithCancel(ctx)
	resp, err := c.open(streamCtx, req, "text/event-stream")
	if err != nil {
		cancel()
		return nil, err
	}

	return newStream(streamCtx, resp.Body, cancel, c.config.ReadBufferSize, c.log), nil
}

// open issues the POST that starts an exchange and returns the response
// positioned at the start of its body. It performs one connection attempt
// unless retries are configured.
func (c *httpClient) open(ctx context.Context, req StreamRequest, accept string) (*http.Response, error) {
	if strings.TrimSpace(req.Question) == "" {
		return nil, ErrEmptyQuestion
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ask: marshal request: %w", err)
	}

	requestID := uuid.NewString()
	log := c.log.With("request_id", requestID, "agent", req.AgentType, "stream", req.Stream)

	resp, err := doWithRetry(ctx, c.config.Retry, func(ctx context.Context) (*http.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}

		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Accept", accept)
		httpReq.Header.Set("X-Request-ID", requestID)

		for k, v := range c.config.Headers {
			httpReq.Header.Set(k, v)
		}

		return c.httpClient.Do(httpReq)
	})
	if err != nil {
		log.Debug("ask: connect failed", "err", err)
		return nil, &TransportError{Kind: TransportConnect, Err: err}
	}

	if resp.StatusCode/100 != 2 {
		terr := classifyError(resp)
		resp.Body.Close()
		log.Debug("ask: request rejected", "status", resp.StatusCode, "class", terr.Class)
		return nil, terr
	}

	if resp.Body == nil || resp.Body == http.NoBody {
		if resp.Body != nil {
			resp.Body.Close()
		}
		return nil, &TransportError{Kind: TransportNoBody, StatusCode: resp.StatusCode}
	}

	log.Debug("ask: response opened", "status", resp.StatusCode, "content_type", resp.Header.Get("Content-Type"))
	return resp, nil
}
