package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"

	"github.com/devsecrin/askstream/pkg/ask"
	"github.com/devsecrin/askstream/pkg/types"
)

// maxRequestBody caps the size of a relayed request.
const maxRequestBody = 64 << 10

// HandlerConfig configures the relay endpoints.
type HandlerConfig struct {
	Client ask.Client // upstream client; replace at runtime with Handler.SetClient

	// Agent is used when a request has no agent_type (default pathfinder).
	Agent types.AgentType
	// Options set request defaults before the body is applied.
	Options []ask.RequestOption

	// OriginPatterns lists the hosts allowed to open the WebSocket from a browser.
	OriginPatterns []string

	Logger *slog.Logger
}

// decodeRequest applies a JSON request body over the configured defaults and
// validates the result.
func (c HandlerConfig) decodeRequest(data []byte) (ask.StreamRequest, error) {
	agent := c.Agent
	if agent == "" {
		agent = types.AgentPathfinder
	}
	req := ask.NewStreamRequest("", agent, c.Options...)
	if err := json.Unmarshal(data, &req); err != nil {
		return ask.StreamRequest{}, fmt.Errorf("transport: decode request: %w", err)
	}
	if err := req.Validate(); err != nil {
		return ask.StreamRequest{}, err
	}
	return req, nil
}

// Handler serves the relay endpoints:
//
//	POST /ask/stream  request body in, SSE frames out
//	GET  /ask/ws      WebSocket; first text message is the request, envelopes follow
//	GET  /agents      agent catalogue
//	GET  /healthz     liveness
type Handler struct {
	cfg HandlerConfig
	log *slog.Logger
	mux *http.ServeMux

	mu     sync.RWMutex
	client ask.Client
}

// NewHandler creates the relay handler.
func NewHandler(cfg HandlerConfig) *Handler {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	h := &Handler{
		cfg:    cfg,
		log:    cfg.Logger,
		mux:    http.NewServeMux(),
		client: cfg.Client,
	}
	h.mux.HandleFunc("POST /ask/stream", h.handleSSE)
	h.mux.HandleFunc("GET /ask/ws", h.handleWebSocket)
	h.mux.HandleFunc("GET /agents", h.handleAgents)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return h
}

// SetClient swaps the upstream client. Streams already running keep the old one.
func (h *Handler) SetClient(c ask.Client) {
	h.mu.Lock()
	h.client = c
	h.mu.Unlock()
}

func (h *Handler) currentClient() ask.Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.client
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleSSE(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	req, err := h.cfg.decodeRequest(body)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	log := h.log.With("transport", "sse", "agent", req.AgentType)

	// The request context ends when the browser disconnects, which cancels
	// the upstream stream as well.
	stream, err := h.currentClient().Stream(r.Context(), req)
	if err != nil {
		log.Warn("transport: upstream failed", "err", err)
		writeError(w, upstreamStatus(err), err)
		return
	}

	sink, err := NewSSESink(w)
	if err != nil {
		stream.Close()
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	defer sink.Close()

	if err := sink.Comment("stream opened"); err != nil {
		stream.Close()
		return
	}
	h.relay(log, stream, sink)
}

func (h *Handler) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.cfg.OriginPatterns})
	if err != nil {
		h.log.Debug("transport: websocket accept failed", "err", err)
		return
	}
	defer conn.Close(websocket.StatusInternalError, "")

	ctx := r.Context()
	log := h.log.With("transport", "websocket")

	var raw json.RawMessage
	if err := wsjson.Read(ctx, conn, &raw); err != nil {
		if !isNormalClose(err) {
			log.Debug("transport: websocket read failed", "err", err)
		}
		return
	}

	sink := NewWebSocketSink(ctx, conn)
	defer sink.Close()

	req, err := h.cfg.decodeRequest(raw)
	if err != nil {
		sink.Send(Envelope{Type: EnvError, Error: err.Error()})
		return
	}

	// CloseRead keeps reading control frames; its context ends when the
	// client goes away, which cancels the upstream stream.
	streamCtx := conn.CloseRead(ctx)

	stream, err := h.currentClient().Stream(streamCtx, req)
	if err != nil {
		log.Warn("transport: upstream failed", "err", err)
		sink.Send(Envelope{Type: EnvError, Error: err.Error()})
		return
	}

	h.relay(log.With("agent", req.AgentType), stream, sink)
}

func (h *Handler) handleAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, types.Agents)
}

// relay pumps stream into sink and logs how it ended.
func (h *Handler) relay(log *slog.Logger, stream *ask.Stream, sink Sink) {
	err := Pump(stream, sink)
	switch {
	case err == nil:
		log.Debug("transport: relay finished", "termination", stream.Termination())
	case isStreamFailure(err):
		log.Warn("transport: stream failed", "termination", stream.Termination(), "err", err)
	default:
		log.Debug("transport: consumer went away", "err", err)
	}
}

// upstreamStatus picks the status to answer with when the upstream request
// could not be opened. Client errors from the backend pass through; anything
// else is a bad gateway.
func upstreamStatus(err error) int {
	var terr *ask.TransportError
	if errors.As(err, &terr) && terr.Kind == ask.TransportStatus && terr.StatusCode >= 400 && terr.StatusCode < 500 {
		return terr.StatusCode
	}
	if errors.Is(err, context.Canceled) {
		return http.StatusRequestTimeout
	}
	return http.StatusBadGateway
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
