package transport

import (
	"context"
	"sync"
	"sync/atomic"

	"nhooyr.io/websocket"
	"nhooyr.io/websocket/wsjson"
)

// WebSocketSink sends envelopes as JSON text frames.
type WebSocketSink struct {
	conn *websocket.Conn
	ctx  context.Context

	ready     atomic.Bool
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewWebSocketSink wraps an accepted connection. ctx bounds every write.
func NewWebSocketSink(ctx context.Context, conn *websocket.Conn) *WebSocketSink {
	s := &WebSocketSink{conn: conn, ctx: ctx}
	s.ready.Store(true)
	return s
}

// Send writes env as one text frame.
func (s *WebSocketSink) Send(env Envelope) error {
	if !s.ready.Load() {
		return ErrSinkClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return wsjson.Write(s.ctx, s.conn, env)
}

// Close sends a normal close frame. Safe to call multiple times.
func (s *WebSocketSink) Close() error {
	s.closeOnce.Do(func() {
		s.ready.Store(false)
		s.conn.Close(websocket.StatusNormalClosure, "")
	})
	return nil
}

// isNormalClose reports whether err is the peer closing the connection cleanly.
func isNormalClose(err error) bool {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return true
	}
	return false
}
