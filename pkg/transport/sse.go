package transport

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/devsecrin/askstream/pkg/types"
)

// SSESink writes envelopes as Server-Sent Events in the backend's own frame
// format, so anything that reads the /ask stream can read the relay too:
//
//	data: {"context": [...], "model": ...}
//	data: {"chunk": "..."}
//	data: {"error": "..."}
//	data: [DONE]
type SSESink struct {
	writer  http.ResponseWriter
	flusher http.Flusher

	ready     atomic.Bool
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewSSESink prepares w for streaming and sets the SSE headers. It fails if w
// cannot flush.
func NewSSESink(w http.ResponseWriter) (*SSESink, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, fmt.Errorf("transport: ResponseWriter does not implement http.Flusher")
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	s := &SSESink{writer: w, flusher: flusher}
	s.ready.Store(true)
	return s, nil
}

// sseFrame is the backend's data frame layout.
type sseFrame struct {
	Context   *[]types.ContextItem `json:"context,omitempty"`
	Chunk     string               `json:"chunk,omitempty"`
	Error     string               `json:"error,omitempty"`
	Model     string               `json:"model,omitempty"`
	Provider  string               `json:"provider,omitempty"`
	NodeTypes []string             `json:"node_types,omitempty"`
}

func encodeFrame(env Envelope) ([]byte, error) {
	var f sseFrame
	switch env.Type {
	case EnvDone:
		return []byte("[DONE]"), nil
	case EnvContext:
		items := env.Context
		if items == nil {
			items = []types.ContextItem{}
		}
		f.Context = &items
		if env.Metadata != nil {
			f.Model = env.Metadata.Model
			f.Provider = env.Metadata.Provider
			f.NodeTypes = env.Metadata.NodeTypes
		}
	case EnvAnswerChunk:
		f.Chunk = env.Content
	case EnvError:
		f.Error = env.Error
		if f.Error == "" {
			f.Error = "unknown error"
		}
	default:
		return nil, fmt.Errorf("transport: unknown envelope type %q", env.Type)
	}
	return json.Marshal(f)
}

// Send writes env as one data frame and flushes.
func (s *SSESink) Send(env Envelope) error {
	if !s.ready.Load() {
		return ErrSinkClosed
	}

	data, err := encodeFrame(env)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := fmt.Fprintf(s.writer, "data: %s\n\n", data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Comment writes an SSE comment line, used as a keep-alive.
func (s *SSESink) Comment(text string) error {
	if !s.ready.Load() {
		return ErrSinkClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if _, err := fmt.Fprintf(s.writer, ": %s\n\n", text); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}

// Close stops further writes. The response itself ends when the handler returns.
func (s *SSESink) Close() error {
	s.closeOnce.Do(func() {
		s.ready.Store(false)
	})
	return nil
}
