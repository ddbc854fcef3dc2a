// Package asktest provides a scripted ask backend and chunked bodies for
// exercising stream decoding over real and simulated transports.
package asktest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Request is the decoded body of a request the server received.
type Request struct {
	Question     string `json:"question"`
	AgentType    string `json:"agent_type"`
	SearchType   string `json:"search_type"`
	ContextLimit int    `json:"context_limit"`
	Stream       bool   `json:"stream"`

	Path   string      `json:"-"`
	Header http.Header `json:"-"`
}

// Script describes how the server answers every request.
type Script struct {
	Status int               // default 200
	Header map[string]string // extra response headers
	Chunks []string          // streamed bodies: each chunk is written and flushed on its own
	Body   string            // written in one piece when Chunks is empty
	Hold   bool              // keep the response open after the last chunk until the client leaves
}

// Server is an httptest server that replays a Script.
type Server struct {
	*httptest.Server

	script       Script
	mu           sync.Mutex
	requests     []Request
	quit         chan struct{}
	disconnected chan struct{}
	disconnOnce  sync.Once
}

// NewServer starts a scripted server and closes it when the test ends.
func NewServer(tb testing.TB, script Script) *Server {
	tb.Helper()

	s := &Server{
		script:       script,
		quit:         make(chan struct{}),
		disconnected: make(chan struct{}),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	tb.Cleanup(func() {
		close(s.quit)
		s.Server.Close()
	})
	return s
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	// Reading to EOF lets the server notice when the client goes away.
	raw, _ := io.ReadAll(r.Body)
	var req Request
	_ = json.Unmarshal(raw, &req)
	req.Path = r.URL.Path
	req.Header = r.Header.Clone()
	s.mu.Lock()
	s.requests = append(s.requests, req)
	s.mu.Unlock()

	for k, v := range s.script.Header {
		w.Header().Set(k, v)
	}
	if len(s.script.Chunks) > 0 && w.Header().Get("Content-Type") == "" {
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
	}

	status := s.script.Status
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)

	if len(s.script.Chunks) == 0 {
		io.WriteString(w, s.script.Body)
		return
	}

	flusher, _ := w.(http.Flusher)
	for _, chunk := range s.script.Chunks {
		if _, err := io.WriteString(w, chunk); err != nil {
			s.markDisconnected()
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if s.script.Hold {
		select {
		case <-r.Context().Done():
			s.markDisconnected()
		case <-s.quit:
		}
	}
}

func (s *Server) markDisconnected() {
	s.disconnOnce.Do(func() { close(s.disconnected) })
}

// Requests returns the requests received so far.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

// Disconnected is closed once a held response observes the client going away.
func (s *Server) Disconnected() <-chan struct{} {
	return s.disconnected
}

// Frames renders payloads as SSE data blocks: "data: <payload>\n\n" each.
func Frames(payloads ...string) string {
	var b strings.Builder
	for _, p := range payloads {
		fmt.Fprintf(&b, "data: %s\n\n", p)
	}
	return b.String()
}

// Split cuts s into pieces of at most size bytes, ignoring UTF-8 boundaries.
func Split(s string, size int) []string {
	if size <= 0 {
		return []string{s}
	}
	var out []string
	for len(s) > size {
		out = append(out, s[:size])
		s = s[size:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
