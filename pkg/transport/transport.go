// Package transport relays ask streams to downstream consumers: browsers over
// SSE or WebSocket, scripts over JSONL, and in-process readers over channels.
package transport

import (
	"errors"

	"github.com/devsecrin/askstream/pkg/ask"
	"github.com/devsecrin/askstream/pkg/types"
)

// ErrSinkClosed is returned when sending to a closed sink.
var ErrSinkClosed = errors.New("transport: sink closed")

// EnvelopeType identifies the kind of an Envelope.
type EnvelopeType string

const (
	EnvContext     EnvelopeType = "context"      // retrieved context and model metadata
	EnvAnswerChunk EnvelopeType = "answer_chunk" // answer text fragment
	EnvError       EnvelopeType = "error"        // stream failed
	EnvDone        EnvelopeType = "done"         // stream completed
)

// Envelope is the relay's message shape, matching the chunks the web
// frontend consumes.
type Envelope struct {
	Type     EnvelopeType        `json:"type"`
	Content  string              `json:"content,omitempty"`
	Context  []types.ContextItem `json:"context,omitempty"`
	Metadata *ask.Metadata       `json:"metadata,omitempty"`
	Error    string              `json:"error,omitempty"`
}

// EnvelopeFor converts a stream event.
func EnvelopeFor(ev ask.Event) Envelope {
	switch ev.Kind {
	case ask.KindContext:
		md := ev.Metadata
		return Envelope{Type: EnvContext, Context: ev.Items, Metadata: &md}
	case ask.KindAnswerChunk:
		return Envelope{Type: EnvAnswerChunk, Content: ev.Text}
	default:
		return Envelope{Type: EnvError, Error: ev.Message}
	}
}

// Sink receives the envelopes of one relayed stream.
// Implementations include ChannelSink (in-process), StdioSink (JSONL),
// WebSocketSink and SSESink.
type Sink interface {
	// Send delivers one envelope. It returns ErrSinkClosed after Close, or
	// the write error when the consumer has gone away.
	Send(env Envelope) error

	// Close releases the sink. Safe to call multiple times.
	Close() error
}
