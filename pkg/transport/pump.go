package transport

import (
	"errors"
	"fmt"
	"io"

	"github.com/devsecrin/askstream/pkg/ask"
)

// Pump forwards the events of stream to sink until the stream ends, then
// sends a done envelope, or an error envelope when the stream failed. A
// cancelled stream ends without either. The stream is always closed.
//
// Pump returns the stream's *ask.ServerError or *ask.TransportError, or the
// sink's error wrapped as "transport: send" when the consumer went away.
// The sink is left open for the caller.
func Pump(stream *ask.Stream, sink Sink) error {
	defer stream.Close()

	for {
		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			if stream.Termination() == ask.TerminationCancelled {
				return nil
			}
			if err := sink.Send(Envelope{Type: EnvDone}); err != nil {
				return fmt.Errorf("transport: send: %w", err)
			}
			return nil
		}
		if err != nil {
			if serr := sink.Send(failureEnvelope(err)); serr != nil {
				return fmt.Errorf("transport: send: %w", serr)
			}
			return err
		}

		if err := sink.Send(EnvelopeFor(ev)); err != nil {
			return fmt.Errorf("transport: send: %w", err)
		}
	}
}

// failureEnvelope reports a stream failure with the backend's own message
// when there is one.
func failureEnvelope(err error) Envelope {
	var serr *ask.ServerError
	if errors.As(err, &serr) {
		return Envelope{Type: EnvError, Error: serr.Message}
	}
	return Envelope{Type: EnvError, Error: err.Error()}
}
