package ask

import (
	"context"
	"errors"
	"io"
	"iter"
	"log/slog"
	"strings"
	"sync"

	"github.com/devsecrin/askstream/pkg/types"
)

// State is a stream's position in its lifecycle.
type State int

const (
	StateOpening State = iota
	StateStreaming
	StateDone
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateOpening:
		return "opening"
	case StateStreaming:
		return "streaming"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transitions can happen.
func (s State) Terminal() bool {
	return s == StateDone || s == StateFailed || s == StateCancelled
}

// Termination records why a stream ended. Next reports an explicit end
// marker and a clean close without one identically (io.EOF); Termination
// keeps them apart, and separates a consumer's cancel from both.
type Termination int

const (
	TerminationNone           Termination = iota // still streaming
	TerminationDone                              // [DONE] sentinel or done field
	TerminationEOF                               // body closed cleanly without a marker
	TerminationCancelled                         // Close or context cancellation
	TerminationServerError                       // error frame
	TerminationTransportError                    // body read failed
)

func (t Termination) String() string {
	switch t {
	case TerminationNone:
		return "none"
	case TerminationDone:
		return "done"
	case TerminationEOF:
		return "eof"
	case TerminationCancelled:
		return "cancelled"
	case TerminationServerError:
		return "server_error"
	case TerminationTransportError:
		return "transport_error"
	default:
		return "unknown"
	}
}

// Stream is an open answer stream. Events are decoded on demand: each call
// to Next reads from the body only when no decoded frame is pending, so
// nothing is read ahead of the consumer.
//
// Next must be called from a single goroutine. Close may be called from any
// goroutine and unblocks a pending Next.
type Stream struct {
	ctx    context.Context
	body   io.ReadCloser
	cancel context.CancelFunc
	log    *slog.Logger

	// Owned by the goroutine calling Next.
	dec     Decoder
	buf     []byte
	frames  []string
	eof     bool
	readErr error

	mu          sync.Mutex
	state       State
	termination Termination
	err         error
	releaseOnce sync.Once
	stopWatch   func() bool
}

// NewStream wraps an SSE response body. cancel, if non-nil, is called when
// the stream reaches a terminal state, along with body.Close.
func NewStream(body io.ReadCloser, cancel context.CancelFunc) *Stream {
	return newStream(context.Background(), body, cancel, defaultReadBufferSize, nil)
}

func newStream(ctx context.Context, body io.ReadCloser, cancel context.CancelFunc, bufSize int, logger *slog.Logger) *Stream {
	if bufSize <= 0 {
		bufSize = defaultReadBufferSize
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Stream{
		ctx:    ctx,
		body:   body,
		cancel: cancel,
		log:    logger,
		buf:    make([]byte, bufSize),
		state:  StateStreaming,
	}
	// A cancelled context ends the stream like Close, even while decoded
	// frames are still pending and nobody is blocked in Next.
	s.mu.Lock()
	s.stopWatch = context.AfterFunc(ctx, func() {
		s.finish(StateCancelled, TerminationCancelled, nil)
	})
	s.mu.Unlock()
	return s
}

// Next returns the next event. It returns io.EOF once the stream is done or
// cancelled, a *ServerError after an error frame, and a *TransportError if
// the body fails mid-stream. After a terminal result every further call
// returns the same result without touching the body.
func (s *Stream) Next() (Event, error) {
	for {
		if s.ctx.Err() != nil {
			s.finish(StateCancelled, TerminationCancelled, nil)
		}
		if ended, err := s.result(); ended {
			s.frames = nil
			return Event{}, err
		}

		if len(s.frames) > 0 {
			frame := s.frames[0]
			s.frames = s.frames[1:]

			ev, verdict, err := Classify(frame)
			switch verdict {
			case VerdictEmit:
				if err != nil {
					s.log.Debug("ask: partially decoded frame", "frame", frame, "reason", err)
				}
				return ev, nil
			case VerdictDone:
				s.finish(StateDone, TerminationDone, nil)
			case VerdictFail:
				s.finish(StateFailed, TerminationServerError, &ServerError{Message: ev.Message})
			default:
				s.log.Debug("ask: skipping frame", "frame", frame, "reason", err)
			}
			continue
		}

		if s.readErr != nil {
			s.finish(StateFailed, TerminationTransportError, &TransportError{Kind: TransportRead, Err: s.readErr})
			continue
		}

		if s.eof {
			if tail := s.dec.Finish(); strings.TrimSpace(tail) != "" {
				s.log.Debug("ask: discarding unterminated data", "data", tail)
			}
			s.finish(StateDone, TerminationEOF, nil)
			continue
		}

		n, err := s.body.Read(s.buf)
		if n > 0 {
			s.frames = append(s.frames, s.dec.Feed(s.buf[:n])...)
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF):
			s.eof = true
		case s.ctx.Err() != nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			s.finish(StateCancelled, TerminationCancelled, nil)
		default:
			// Frames completed by this read are still delivered first.
			s.readErr = err
		}
	}
}

// All returns the remaining events as a sequence. The sequence ends
// without a value on a graceful end or cancellation; a failure is yielded
// once as the final pair. Breaking out of the loop cancels the stream.
func (s *Stream) All() iter.Seq2[Event, error] {
	return func(yield func(Event, error) bool) {
		for {
			ev, err := s.Next()
			if errors.Is(err, io.EOF) {
				return
			}
			if err != nil {
				yield(Event{}, err)
				return
			}
			if !yield(ev, nil) {
				s.Close()
				return
			}
		}
	}
}

// Accumulate reads all remaining events and assembles the answer.
func (s *Stream) Accumulate() (*Answer, error) {
	return s.AccumulateWithCallback(nil)
}

// AccumulateWithCallback reads all events, calling cb for each one before it
// is folded into the answer. On failure the partial answer is returned
// together with the error.
func (s *Stream) AccumulateWithCallback(cb func(Event)) (*Answer, error) {
	defer s.Close()

	var text strings.Builder
	answer := &Answer{}
	for {
		ev, err := s.Next()
		if err != nil {
			answer.Text = text.String()
			if errors.Is(err, io.EOF) {
				return answer, nil
			}
			return answer, err
		}
		if cb != nil {
			cb(ev)
		}
		switch ev.Kind {
		case KindContext:
			answer.Context = append([]types.ContextItem(nil), ev.Items...)
			answer.Metadata = ev.Metadata
		case KindAnswerChunk:
			text.WriteString(ev.Text)
		}
	}
}

// Close cancels the stream: the body and request context are released, no
// further events are produced and Next returns io.EOF. Closing a stream that
// already ended only releases resources. Close never fails.
func (s *Stream) Close() error {
	s.finish(StateCancelled, TerminationCancelled, nil)
	return nil
}

// State returns the stream's current state.
func (s *Stream) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Termination returns why the stream ended, or TerminationNone while it runs.
func (s *Stream) Termination() Termination {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.termination
}

// Err returns the failure that ended the stream, if any.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// result reports whether the stream has ended and what Next should return.
func (s *Stream) result() (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case StateDone, StateCancelled:
		return true, io.EOF
	case StateFailed:
		return true, s.err
	default:
		return false, nil
	}
}

// finish performs the stream's single terminal transition. Later calls only
// make sure resources are released.
func (s *Stream) finish(state State, termination Termination, err error) {
	s.mu.Lock()
	first := !s.state.Terminal()
	if first {
		s.state = state
		s.termination = termination
		s.err = err
	}
	s.mu.Unlock()

	if first {
		s.log.Debug("ask: stream ended", "state", state, "termination", termination, "err", err)
	}
	s.release()
}

func (s *Stream) release() {
	s.releaseOnce.Do(func() {
		s.mu.Lock()
		stop := s.stopWatch
		s.mu.Unlock()
		if stop != nil {
			stop()
		}
		if s.cancel != nil {
			s.cancel()
		}
		if s.body != nil {
			s.body.Close()
		}
	})
}
