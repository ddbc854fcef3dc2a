package transport

import (
	"sync"
	"sync/atomic"
)

// ChannelSink hands envelopes to an in-process reader over a Go channel.
// Send blocks while the buffer is full.
type ChannelSink struct {
	outputCh  chan Envelope
	doneCh    chan struct{}
	ready     atomic.Bool
	closeOnce sync.Once
}

// NewChannelSink creates a channel sink with the given buffer capacity.
func NewChannelSink(bufferSize int) *ChannelSink {
	if bufferSize <= 0 {
		bufferSize = 64
	}
	s := &ChannelSink{
		outputCh: make(chan Envelope, bufferSize),
		doneCh:   make(chan struct{}),
	}
	s.ready.Store(true)
	return s
}

// Send queues env for the reader.
func (s *ChannelSink) Send(env Envelope) error {
	if !s.ready.Load() {
		return ErrSinkClosed
	}
	select {
	case s.outputCh <- env:
		return nil
	case <-s.doneCh:
		return ErrSinkClosed
	}
}

// Close shuts down the sink and unblocks pending sends and receives. Safe to
// call multiple times.
func (s *ChannelSink) Close() error {
	s.closeOnce.Do(func() {
		s.ready.Store(false)
		close(s.doneCh)
	})
	return nil
}

// Receive returns the next envelope. Envelopes already queued are delivered
// before a closed sink reports false.
func (s *ChannelSink) Receive() (Envelope, bool) {
	select {
	case env := <-s.outputCh:
		return env, true
	default:
	}
	select {
	case env := <-s.outputCh:
		return env, true
	case <-s.doneCh:
		select {
		case env := <-s.outputCh:
			return env, true
		default:
			return Envelope{}, false
		}
	}
}

// Output returns the raw output channel. It is never closed; select on Done
// as well.
func (s *ChannelSink) Output() <-chan Envelope {
	return s.outputCh
}

// Done is closed when the sink is closed.
func (s *ChannelSink) Done() <-chan struct{} {
	return s.doneCh
}
