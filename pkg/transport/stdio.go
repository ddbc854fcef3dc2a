package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/devsecrin/askstream/pkg/ask"
)

const (
	// maxScannerBuffer is the max size of one JSONL request line (1 MB).
	maxScannerBuffer = 1024 * 1024
	// initialScannerBuffer is the initial buffer size for the scanner (64 KB).
	initialScannerBuffer = 64 * 1024
)

// StdioSink writes each envelope as one JSON line to an io.Writer.
type StdioSink struct {
	writer io.Writer

	ready     atomic.Bool
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// NewStdioSink creates a JSONL sink. Closing it does not close w.
func NewStdioSink(w io.Writer) *StdioSink {
	s := &StdioSink{writer: w}
	s.ready.Store(true)
	return s
}

// Send writes env followed by a newline.
func (s *StdioSink) Send(env Envelope) error {
	if !s.ready.Load() {
		return ErrSinkClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_, err = s.writer.Write(data)
	return err
}

// Close shuts down the sink. Safe to call multiple times.
func (s *StdioSink) Close() error {
	s.closeOnce.Do(func() {
		s.ready.Store(false)
	})
	return nil
}

// ServeStdio reads one JSON request per line from r and streams each answer
// to w as JSONL envelopes, one request at a time. Empty lines are skipped;
// a line that fails to decode or validate produces an error envelope. It
// returns when r is exhausted or ctx is done.
func ServeStdio(ctx context.Context, cfg HandlerConfig, r io.Reader, w io.Writer) error {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	sink := NewStdioSink(w)
	defer sink.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, initialScannerBuffer), maxScannerBuffer)

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		req, err := cfg.decodeRequest(line)
		if err != nil {
			if err := sink.Send(Envelope{Type: EnvError, Error: err.Error()}); err != nil {
				return err
			}
			continue
		}

		stream, err := cfg.Client.Stream(ctx, req)
		if err != nil {
			log.Warn("transport: stdio upstream failed", "err", err)
			if err := sink.Send(Envelope{Type: EnvError, Error: err.Error()}); err != nil {
				return err
			}
			continue
		}

		if err := Pump(stream, sink); err != nil && !isStreamFailure(err) {
			return err
		}
	}
	return scanner.Err()
}

// isStreamFailure reports whether err came from the upstream stream, which
// Pump has already reported to the consumer, rather than from the sink.
func isStreamFailure(err error) bool {
	var serr *ask.ServerError
	var terr *ask.TransportError
	return errors.As(err, &serr) || errors.As(err, &terr)
}
