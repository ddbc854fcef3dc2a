package ask

import (
	"strings"
	"unicode/utf8"
)

// dataPrefix is the only SSE field this client consumes.
const dataPrefix = "data: "

// Decoder reassembles SSE data frames from body chunks of any size and
// alignment. It owns the unconsumed tail of the stream: between calls the
// buffered text never contains a newline, and any code point split across
// chunks is held back as raw bytes until it completes.
//
// A Decoder belongs to a single stream and is not safe for concurrent use.
type Decoder struct {
	buf     string // prefix of a future line
	partial []byte // incomplete trailing UTF-8 sequence
}

// Feed appends chunk to the buffered tail and returns the payloads of every
// data line it completes, in arrival order. Lines without the "data: "
// prefix (comments, keep-alives, event:/id: fields) are dropped; payloads are
// stripped of the prefix and of surrounding whitespace. Feeding an empty
// chunk is a no-op.
func (d *Decoder) Feed(chunk []byte) []string {
	if len(chunk) == 0 {
		return nil
	}

	data := chunk
	if len(d.partial) > 0 {
		data = make([]byte, 0, len(d.partial)+len(chunk))
		data = append(data, d.partial...)
		data = append(data, chunk...)
		d.partial = nil
	}
	if cut := incompleteSuffix(data); cut > 0 {
		d.partial = append([]byte(nil), data[len(data)-cut:]...)
		data = data[:len(data)-cut]
	}

	text := decodeLossy(data)
	idx := strings.LastIndexByte(text, '\n')
	if idx < 0 {
		d.buf += text
		return nil
	}

	complete := d.buf + text[:idx]
	d.buf = text[idx+1:]

	var frames []string
	for _, line := range strings.Split(complete, "\n") {
		if !strings.HasPrefix(line, dataPrefix) {
			continue
		}
		frames = append(frames, strings.TrimSpace(line[len(dataPrefix):]))
	}
	return frames
}

// Finish returns the unterminated data left in the decoder and resets it.
// The tail is never a valid frame; it is only useful for diagnostics.
func (d *Decoder) Finish() string {
	tail := d.buf
	if len(d.partial) > 0 {
		tail += decodeLossy(d.partial)
	}
	d.buf = ""
	d.partial = nil
	return tail
}

// Buffered returns the text held for the next line without consuming it.
func (d *Decoder) Buffered() string {
	return d.buf
}

// incompleteSuffix returns the length of a trailing UTF-8 sequence that is
// cut short and could still be completed by the next chunk.
func incompleteSuffix(b []byte) int {
	for i := len(b) - 1; i >= 0 && i >= len(b)-utf8.UTFMax+1; i-- {
		if !utf8.RuneStart(b[i]) {
			continue
		}
		if utf8.FullRune(b[i:]) {
			return 0
		}
		return len(b) - i
	}
	return 0
}

// decodeLossy converts b to text, replacing invalid sequences with U+FFFD.
func decodeLossy(b []byte) string {
	if utf8.Valid(b) {
		return string(b)
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError))
}
