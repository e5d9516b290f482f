// Package stream implements the query-stream wire protocol: framing of an
// unbounded byte stream into delimited protocol frames, and tolerant parsing
// of those frames into typed events.
package stream

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Frame is one delimited unit of the wire protocol, prior to JSON decoding.
// Frames are transient; they do not outlive their parse step.
type Frame struct {
	Payload string
}

// ChunkReader is the pull contract the decoder consumes. Next returns the
// next chunk of raw bytes, or io.EOF when the stream ends. The returned
// slice is only valid until the following call to Next.
type ChunkReader interface {
	Next() ([]byte, error)
	Close() error
}

const (
	frameDelimiter = "\n\n"
	dataPrefix     = "data:"
	commentPrefix  = ":"
)

// Decoder turns raw byte chunks into complete protocol frames. Chunk
// boundaries carry no meaning: a frame, or a single multi-byte character,
// may arrive split across any number of chunks. Bytes are buffered until a
// full blank-line-delimited block is available, so a partial rune is never
// surfaced half-decoded.
type Decoder struct {
	buf bytes.Buffer
}

// NewDecoder creates an empty decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends a chunk and returns every frame it completes, in arrival
// order. An empty chunk yields no frames; a chunk holding several frames
// yields all of them.
func (d *Decoder) Feed(chunk []byte) []Frame {
	d.buf.Write(chunk)

	var frames []Frame
	for {
		i := bytes.Index(d.buf.Bytes(), []byte(frameDelimiter))
		if i < 0 {
			break
		}
		block := string(d.buf.Next(i + len(frameDelimiter))[:i])
		if f, ok := parseBlock(block); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

// Finish flushes a trailing unterminated frame, but only when it is a
// complete well-formed unit: it carries a recognized data prefix and its
// payload is valid JSON. A partial frame at stream end is discarded.
func (d *Decoder) Finish() []Frame {
	block := d.buf.String()
	d.buf.Reset()

	f, ok := parseBlock(block)
	if !ok || !json.Valid([]byte(f.Payload)) {
		return nil
	}
	return []Frame{f}
}

// parseBlock extracts the payload from one delimited block. Lines with the
// "data:" prefix contribute payload (several are joined with a newline, so
// a payload spanning lines survives intact); comment lines and unrecognized
// field lines are skipped. A block with no data lines is not a frame.
func parseBlock(block string) (Frame, bool) {
	var payload []string
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSuffix(line, "\r")
		switch {
		case strings.HasPrefix(line, dataPrefix):
			part := strings.TrimPrefix(line, dataPrefix)
			payload = append(payload, strings.TrimPrefix(part, " "))
		case line == "" || strings.HasPrefix(line, commentPrefix):
			// keepalive comments and blank lines
		default:
			// unrecognized field, e.g. "event:" or "id:"
		}
	}
	if len(payload) == 0 {
		return Frame{}, false
	}
	return Frame{Payload: strings.Join(payload, "\n")}, true
}
