// Package stream implements the newline-delimited event framing used between the
// chat pipeline and the remote model relay.
package stream

import (
	"bytes"
	"errors"
	"io"
	"strings"
)

// ErrStop can be returned from a Scan callback to end the scan without an error
var ErrStop = errors.New("stream: stop")

const readSize = 4096

// Frame is one decoded event block
type Frame struct {
	Event string
	Data  string
}

// Decoder splits a byte stream into frames. It keeps partial blocks across Feed calls,
// so reads do not need to line up with block boundaries.
type Decoder struct {
	buf []byte
}

// NewDecoder creates an empty decoder
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Feed appends p to the decode buffer and returns every block completed by it
func (d *Decoder) Feed(p []byte) []Frame {
	for _, b := range p {
		// CR is dropped byte by byte so CRLF framing decodes the same at any split point
		if b != '\r' {
			d.buf = append(d.buf, b)
		}
	}

	var frames []Frame
	offset := 0
	for {
		idx := bytes.Index(d.buf[offset:], []byte("\n\n"))
		if idx < 0 {
			break
		}
		if f, ok := parseBlock(d.buf[offset : offset+idx]); ok {
			frames = append(frames, f)
		}
		offset += idx + 2
	}

	if offset > 0 {
		n := copy(d.buf, d.buf[offset:])
		d.buf = d.buf[:n]
	}
	return frames
}

// Flush returns the trailing block left in the buffer when the stream ended without a
// terminating blank line
func (d *Decoder) Flush() (Frame, bool) {
	rest := bytes.Trim(d.buf, "\n")
	d.buf = d.buf[:0]
	if len(rest) == 0 {
		return Frame{}, false
	}
	return parseBlock(rest)
}

// Buffered returns the number of bytes held for an incomplete block
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Scan reads r until EOF and calls fn for every frame in order. A callback returning
// ErrStop ends the scan with a nil error.
func Scan(r io.Reader, fn func(Frame) error) error {
	dec := NewDecoder()
	buf := make([]byte, readSize)

	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			for _, f := range dec.Feed(buf[:n]) {
				if err := fn(f); err != nil {
					if errors.Is(err, ErrStop) {
						return nil
					}
					return err
				}
			}
		}

		if readErr != nil {
			if !errors.Is(readErr, io.EOF) {
				return readErr
			}
			if f, ok := dec.Flush(); ok {
				if err := fn(f); err != nil && !errors.Is(err, ErrStop) {
					return err
				}
			}
			return nil
		}
	}
}

func parseBlock(block []byte) (Frame, bool) {
	var f Frame
	var data []string
	hasData := false

	for _, line := range strings.Split(string(block), "\n") {
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}

		field, value, found := strings.Cut(line, ":")
		if found {
			value = strings.TrimPrefix(value, " ")
		}

		switch field {
		case "event":
			f.Event = value
		case "data":
			data = append(data, value)
			hasData = true
		}
	}

	if f.Event == "" && !hasData {
		return Frame{}, false
	}
	f.Data = strings.Join(data, "\n")
	return f, true
}
