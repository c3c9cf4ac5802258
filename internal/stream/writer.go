package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ContentType is the media type of an event stream response
const ContentType = "text/event-stream"

// Writer encodes events in the framing understood by Decoder
type Writer struct {
	w       io.Writer
	flusher http.Flusher
}

// NewWriter wraps w. If w is an http.Flusher it is flushed after every event.
func NewWriter(w io.Writer) *Writer {
	flusher, _ := w.(http.Flusher)
	return &Writer{w: w, flusher: flusher}
}

// PrepareResponse sets the headers of an event stream response
func PrepareResponse(w http.ResponseWriter) {
	w.Header().Set("Content-Type", ContentType)
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
}

// Write encodes a single event
func (w *Writer) Write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal %s event: %w", ev.Type, err)
	}

	if _, err := fmt.Fprintf(w.w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
		return fmt.Errorf("failed to write %s event: %w", ev.Type, err)
	}

	if w.flusher != nil {
		w.flusher.Flush()
	}
	return nil
}

func (w *Writer) Start(model string) error {
	return w.Write(Event{Type: EventStart, Model: model})
}

func (w *Writer) Chunk(content string) error {
	return w.Write(Event{Type: EventChunk, Content: content})
}

func (w *Writer) Done(tokens int, cost float64, model string) error {
	return w.Write(Event{Type: EventDone, Tokens: tokens, Cost: cost, Model: model})
}

func (w *Writer) Error(message string) error {
	return w.Write(Event{Type: EventError, Error: message})
}
