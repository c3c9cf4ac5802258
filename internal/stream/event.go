package stream

import (
	"encoding/json"
	"fmt"
)

// EventType identifies the kind of event carried by a frame
type EventType string

const (
	EventStart EventType = "start"
	EventChunk EventType = "chunk"
	EventDone  EventType = "done"
	EventError EventType = "error"
)

// Event is a typed relay event. Only the fields relevant to its Type are set.
type Event struct {
	Type    EventType `json:"-"`
	Model   string    `json:"model,omitempty"`
	Content string    `json:"content,omitempty"`
	Tokens  int       `json:"tokens,omitempty"`
	Cost    float64   `json:"cost,omitempty"`
	Error   string    `json:"error,omitempty"`
}

// Terminal reports whether the event ends an exchange
func (e Event) Terminal() bool {
	return e.Type == EventDone || e.Type == EventError
}

// ParseEvent decodes a frame into an Event. Frames with an unrecognized event type
// return ok=false and no error.
func ParseEvent(f Frame) (Event, bool, error) {
	t := EventType(f.Event)
	switch t {
	case EventStart, EventChunk, EventDone, EventError:
	default:
		return Event{}, false, nil
	}

	ev := Event{Type: t}
	if f.Data != "" {
		if err := json.Unmarshal([]byte(f.Data), &ev); err != nil {
			return Event{}, false, fmt.Errorf("failed to decode %s event: %w", t, err)
		}
	}
	ev.Type = t
	return ev, true, nil
}
