package stream

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEvent(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		want  Event
		ok    bool
	}{
		{"start", Frame{"start", `{"model":"m"}`}, Event{Type: EventStart, Model: "m"}, true},
		{"chunk", Frame{"chunk", `{"content":"Hi"}`}, Event{Type: EventChunk, Content: "Hi"}, true},
		{"done", Frame{"done", `{"tokens":12,"cost":0.002,"model":"m"}`}, Event{Type: EventDone, Tokens: 12, Cost: 0.002, Model: "m"}, true},
		{"error", Frame{"error", `{"error":"upstream down"}`}, Event{Type: EventError, Error: "upstream down"}, true},
		{"empty data", Frame{"done", ""}, Event{Type: EventDone}, true},
		{"unknown type", Frame{"ping", `{}`}, Event{}, false},
		{"no type", Frame{"", `{"content":"x"}`}, Event{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := ParseEvent(tt.frame)
			require.NoError(t, err)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEvent_Malformed(t *testing.T) {
	_, ok, err := ParseEvent(Frame{Event: "chunk", Data: "{not json"})

	assert.Error(t, err)
	assert.False(t, ok)
}

func TestWriter_RoundTripThroughDecoder(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf)

	require.NoError(t, w.Start("gpt-4o"))
	require.NoError(t, w.Chunk("line one\nline two"))
	require.NoError(t, w.Done(7, 0.01, "gpt-4o"))

	var events []Event
	for _, f := range decodeAll([][]byte{buf.Bytes()}) {
		ev, ok, err := ParseEvent(f)
		require.NoError(t, err)
		require.True(t, ok)
		events = append(events, ev)
	}

	require.Len(t, events, 3)
	assert.Equal(t, "line one\nline two", events[1].Content)
	assert.True(t, events[2].Terminal())
	assert.Equal(t, 7, events[2].Tokens)
}
