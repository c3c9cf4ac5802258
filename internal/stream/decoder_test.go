package stream

import (
	"bytes"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleStream = "event: start\ndata: {\"model\":\"gpt-4o\"}\n\n" +
	"event: chunk\ndata: {\"content\":\"Hi\"}\n\n" +
	": keep-alive\n\n" +
	"event: ping\ndata: {}\n\n" +
	"event: chunk\ndata: {\"content\":\" there\"}\n\n" +
	"event: done\ndata: {\"tokens\":12,\"cost\":0.002,\"model\":\"gpt-4o\"}\n\n"

func decodeAll(chunks [][]byte) []Frame {
	dec := NewDecoder()
	var frames []Frame
	for _, c := range chunks {
		frames = append(frames, dec.Feed(c)...)
	}
	if f, ok := dec.Flush(); ok {
		frames = append(frames, f)
	}
	return frames
}

func TestDecoder_Unsplit(t *testing.T) {
	frames := decodeAll([][]byte{[]byte(sampleStream)})

	require.Len(t, frames, 5)
	assert.Equal(t, Frame{Event: "start", Data: `{"model":"gpt-4o"}`}, frames[0])
	assert.Equal(t, "chunk", frames[1].Event)
	assert.Equal(t, "ping", frames[2].Event)
	assert.Equal(t, "done", frames[4].Event)
}

func TestDecoder_SplitAtEveryOffset(t *testing.T) {
	input := []byte(sampleStream)
	want := decodeAll([][]byte{input})

	for i := 0; i <= len(input); i++ {
		got := decodeAll([][]byte{input[:i], input[i:]})
		require.Equal(t, want, got, "split at offset %d", i)
	}
}

func TestDecoder_RandomFragmentation(t *testing.T) {
	input := []byte(strings.ReplaceAll(sampleStream, "\n", "\r\n"))
	want := decodeAll([][]byte{[]byte(sampleStream)})
	rng := rand.New(rand.NewSource(42))

	for round := 0; round < 200; round++ {
		var chunks [][]byte
		rest := input
		for len(rest) > 0 {
			n := rng.Intn(7) + 1
			if n > len(rest) {
				n = len(rest)
			}
			chunks = append(chunks, rest[:n])
			rest = rest[n:]
		}
		require.Equal(t, want, decodeAll(chunks), "round %d", round)
	}
}

func TestDecoder_BuffersPartialBlock(t *testing.T) {
	dec := NewDecoder()

	frames := dec.Feed([]byte("event: chunk\ndata: {\"content\":"))
	assert.Empty(t, frames)
	assert.Positive(t, dec.Buffered())

	frames = dec.Feed([]byte("\"abc\"}\n\n"))
	require.Len(t, frames, 1)
	assert.Equal(t, `{"content":"abc"}`, frames[0].Data)
	assert.Zero(t, dec.Buffered())
}

func TestDecoder_MultiLineData(t *testing.T) {
	frames := decodeAll([][]byte{[]byte("data: one\ndata: two\n\n")})

	require.Len(t, frames, 1)
	assert.Equal(t, "", frames[0].Event)
	assert.Equal(t, "one\ntwo", frames[0].Data)
}

func TestDecoder_FlushTrailingBlock(t *testing.T) {
	dec := NewDecoder()
	assert.Empty(t, dec.Feed([]byte("event: done\ndata: {\"tokens\":1}\n")))

	f, ok := dec.Flush()
	require.True(t, ok)
	assert.Equal(t, "done", f.Event)

	_, ok = dec.Flush()
	assert.False(t, ok)
}

// oneByteReader returns a single byte per Read call
type oneByteReader struct {
	r io.Reader
}

func (o oneByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}

func TestScan(t *testing.T) {
	var got []string
	err := Scan(oneByteReader{strings.NewReader(sampleStream)}, func(f Frame) error {
		got = append(got, f.Event)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"start", "chunk", "ping", "chunk", "done"}, got)
}

func TestScan_Stop(t *testing.T) {
	count := 0
	err := Scan(strings.NewReader(sampleStream), func(f Frame) error {
		count++
		if f.Event == "chunk" {
			return ErrStop
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestScan_CallbackError(t *testing.T) {
	boom := errors.New("boom")
	err := Scan(strings.NewReader(sampleStream), func(Frame) error { return boom })

	assert.ErrorIs(t, err, boom)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, io.ErrUnexpectedEOF }

func TestScan_ReadError(t *testing.T) {
	err := Scan(io.MultiReader(bytes.NewReader([]byte("event: chunk\n")), failingReader{}), func(Frame) error { return nil })

	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}
