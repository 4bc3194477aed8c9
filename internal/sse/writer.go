package sse

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
)

// Writer serializes Events onto an underlying stream as standard SSE frames
// ("event: name\ndata: json\n\n"), flushing after each one if the
// destination supports it. Every frame is built in memory and handed to the
// underlying Writer in a single Write call, so the server never splits an
// event across two flushes; concurrent callers (cached-chunk fan-out and the
// origin proxy both write to the same stream) are serialized by mu.
type Writer struct {
	mu sync.Mutex
	w  interface{ Write([]byte) (int, error) }
	fl http.Flusher
}

// NewWriter wraps w. If w also implements http.Flusher (the case for an
// http.ResponseWriter serving a streaming request), every event is flushed
// immediately after it's written.
func NewWriter(w interface{ Write([]byte) (int, error) }) *Writer {
	fl, _ := w.(http.Flusher)
	return &Writer{w: w, fl: fl}
}

// Write emits ev as one SSE frame.
func (w *Writer) Write(ev Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sse: marshal %s event: %w", ev.Name(), err)
	}

	frame := make([]byte, 0, len(data)+len(ev.Name())+16)
	frame = append(frame, "event: "...)
	frame = append(frame, ev.Name()...)
	frame = append(frame, '\n')
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("sse: write %s event: %w", ev.Name(), err)
	}
	if w.fl != nil {
		w.fl.Flush()
	}
	return nil
}

// WriteChunkData emits a chunk_data event whose compressed payload is a raw
// binary frame rather than base64: ev.ByteLength must equal len(payload).
// The JSON header, a 4-byte big-endian length prefix, and the raw payload
// are all appended to one buffer and handed to the underlying Writer in a
// single call, so the client can read the length-prefixed frame immediately
// after the header's blank-line terminator without it ever being split
// across flushes.
func (w *Writer) WriteChunkData(ev ChunkData, payload []byte) error {
	ev.ByteLength = len(payload)
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("sse: marshal %s event: %w", ev.Name(), err)
	}

	frame := make([]byte, 0, len(data)+len(ev.Name())+20+4+len(payload))
	frame = append(frame, "event: "...)
	frame = append(frame, ev.Name()...)
	frame = append(frame, '\n')
	frame = append(frame, "data: "...)
	frame = append(frame, data...)
	frame = append(frame, '\n', '\n')
	frame = binary.BigEndian.AppendUint32(frame, uint32(len(payload)))
	frame = append(frame, payload...)

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.w.Write(frame); err != nil {
		return fmt.Errorf("sse: write %s event: %w", ev.Name(), err)
	}
	if w.fl != nil {
		w.fl.Flush()
	}
	return nil
}
