package sse

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"encoding/json"
	"strings"
	"sync"
	"testing"

	"github.com/Sonified/seisstream/internal/station"
)

// recordingWriter counts Write calls (to assert one event = one write) and
// optionally implements http.Flusher to count flushes.
type recordingWriter struct {
	mu         sync.Mutex
	buf        bytes.Buffer
	writeCalls int
	flushCalls int
}

func (r *recordingWriter) Write(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writeCalls++
	return r.buf.Write(p)
}

func (r *recordingWriter) Flush() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.flushCalls++
}

func TestWriteEmitsExactlyOneWriteCall(t *testing.T) {
	rec := &recordingWriter{}
	w := NewWriter(rec)

	if err := w.Write(Complete{Status: "ok", EmittedChunks: 3}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if rec.writeCalls != 1 {
		t.Fatalf("writeCalls = %d, want 1 (event must not be split across writes)", rec.writeCalls)
	}
	if rec.flushCalls != 1 {
		t.Fatalf("flushCalls = %d, want 1", rec.flushCalls)
	}
}

func TestWriteFramesEventAndDataLines(t *testing.T) {
	rec := &recordingWriter{}
	w := NewWriter(rec)

	if err := w.Write(RangeUpdate{Min: -10, Max: 20}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	lines := strings.Split(rec.buf.String(), "\n")
	if len(lines) < 4 {
		t.Fatalf("expected at least 4 lines (event, data, blank, trailing), got %d: %q", len(lines), rec.buf.String())
	}
	if lines[0] != "event: range_update" {
		t.Fatalf("line 0 = %q, want %q", lines[0], "event: range_update")
	}
	if !strings.HasPrefix(lines[1], "data: ") {
		t.Fatalf("line 1 = %q, want data: prefix", lines[1])
	}
	if lines[2] != "" {
		t.Fatalf("line 2 should be the blank line terminator, got %q", lines[2])
	}

	var payload RangeUpdate
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &payload); err != nil {
		t.Fatalf("unmarshal data line: %v", err)
	}
	if payload.Min != -10 || payload.Max != 20 {
		t.Fatalf("payload = %+v, want Min=-10 Max=20", payload)
	}
}

func TestWriteChunkDataFramesLengthPrefixedBinaryPayload(t *testing.T) {
	rec := &recordingWriter{}
	w := NewWriter(rec)

	payload := []byte{0xff, 0x00, 0x7f, 0x80, 0x01}
	ev := ChunkData{
		Tier:   station.Tier10Min,
		Start:  "00:00:00",
		End:    "00:10:00",
		Cached: true,
	}
	if err := w.WriteChunkData(ev, payload); err != nil {
		t.Fatalf("WriteChunkData: %v", err)
	}
	if rec.writeCalls != 1 {
		t.Fatalf("writeCalls = %d, want 1 (header and binary frame must not be split)", rec.writeCalls)
	}

	out := rec.buf.Bytes()
	headerEnd := bytes.Index(out, []byte("\n\n"))
	if headerEnd < 0 {
		t.Fatalf("no blank-line terminator found in %q", out)
	}
	header := string(out[:headerEnd])
	lines := strings.Split(header, "\n")
	if lines[0] != "event: chunk_data" {
		t.Fatalf("line 0 = %q, want %q", lines[0], "event: chunk_data")
	}

	var decoded ChunkData
	if err := json.Unmarshal([]byte(strings.TrimPrefix(lines[1], "data: ")), &decoded); err != nil {
		t.Fatalf("unmarshal data line: %v", err)
	}
	if decoded.ByteLength != len(payload) {
		t.Fatalf("ByteLength = %d, want %d", decoded.ByteLength, len(payload))
	}

	rest := out[headerEnd+2:]
	gotLen := binary.BigEndian.Uint32(rest[:4])
	if int(gotLen) != len(payload) {
		t.Fatalf("length prefix = %d, want %d", gotLen, len(payload))
	}
	if !bytes.Equal(rest[4:4+gotLen], payload) {
		t.Fatalf("payload = %v, want %v", rest[4:4+gotLen], payload)
	}
}

func TestEventNamesMatchCatalog(t *testing.T) {
	cases := []struct {
		ev   Event
		want string
	}{
		{MetadataCalculated{}, EventMetadataCalculated},
		{ChunkData{}, EventChunkData},
		{ChunkUploaded{}, EventChunkUploaded},
		{RangeUpdate{}, EventRangeUpdate},
		{ChunkError{}, EventChunkError},
		{OriginError{}, EventOriginError},
		{Complete{}, EventComplete},
	}
	for _, c := range cases {
		if got := c.ev.Name(); got != c.want {
			t.Errorf("%T.Name() = %q, want %q", c.ev, got, c.want)
		}
	}
}

func TestWriteIsSafeForConcurrentCallers(t *testing.T) {
	rec := &recordingWriter{}
	w := NewWriter(rec)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = w.Write(ChunkError{Start: "00:00:00", Reason: "boom"})
		}(i)
	}
	wg.Wait()

	if rec.writeCalls != 20 {
		t.Fatalf("writeCalls = %d, want 20", rec.writeCalls)
	}
	scanner := bufio.NewScanner(strings.NewReader(rec.buf.String()))
	eventLines := 0
	for scanner.Scan() {
		if strings.HasPrefix(scanner.Text(), "event: ") {
			eventLines++
		}
	}
	if eventLines != 20 {
		t.Fatalf("expected 20 well-formed event lines, got %d", eventLines)
	}
}
