package edge

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Sonified/seisstream/internal/archive"
	"github.com/Sonified/seisstream/internal/dayindex"
	"github.com/Sonified/seisstream/internal/ladder"
	"github.com/Sonified/seisstream/internal/objectstore"
	"github.com/Sonified/seisstream/internal/origin"
	"github.com/Sonified/seisstream/internal/station"
)

func testSID() station.SID {
	return station.SID{Network: "HV", Station: "NPOC", Location: "01", Channel: "HHZ", SampleRate: 1}
}

// parseEvents splits a raw SSE stream into (name, dataLine) pairs, skipping
// the binary-framed payload that immediately follows a chunk_data header.
func parseEvents(t *testing.T, raw []byte) []string {
	t.Helper()
	var names []string
	rest := raw
	for len(rest) > 0 {
		nl := bytes.Index(rest, []byte("event: "))
		if nl == -1 {
			break
		}
		rest = rest[nl+len("event: "):]
		end := bytes.IndexByte(rest, '\n')
		name := string(rest[:end])
		names = append(names, name)
		rest = rest[end+1:]
		dataEnd := bytes.Index(rest, []byte("\n\n"))
		dataLine := rest[len("data: "):dataEnd]
		rest = rest[dataEnd+2:]
		if name == "chunk_data" {
			var hdr struct {
				ByteLength int `json:"byte_length"`
			}
			if err := json.Unmarshal(dataLine, &hdr); err != nil {
				t.Fatalf("unmarshal chunk_data header: %v", err)
			}
			if len(rest) < 4 {
				t.Fatal("truncated length prefix")
			}
			n := binary.BigEndian.Uint32(rest[:4])
			if int(n) != hdr.ByteLength {
				t.Fatalf("length prefix %d != byte_length %d", n, hdr.ByteLength)
			}
			rest = rest[4+int(n):]
		}
	}
	return names
}

func TestServeHTTPRejectsInvalidDuration(t *testing.T) {
	h := NewHandler(nil, nil, nil, 1, nil)
	body := strings.NewReader(`{"sid":{"network":"HV","station":"NPOC","channel":"HHZ","sample_rate":1},"start_utc":"2025-10-24T00:00:00Z","duration_seconds":0}`)
	req := httptest.NewRequest(http.MethodPost, "/request-stream", body)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestServeHTTPEmitsCachedChunkThenComplete(t *testing.T) {
	objects, err := objectstore.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	index := dayindex.NewStore(objects)
	sid := testSID()
	d, _ := station.ParseDay("2025-10-24")

	chunkStart := d.Start()
	chunkEnd := d.End()
	path := station.ChunkBlobPath(sid, d, chunkStart, chunkEnd, ladder.Codec)
	payload := []byte{1, 2, 3, 4}
	if _, err := objects.Put(context.Background(), path, payload, objectstore.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	idx := station.NewDayIndex(sid, d, time.Now())
	idx.Chunks[station.Tier24Hour] = []station.Chunk{{
		Start: station.ClockString(chunkStart),
		End:   station.ClockString(chunkEnd),
		Stats: station.ChunkStats{Min: -5, Max: 5},
	}}
	data, err := json.Marshal(idx)
	if err != nil {
		t.Fatalf("marshal index: %v", err)
	}
	if _, err := objects.Put(context.Background(), station.IndexPath(sid, d), data, objectstore.PutOptions{
		ContentType: "application/json",
		IfMatch:     objectstore.IfMatchAbsent,
	}); err != nil {
		t.Fatalf("Put index: %v", err)
	}

	h := NewHandler(index, objects, nil, 1, nil)

	reqBody, _ := json.Marshal(Request{
		SID:             sid,
		StartUTC:        d.Start(),
		DurationSeconds: 86_400,
	})
	req := httptest.NewRequest(http.MethodPost, "/request-stream", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK && rec.Code != 0 {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	names := parseEvents(t, rec.Body.Bytes())
	if len(names) < 3 {
		t.Fatalf("expected at least 3 events, got %v", names)
	}
	if names[0] != "metadata_calculated" {
		t.Fatalf("first event = %s, want metadata_calculated", names[0])
	}
	if names[len(names)-1] != "complete" {
		t.Fatalf("last event = %s, want complete", names[len(names)-1])
	}
	var sawChunk bool
	var completeCount int
	for _, n := range names {
		switch n {
		case "chunk_data":
			sawChunk = true
		case "complete":
			completeCount++
		}
	}
	if !sawChunk {
		t.Fatalf("expected a chunk_data event, got %v", names)
	}
	// Regression guard: with no missing ranges and a nil processor,
	// originEvents must stay nil-but-unranged rather than blocking serveDay
	// forever on a nil channel read.
	if completeCount != 1 {
		t.Fatalf("expected exactly one complete event, got %d", completeCount)
	}
}

// encodeTrace builds one DecodeTraces record: int64 start (BE), uint32
// count (BE), then count big-endian int32 samples.
func encodeTrace(start time.Time, samples []int32) []byte {
	buf := make([]byte, 12+len(samples)*4)
	binary.BigEndian.PutUint64(buf[0:8], uint64(start.UnixNano()))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(samples)))
	for i, s := range samples {
		binary.BigEndian.PutUint32(buf[12+i*4:12+i*4+4], uint32(s))
	}
	return buf
}

// TestServeHTTPCrossesBoundaryOfCachedAndMissingChunks exercises a warm
// request whose window straddles a cached hour and a not-yet-ingested one:
// the cached half streams back immediately as chunk_data, the missing half
// is forwarded to a real origin pipeline, and both halves land in one
// ordered SSE stream.
func TestServeHTTPCrossesBoundaryOfCachedAndMissingChunks(t *testing.T) {
	objects, err := objectstore.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	index := dayindex.NewStore(objects)
	sid := testSID()
	d, _ := station.ParseDay("2025-10-24")

	hour0Start := d.Start()
	hour0End := hour0Start.Add(time.Hour)
	path := station.ChunkBlobPath(sid, d, hour0Start, hour0End, ladder.Codec)
	if _, err := objects.Put(context.Background(), path, []byte{9, 9, 9, 9}, objectstore.PutOptions{ContentType: "application/octet-stream"}); err != nil {
		t.Fatalf("Put cached chunk: %v", err)
	}

	idx := station.NewDayIndex(sid, d, time.Now())
	idx.Chunks[station.Tier1Hour] = []station.Chunk{{
		Start: station.ClockString(hour0Start),
		End:   station.ClockString(hour0End),
		Stats: station.ChunkStats{Min: -1, Max: 1},
	}}
	data, err := json.Marshal(idx)
	if err != nil {
		t.Fatalf("marshal index: %v", err)
	}
	if _, err := objects.Put(context.Background(), station.IndexPath(sid, d), data, objectstore.PutOptions{
		ContentType: "application/json",
		IfMatch:     objectstore.IfMatchAbsent,
	}); err != nil {
		t.Fatalf("Put index: %v", err)
	}

	reqStart := hour0Start.Add(30 * time.Minute)
	reqEnd := reqStart.Add(time.Hour)
	n := int(reqEnd.Sub(hour0End).Seconds() * sid.SampleRate)
	samples := make([]int32, n)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(encodeTrace(hour0End, samples))
	}))
	defer srv.Close()

	archiveClient := archive.NewClient(archive.Config{DataselectURL: srv.URL, MaxFetchSeconds: 86_400})
	builder, err := ladder.NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	defer builder.Close()
	processor := origin.NewProcessor(archiveClient, builder, index, objects, nil, 4)

	h := NewHandler(index, objects, processor, 1, nil)
	reqBody, _ := json.Marshal(Request{
		SID:             sid,
		StartUTC:        reqStart,
		DurationSeconds: reqEnd.Sub(reqStart).Seconds(),
	})
	req := httptest.NewRequest(http.MethodPost, "/request-stream", bytes.NewReader(reqBody))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	names := parseEvents(t, rec.Body.Bytes())
	if len(names) < 4 {
		t.Fatalf("expected at least 4 events, got %v", names)
	}
	if names[0] != "metadata_calculated" {
		t.Fatalf("first event = %s, want metadata_calculated", names[0])
	}
	if names[len(names)-1] != "complete" {
		t.Fatalf("last event = %s, want complete", names[len(names)-1])
	}
	var sawChunkData, sawUploaded, sawRangeUpdate, completeCount int
	for _, n := range names {
		switch n {
		case "chunk_data":
			sawChunkData++
		case "chunk_uploaded":
			sawUploaded++
		case "range_update":
			sawRangeUpdate++
		case "complete":
			completeCount++
		}
	}
	if sawChunkData == 0 {
		t.Error("expected the cached hour to stream back as chunk_data")
	}
	if sawUploaded == 0 {
		t.Error("expected the missing hour to be ingested and emit chunk_uploaded")
	}
	if sawRangeUpdate == 0 {
		t.Error("expected a range_update once the missing range landed")
	}
	if completeCount != 1 {
		t.Fatalf("expected exactly one complete event (the origin's own must not be forwarded alongside the edge's), got %d", completeCount)
	}

	idx2, err := index.Load(context.Background(), sid, d)
	if err != nil {
		t.Fatalf("reload index: %v", err)
	}
	if len(idx2.Chunks[station.Tier10Min]) < 3 {
		t.Fatalf("expected the missing half hour's three 10min chunks to have been written, got %d 10min chunks", len(idx2.Chunks[station.Tier10Min]))
	}
}

// TestServeHTTPSecondRequestAfterDisconnectIsFullCacheHit mirrors a client
// that disconnects mid-stream: the origin pipeline it triggered keeps
// running via context.WithoutCancel, so a subsequent identical request
// finds everything cached and emits no chunk_uploaded at all.
func TestServeHTTPSecondRequestAfterDisconnectIsFullCacheHit(t *testing.T) {
	objects, err := objectstore.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSStore: %v", err)
	}
	index := dayindex.NewStore(objects)
	sid := testSID()
	d, _ := station.ParseDay("2025-10-24")

	n := int(600 * sid.SampleRate)
	samples := make([]int32, n)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write(encodeTrace(d.Start(), samples))
	}))
	defer srv.Close()

	archiveClient := archive.NewClient(archive.Config{DataselectURL: srv.URL, MaxFetchSeconds: 86_400})
	builder, err := ladder.NewBuilder()
	if err != nil {
		t.Fatalf("NewBuilder: %v", err)
	}
	defer builder.Close()
	processor := origin.NewProcessor(archiveClient, builder, index, objects, nil, 4)
	h := NewHandler(index, objects, processor, 1, nil)

	reqBody, _ := json.Marshal(Request{SID: sid, StartUTC: d.Start(), DurationSeconds: 600})

	// First request: cancel the client's context right after dispatch, as a
	// real disconnect would, but let the handler's own call complete since
	// ServeHTTP runs synchronously in this harness; the origin pipeline was
	// started with context.WithoutCancel and is unaffected either way.
	ctx, cancel := context.WithCancel(context.Background())
	req1 := httptest.NewRequest(http.MethodPost, "/request-stream", bytes.NewReader(reqBody)).WithContext(ctx)
	rec1 := httptest.NewRecorder()
	h.ServeHTTP(rec1, req1)
	cancel()

	names1 := parseEvents(t, rec1.Body.Bytes())
	var firstSawUploaded bool
	for _, n := range names1 {
		if n == "chunk_uploaded" {
			firstSawUploaded = true
		}
	}
	if !firstSawUploaded {
		t.Fatal("expected the first request to ingest and upload the missing chunk")
	}

	req2 := httptest.NewRequest(http.MethodPost, "/request-stream", bytes.NewReader(reqBody))
	rec2 := httptest.NewRecorder()
	h.ServeHTTP(rec2, req2)

	names2 := parseEvents(t, rec2.Body.Bytes())
	var secondSawUploaded, secondSawChunkData bool
	for _, n := range names2 {
		switch n {
		case "chunk_uploaded":
			secondSawUploaded = true
		case "chunk_data":
			secondSawChunkData = true
		}
	}
	if secondSawUploaded {
		t.Error("expected the second request to be a full cache hit with no chunk_uploaded")
	}
	if !secondSawChunkData {
		t.Error("expected the second request to stream the now-cached chunk as chunk_data")
	}
}

func TestMissingRangesCoversUncachedTail(t *testing.T) {
	d, _ := station.ParseDay("2025-10-24")
	win := station.DayWindow{Day: d, Start: d.Start(), End: d.End()}
	covered := station.Chunk{
		Start: station.ClockString(d.Start()),
		End:   station.ClockString(d.Start().Add(6 * time.Hour)),
	}
	got := missingRanges(win, []station.Chunk{covered})
	if len(got) != 1 {
		t.Fatalf("expected one missing range, got %d: %+v", len(got), got)
	}
	if !got[0].Start.Equal(d.Start().Add(6 * time.Hour)) {
		t.Fatalf("missing range start = %v, want %v", got[0].Start, d.Start().Add(6*time.Hour))
	}
	if !got[0].End.Equal(d.End()) {
		t.Fatalf("missing range end = %v, want %v", got[0].End, d.End())
	}
}

func TestMissingRangesEmptyWhenFullyCovered(t *testing.T) {
	d, _ := station.ParseDay("2025-10-24")
	win := station.DayWindow{Day: d, Start: d.Start(), End: d.End()}
	covered := station.Chunk{
		Start: station.ClockString(d.Start()),
		End:   station.ClockString(d.End()),
	}
	got := missingRanges(win, []station.Chunk{covered})
	if len(got) != 0 {
		t.Fatalf("expected no missing ranges, got %+v", got)
	}
}
