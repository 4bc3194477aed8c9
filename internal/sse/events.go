// Package sse defines the event catalog and wire framing exchanged between
// the edge coordinator, the origin processor, and the client over a single
// server-sent-events stream, built directly on stdlib net/http (http.Flusher)
// and encoding/json.
package sse

import "github.com/Sonified/seisstream/internal/station"

// Event names, one per row of the catalog.
const (
	EventMetadataCalculated = "metadata_calculated"
	EventChunkData          = "chunk_data"
	EventChunkUploaded      = "chunk_uploaded"
	EventRangeUpdate        = "range_update"
	EventChunkError         = "chunk_error"
	EventOriginError        = "origin_error"
	EventComplete           = "complete"
)

// Event is implemented by every payload type this package emits.
type Event interface {
	Name() string
}

// ChunkRef names one chunk the edge has decided to serve, without its
// payload, so the client can preview what's coming in metadata_calculated.
type ChunkRef struct {
	Tier    station.Tier `json:"tier"`
	Start   string       `json:"start"`
	End     string       `json:"end"`
	Cached  bool         `json:"cached"`
	Partial bool         `json:"partial,omitempty"`
}

// MetadataCalculated is always the first event on a stream.
type MetadataCalculated struct {
	Min            int32        `json:"min"`
	Max            int32        `json:"max"`
	Partial        bool         `json:"partial"`
	CachedCount    int          `json:"cached_count"`
	MissingCount   int          `json:"missing_count"`
	SampleRate     float64      `json:"sample_rate"`
	Tier           station.Tier `json:"tier"`
	ChunkSelection []ChunkRef   `json:"chunk_selection"`
}

func (MetadataCalculated) Name() string { return EventMetadataCalculated }

// ChunkData describes an already-cached chunk whose compressed payload
// follows as a raw binary frame rather than being inlined as base64: the
// data line carries ByteLength, the length of the compressed payload, and
// the frame's blank-line terminator is followed by a 4-byte big-endian
// length prefix holding that same value and then that many raw bytes. See
// Writer.WriteChunkData, the only way to emit this event; the payload is
// never run through encoding/json.
type ChunkData struct {
	Tier       station.Tier `json:"tier"`
	Start      string       `json:"start"`
	End        string       `json:"end"`
	Cached     bool         `json:"cached"`
	Partial    bool         `json:"partial,omitempty"`
	ByteLength int          `json:"byte_length"`
}

func (ChunkData) Name() string { return EventChunkData }

// ChunkUploaded is proxied from the origin after a chunk blob lands.
type ChunkUploaded struct {
	Tier    station.Tier       `json:"tier"`
	Start   string             `json:"start"`
	End     string             `json:"end"`
	URL     string             `json:"url"`
	Cached  bool               `json:"cached"`
	Partial bool               `json:"partial,omitempty"`
	Stats   station.ChunkStats `json:"stats"`
}

func (ChunkUploaded) Name() string { return EventChunkUploaded }

// RangeUpdate carries the definitive min/max once the origin has ingested
// every missing chunk for the request.
type RangeUpdate struct {
	Min int32 `json:"min"`
	Max int32 `json:"max"`
}

func (RangeUpdate) Name() string { return EventRangeUpdate }

// ChunkError is non-fatal: the stream continues after it.
type ChunkError struct {
	Start  string `json:"start"`
	Reason string `json:"reason"`
}

func (ChunkError) Name() string { return EventChunkError }

// OriginError is fatal and is always followed by Complete{Status: "aborted"}.
type OriginError struct {
	Reason string `json:"reason"`
}

func (OriginError) Name() string { return EventOriginError }

// Complete is always the last event on a stream.
type Complete struct {
	Status        string `json:"status"` // "ok" or "aborted"
	EmittedChunks int    `json:"emitted_chunks"`
}

func (Complete) Name() string { return EventComplete }
