// Package waveform implements the normalization algorithm that turns one or
// more raw archive byte streams into a single contiguous int32 array
// aligned to second boundaries, with an accompanying gap audit.
package waveform

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/Sonified/seisstream/internal/errs"
)

// Trace is one decoded contiguous run of samples from the archive, before
// gap detection and merging. The archive is treated as opaque upstream of
// this package; DecodeTraces only needs to produce traces the rest of the
// package can operate on, not reproduce the full SEED/miniSEED format.
type Trace struct {
	Start   time.Time
	Samples []int32
}

// End returns the instant just past the trace's last sample, assuming
// sampleRate samples per second.
func (t Trace) End(sampleRate float64) time.Time {
	return t.Start.Add(time.Duration(float64(len(t.Samples)) / sampleRate * float64(time.Second)))
}

// DecodeTraces parses a fetched archive byte stream into its constituent
// traces. The wire layout is a sequence of fixed-header records:
//
//	int64 startUnixNano (big-endian)
//	uint32 sampleCount  (big-endian)
//	int32 samples[sampleCount] (big-endian, one per sample)
//
// Records need not be contiguous or ordered; Normalize sorts and merges
// them. An empty input decodes to zero traces (an all-gap fetch).
func DecodeTraces(raw []byte) ([]Trace, error) {
	var traces []Trace
	off := 0
	for off < len(raw) {
		if off+12 > len(raw) {
			return nil, &errs.Permanent{Op: "waveform.decode", Err: fmt.Errorf("truncated record header at offset %d", off)}
		}
		startNano := int64(binary.BigEndian.Uint64(raw[off : off+8]))
		count := binary.BigEndian.Uint32(raw[off+8 : off+12])
		off += 12

		need := int(count) * 4
		if off+need > len(raw) {
			return nil, &errs.Permanent{Op: "waveform.decode", Err: fmt.Errorf("truncated sample payload at offset %d: need %d bytes, have %d", off, need, len(raw)-off)}
		}
		samples := make([]int32, count)
		for i := range samples {
			samples[i] = int32(binary.BigEndian.Uint32(raw[off : off+4]))
			off += 4
		}
		traces = append(traces, Trace{
			Start:   time.Unix(0, startNano).UTC(),
			Samples: samples,
		})
	}
	return traces, nil
}

// EncodeTrace serializes a single trace in DecodeTraces' wire format. Used
// by tests to build fixtures and by any future archive mock.
func EncodeTrace(t Trace) []byte {
	buf := make([]byte, 12+len(t.Samples)*4)
	binary.BigEndian.PutUint64(buf[0:8], uint64(t.Start.UnixNano()))
	binary.BigEndian.PutUint32(buf[8:12], uint32(len(t.Samples)))
	off := 12
	for _, s := range t.Samples {
		binary.BigEndian.PutUint32(buf[off:off+4], uint32(s))
		off += 4
	}
	return buf
}
