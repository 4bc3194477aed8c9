// Package ladder cuts a normalized contiguous array (internal/waveform's
// output) into the four parallel chunk tiers, computes per-chunk stats, and
// compresses each chunk's payload into a single zstd-compressed blob per
// tier interval, ".zst"-suffixed.
package ladder

import (
	"encoding/binary"
	"fmt"
	"time"

	"github.com/klauspost/compress/zstd"

	"github.com/Sonified/seisstream/internal/station"
	"github.com/Sonified/seisstream/internal/waveform"
)

// Codec is the blob suffix clients use to pick a decompressor.
const Codec = "zst"

// TierChunk is one built-and-compressed chunk, ready for the object store to upload.
type TierChunk struct {
	Tier       station.Tier
	Start, End time.Time
	Stats      station.ChunkStats
	Partial    bool
	Payload    []byte // compressed, little-endian int32 samples
}

// Builder compresses chunk payloads with a single reusable zstd encoder
// rather than constructing a fresh one per chunk.
type Builder struct {
	enc *zstd.Encoder
}

// NewBuilder constructs a Builder. The encoder runs at SpeedFastest: the
// teacher already depends on klauspost/compress and the chunk read path
// and the edge coordinator's cache-hit read path need sub-millisecond decompression.
func NewBuilder() (*Builder, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, fmt.Errorf("ladder: new zstd encoder: %w", err)
	}
	return &Builder{enc: enc}, nil
}

// Close releases the encoder's background goroutines.
func (b *Builder) Close() error {
	return b.enc.Close()
}

type gapSpan struct {
	start, end time.Time
}

// Build cuts samples (and cov/gaps, the waveform package's output) into
// every tier's chunk list for the UTC calendar day d. A chunk never
// straddles a day boundary; only the trailing 10min chunk of a
// live-leading-edge day may be partial.
func (b *Builder) Build(d station.Day, cov waveform.Coverage, samples []int32, gaps []station.Gap, sampleRate float64) (map[station.Tier][]TierChunk, error) {
	spans, err := parseGaps(gaps)
	if err != nil {
		return nil, err
	}

	out := make(map[station.Tier][]TierChunk, len(station.Tiers))
	for _, tier := range station.Tiers {
		chunks, err := b.buildTier(tier, d, cov, samples, spans, sampleRate)
		if err != nil {
			return nil, err
		}
		out[tier] = chunks
	}
	return out, nil
}

func (b *Builder) buildTier(tier station.Tier, d station.Day, cov waveform.Coverage, samples []int32, gaps []gapSpan, sampleRate float64) ([]TierChunk, error) {
	tierDur := time.Duration(tier.Seconds()) * time.Second
	dayEnd := d.End()

	var chunks []TierChunk
	for chunkStart := d.Start(); chunkStart.Before(dayEnd) && chunkStart.Before(cov.End); chunkStart = chunkStart.Add(tierDur) {
		chunkEnd := chunkStart.Add(tierDur)
		if chunkEnd.After(dayEnd) {
			break // a tier's grid never straddles the day boundary
		}
		if chunkStart.Before(cov.Start) {
			continue
		}

		partial := false
		effectiveEnd := chunkEnd
		if chunkEnd.After(cov.End) {
			if tier != station.Tier10Min {
				continue // only the finest tier emits a partial trailing chunk
			}
			effectiveEnd = cov.End
			partial = true
		}
		if !chunkStart.Before(effectiveEnd) {
			continue
		}

		chunk, err := b.buildChunk(tier, cov, samples, gaps, sampleRate, chunkStart, effectiveEnd, partial)
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}

func (b *Builder) buildChunk(tier station.Tier, cov waveform.Coverage, samples []int32, gaps []gapSpan, sampleRate float64, chunkStart, chunkEnd time.Time, partial bool) (TierChunk, error) {
	startIdx := int64(chunkStart.Sub(cov.Start).Seconds() * sampleRate)
	endIdx := int64(chunkEnd.Sub(cov.Start).Seconds() * sampleRate)
	if endIdx > int64(len(samples)) {
		endIdx = int64(len(samples))
	}
	if startIdx < 0 {
		startIdx = 0
	}
	slice := samples[startIdx:endIdx]

	stats := station.ChunkStats{Samples: int64(len(slice))}
	if len(slice) > 0 {
		stats.Min, stats.Max = slice[0], slice[0]
		for _, v := range slice[1:] {
			if v < stats.Min {
				stats.Min = v
			}
			if v > stats.Max {
				stats.Max = v
			}
		}
	}
	for _, g := range gaps {
		overlapStart, overlapEnd := clip(g.start, g.end, chunkStart, chunkEnd)
		if !overlapStart.Before(overlapEnd) {
			continue
		}
		overlapSeconds := overlapEnd.Sub(overlapStart).Seconds()
		stats.GapCount++
		stats.GapDurationSeconds += overlapSeconds
		stats.GapSamplesFilled += int64(overlapSeconds*sampleRate + 0.5)
	}

	raw := make([]byte, len(slice)*4)
	for i, v := range slice {
		binary.LittleEndian.PutUint32(raw[i*4:], uint32(v))
	}
	payload := b.enc.EncodeAll(raw, nil)

	return TierChunk{
		Tier:    tier,
		Start:   chunkStart,
		End:     chunkEnd,
		Stats:   stats,
		Partial: partial,
		Payload: payload,
	}, nil
}

// clip returns the intersection of [aStart, aEnd) and [bStart, bEnd).
func clip(aStart, aEnd, bStart, bEnd time.Time) (time.Time, time.Time) {
	start := aStart
	if bStart.After(start) {
		start = bStart
	}
	end := aEnd
	if bEnd.Before(end) {
		end = bEnd
	}
	return start, end
}

func parseGaps(gaps []station.Gap) ([]gapSpan, error) {
	spans := make([]gapSpan, len(gaps))
	for i, g := range gaps {
		start, err := time.Parse(time.RFC3339, g.StartISO)
		if err != nil {
			return nil, fmt.Errorf("ladder: parse gap start %q: %w", g.StartISO, err)
		}
		end, err := time.Parse(time.RFC3339, g.EndISO)
		if err != nil {
			return nil, fmt.Errorf("ladder: parse gap end %q: %w", g.EndISO, err)
		}
		spans[i] = gapSpan{start: start.UTC(), end: end.UTC()}
	}
	return spans, nil
}

// Decompress reverses Builder's compression for a single chunk payload. The
// edge coordinator forwards cached payloads still compressed, so within this
// module only tests call it.
func Decompress(payload []byte) ([]int32, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("ladder: new zstd decoder: %w", err)
	}
	defer dec.Close()

	raw, err := dec.DecodeAll(payload, nil)
	if err != nil {
		return nil, fmt.Errorf("ladder: decode: %w", err)
	}
	if len(raw)%4 != 0 {
		return nil, fmt.Errorf("ladder: decoded payload length %d not a multiple of 4", len(raw))
	}
	samples := make([]int32, len(raw)/4)
	for i := range samples {
		samples[i] = int32(binary.LittleEndian.Uint32(raw[i*4:]))
	}
	return samples, nil
}
