// Package origin implements the only writer of new chunks and day indexes
// for a given (SID, D): it runs the archive fetch, normalizer, and ladder
// builder over each missing range, uploads every chunk, rewrites the day
// index, and proxies progress as SSE events. Concurrent requests for the
// same day are coalesced onto one pipeline via Coalescer. Grounded on
// fetchStationStreaming's per-station worker dispatch and retry-with-backoff
// loop in cmd/cimis/fetch.go, generalized from "one station, one year" to
// "one missing range, one pipeline".
package origin

import (
	"context"
	"errors"
	"time"

	"github.com/Sonified/seisstream/internal/archive"
	"github.com/Sonified/seisstream/internal/dayindex"
	"github.com/Sonified/seisstream/internal/errs"
	"github.com/Sonified/seisstream/internal/ladder"
	"github.com/Sonified/seisstream/internal/objectstore"
	"github.com/Sonified/seisstream/internal/profile"
	"github.com/Sonified/seisstream/internal/retry"
	"github.com/Sonified/seisstream/internal/sse"
	"github.com/Sonified/seisstream/internal/station"
	"github.com/Sonified/seisstream/internal/taskpool"
	"github.com/Sonified/seisstream/internal/waveform"
)

// Range is a contiguous span the edge has classified as not yet cached.
type Range struct {
	Start, End time.Time
}

// Processor is the only writer of chunks and day indexes for any (SID, D).
type Processor struct {
	archive   *archive.Client
	builder   *ladder.Builder
	index     *dayindex.Store
	objects   objectstore.Store
	fetchSem  *taskpool.Semaphore
	coalescer *Coalescer
	ledger    *Ledger
	uploadTTL time.Duration
	monitor   *profile.PerformanceMonitor
}

// SetMonitor attaches a performance monitor: every processRange call records
// its wall time as an ingest time, and every built chunk records its
// compression ratio. Optional; nil (the default) disables both.
func (p *Processor) SetMonitor(m *profile.PerformanceMonitor) {
	p.monitor = m
}

// NewProcessor wires a Processor. maxConcurrentFetches bounds how many
// archive fetches run at once, respecting the upstream's rate limits.
// ledger may be nil (the pipeline works without an audit trail).
func NewProcessor(archiveClient *archive.Client, builder *ladder.Builder, index *dayindex.Store, objects objectstore.Store, ledger *Ledger, maxConcurrentFetches int) *Processor {
	return &Processor{
		archive:   archiveClient,
		builder:   builder,
		index:     index,
		objects:   objects,
		fetchSem:  taskpool.NewSemaphore(maxConcurrentFetches),
		coalescer: NewCoalescer(),
		ledger:    ledger,
		uploadTTL: time.Hour,
	}
}

// Submit starts (or joins) the pipeline for (sid, d) covering missing, a
// list of ranges the edge has classified as not yet cached. window is the
// full duration originally requested, used only to compute the definitive
// range_update once every missing range has landed. The returned channel
// receives every event the pipeline emits and is closed when it finishes;
// a second concurrent Submit for the same (sid, d) joins the first instead
// of starting a duplicate pipeline.
func (p *Processor) Submit(ctx context.Context, sid station.SID, d station.Day, missing []Range, window Range, sampleRate float64, now time.Time) <-chan sse.Event {
	b, isLeader := p.coalescer.join(sid, d)
	sub := b.subscribe()
	if isLeader {
		go p.run(ctx, sid, d, missing, window, sampleRate, now, b)
	}
	return sub
}

func (p *Processor) run(ctx context.Context, sid station.SID, d station.Day, missing []Range, window Range, sampleRate float64, now time.Time, b *broadcaster) {
	defer p.coalescer.release(sid, d)
	defer b.close()

	if p.ledger != nil {
		_ = p.ledger.Start(ctx, sid, d, now)
	}

	allChunks := make(map[station.Tier][]ladder.TierChunk, len(station.Tiers))
	var allGaps []station.Gap
	emitted := 0

	var pipelineErr error
	for _, rng := range missing {
		tiers, gaps, err := p.processRange(ctx, sid, rng, sampleRate, b, &emitted)
		if err != nil {
			pipelineErr = err
			break
		}
		for _, tier := range station.Tiers {
			allChunks[tier] = append(allChunks[tier], tiers[tier]...)
		}
		allGaps = append(allGaps, gaps...)
	}

	if pipelineErr != nil {
		if p.ledger != nil {
			_ = p.ledger.Finish(ctx, sid, d, StateError, pipelineErr, now)
		}
		b.publish(sse.OriginError{Reason: pipelineErr.Error()})
		b.publish(sse.Complete{Status: "aborted", EmittedChunks: emitted})
		return
	}

	if p.ledger != nil {
		_ = p.ledger.Transition(ctx, sid, d, StateIndexing)
	}
	idx, err := p.index.MergeAndWrite(ctx, sid, d, allChunks, now)
	if err != nil {
		if p.ledger != nil {
			_ = p.ledger.Finish(ctx, sid, d, StateError, err, now)
		}
		b.publish(sse.OriginError{Reason: err.Error()})
		b.publish(sse.Complete{Status: "aborted", EmittedChunks: emitted})
		return
	}
	if len(allGaps) > 0 {
		if _, err := p.index.MergeAndWriteGaps(ctx, sid, d, allGaps); err != nil {
			if p.ledger != nil {
				_ = p.ledger.Finish(ctx, sid, d, StateError, err, now)
			}
			b.publish(sse.OriginError{Reason: err.Error()})
			b.publish(sse.Complete{Status: "aborted", EmittedChunks: emitted})
			return
		}
	}

	tier := station.SelectTier(window.End.Sub(window.Start).Seconds())
	min, max, _ := station.OverlapMinMax(d, idx.Chunks[tier], window.Start, window.End)
	b.publish(sse.RangeUpdate{Min: min, Max: max})

	if p.ledger != nil {
		_ = p.ledger.Finish(ctx, sid, d, StateDone, nil, now)
	}
	b.publish(sse.Complete{Status: "ok", EmittedChunks: emitted})
}

// processRange fetches, normalizes, and builds chunks for one missing range,
// uploading each and emitting a chunk_uploaded event as it lands.
func (p *Processor) processRange(ctx context.Context, sid station.SID, rng Range, sampleRate float64, b *broadcaster, emitted *int) (map[station.Tier][]ladder.TierChunk, []station.Gap, error) {
	rangeStart := time.Now()
	if p.monitor != nil {
		defer func() { p.monitor.RecordIngestTime(time.Since(rangeStart)) }()
	}
	if p.ledger != nil {
		_ = p.ledger.Transition(ctx, sid, station.DayOf(rng.Start), StateFetching)
	}
	if err := p.fetchSem.Acquire(ctx); err != nil {
		return nil, nil, err
	}
	segments, fetchErr := p.archive.FetchRange(ctx, sid, rng.Start, rng.End)
	p.fetchSem.Release()
	if fetchErr != nil {
		return nil, nil, fetchErr
	}

	if p.ledger != nil {
		_ = p.ledger.Transition(ctx, sid, station.DayOf(rng.Start), StateNormalizing)
	}
	var traces []waveform.Trace
	for _, seg := range segments {
		if seg.NoData {
			continue // the request window still bounds Normalize; absent traces become interpolated gap
		}
		decoded, err := waveform.DecodeTraces(seg.Data)
		if err != nil {
			return nil, nil, err
		}
		traces = append(traces, decoded...)
	}

	samples, gaps, cov, err := waveform.Normalize(rng.Start, rng.End, traces, sampleRate)
	if err != nil {
		var noUsable *errs.NoUsableData
		if errors.As(err, &noUsable) {
			return map[station.Tier][]ladder.TierChunk{}, nil, nil
		}
		return nil, nil, err
	}

	if p.ledger != nil {
		_ = p.ledger.Transition(ctx, sid, station.DayOf(rng.Start), StateBuilding)
	}
	d := station.DayOf(rng.Start)
	tiers, err := p.builder.Build(d, cov, samples, gaps, sampleRate)
	if err != nil {
		return nil, nil, err
	}

	if p.ledger != nil {
		_ = p.ledger.Transition(ctx, sid, d, StateUploading)
	}
	for _, tier := range station.Tiers {
		for _, chunk := range tiers[tier] {
			if p.monitor != nil {
				rawBytes := chunk.Stats.Samples * 4
				p.monitor.RecordCompression(profile.CompressionStats{
					RawBytes:        rawBytes,
					CompressedBytes: int64(len(chunk.Payload)),
					Ratio:           ratio(rawBytes, len(chunk.Payload)),
				})
			}
			if err := p.uploadChunk(ctx, sid, d, tier, chunk, b, emitted); err != nil {
				return nil, nil, err
			}
		}
	}
	return tiers, gaps, nil
}

func ratio(rawBytes int64, compressedBytes int) float64 {
	if compressedBytes == 0 {
		return 0
	}
	return float64(rawBytes) / float64(compressedBytes)
}

// uploadChunk uploads one chunk's payload (retried indefinitely against
// Transient failures — abandoning an upload would leak a cached-but-
// unindexed blob), presigns a short-TTL GET URL, and emits chunk_uploaded.
func (p *Processor) uploadChunk(ctx context.Context, sid station.SID, d station.Day, tier station.Tier, chunk ladder.TierChunk, b *broadcaster, emitted *int) error {
	path := station.ChunkBlobPath(sid, d, chunk.Start, chunk.End, ladder.Codec)

	err := retry.Do(ctx, retry.UploadPolicy, func(attempt int) error {
		_, putErr := p.objects.Put(ctx, path, chunk.Payload, objectstore.PutOptions{
			ContentType: "application/octet-stream",
			Immutable:   true,
		})
		return putErr
	})
	if err != nil {
		return err
	}

	url, err := p.objects.PresignGet(ctx, path, p.uploadTTL)
	if err != nil {
		return err
	}

	b.publish(sse.ChunkUploaded{
		Tier:    tier,
		Start:   station.ClockString(chunk.Start),
		End:     station.ClockString(chunk.End),
		URL:     url,
		Cached:  false,
		Partial: chunk.Partial,
		Stats:   chunk.Stats,
	})
	*emitted++
	return nil
}
