// Package edge implements the request-facing side of the pipeline: it
// validates a streaming request, decides which chunks are already cached,
// fans cached blobs out to the client immediately, and forwards whatever is
// missing to the origin processor, proxying its events back unchanged.
package edge

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Sonified/seisstream/internal/dayindex"
	"github.com/Sonified/seisstream/internal/errs"
	"github.com/Sonified/seisstream/internal/ladder"
	"github.com/Sonified/seisstream/internal/objectstore"
	"github.com/Sonified/seisstream/internal/origin"
	"github.com/Sonified/seisstream/internal/sse"
	"github.com/Sonified/seisstream/internal/station"
	"github.com/Sonified/seisstream/internal/taskpool"
)

// maxDurationSeconds is the policy ceiling on a single request's span: a
// generous multi-week window, well past the practical per-request size any
// client needs, without letting a single request decompose into an
// unbounded number of per-day sub-requests.
const maxDurationSeconds = 30 * 86_400

// Options carries the request's optional processing hints.
type Options struct {
	EnableHighpassHz float64 // 0 disables
	Normalize        bool
	CodecHint        string
}

// Request is the decoded body of POST /request-stream.
type Request struct {
	SID             station.SID `json:"sid"`
	StartUTC        time.Time   `json:"start_utc"`
	DurationSeconds float64     `json:"duration_seconds"`
	Options         Options     `json:"options"`
}

// Handler serves POST /request-stream: an SSE stream reporting cached
// chunks immediately and proxying the origin's progress for whatever is
// missing.
type Handler struct {
	index      *dayindex.Store
	objects    objectstore.Store
	processor  *origin.Processor
	dayWorkers int
	log        *slog.Logger
}

// NewHandler wires a Handler. maxConcurrentDays bounds how many per-day
// sub-requests a single multi-day request runs at once.
func NewHandler(index *dayindex.Store, objects objectstore.Store, processor *origin.Processor, maxConcurrentDays int, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	if maxConcurrentDays <= 0 {
		maxConcurrentDays = 1
	}
	return &Handler{index: index, objects: objects, processor: processor, dayWorkers: maxConcurrentDays, log: log}
}

// ServeHTTP decodes the request body, validates it, and streams SSE events
// until every day's cached fan-out and origin forwarding has completed.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("decode request: %v", err), http.StatusBadRequest)
		return
	}
	if err := validate(req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	writer := sse.NewWriter(w)

	windows := station.Split(req.StartUTC, req.DurationSeconds)
	tasks := make([]func(ctx context.Context) error, len(windows))
	outcomes := make([]dayOutcome, len(windows))
	for i, win := range windows {
		i, win := i, win
		tasks[i] = func(ctx context.Context) error {
			outcome, err := h.serveDay(ctx, req.SID, win, req.Options, writer)
			outcomes[i] = outcome
			return err
		}
	}

	// The client's disconnect cancels this request's ctx; the origin
	// pipelines h.serveDay started are coalesced independently and keep
	// running to completion so the cache still gets populated.
	results := taskpool.Run(r.Context(), h.dayWorkers, tasks)

	// complete is the single authoritative completion event for the whole
	// stream (spec: exactly one complete, always last): serveDay never
	// writes its own, it only reports back what its day's pipeline did, and
	// those per-day outcomes are merged here.
	status := "ok"
	emitted := 0
	for i, err := range results {
		if err != nil && r.Context().Err() == nil {
			h.log.Error("day sub-request failed", "day", windows[i].Day.String(), "error", err)
		}
		if outcomes[i].status == "aborted" {
			status = "aborted"
		}
		emitted += outcomes[i].emitted
	}

	_ = writer.Write(sse.Complete{Status: status, EmittedChunks: emitted})
}

// dayOutcome summarizes one day window's contribution to the stream's final
// complete event: how many chunks it delivered (cached + newly uploaded) and
// whether its origin pipeline (if any) finished ok or aborted.
type dayOutcome struct {
	status  string
	emitted int
}

func validate(req Request) error {
	if err := req.SID.Validate(); err != nil {
		return err
	}
	if req.DurationSeconds <= 0 {
		return &errs.ValidationError{Field: "duration_seconds", Reason: "must be positive"}
	}
	if req.DurationSeconds > maxDurationSeconds {
		return &errs.ValidationError{Field: "duration_seconds", Reason: fmt.Sprintf("exceeds policy ceiling of %d seconds", maxDurationSeconds)}
	}
	return nil
}

// serveDay implements the ten-step lifecycle for one day window: load the
// index, select a tier, classify cached vs missing, emit metadata, fan
// cached chunks out while forwarding the missing ranges to the origin, and
// proxy the origin's events back until it's done. It never writes its own
// complete event: that's ServeHTTP's job, once every day window (there may
// be several, for a multi-day request) has reported its outcome here.
func (h *Handler) serveDay(ctx context.Context, sid station.SID, win station.DayWindow, opts Options, w *sse.Writer) (dayOutcome, error) {
	idx, err := h.index.Load(ctx, sid, win.Day)
	var notFound *errs.NotFound
	switch {
	case stderrors.As(err, &notFound):
		idx = station.NewDayIndex(sid, win.Day, time.Now())
	case err != nil:
		return dayOutcome{}, err
	}

	tier := station.SelectTier(win.End.Sub(win.Start).Seconds())
	chunks := overlapping(win.Day, idx.Chunks[tier], win.Start, win.End)

	min, max, anyOverlap := station.OverlapMinMax(win.Day, chunks, win.Start, win.End)
	partial := !anyOverlap
	missing := missingRanges(win, chunks)

	selection := make([]sse.ChunkRef, 0, len(chunks))
	for _, c := range chunks {
		selection = append(selection, sse.ChunkRef{Tier: tier, Start: c.Start, End: c.End, Cached: true, Partial: c.Partial})
	}

	if err := w.Write(sse.MetadataCalculated{
		Min:            min,
		Max:            max,
		Partial:        partial,
		CachedCount:    len(chunks),
		MissingCount:   len(missing),
		SampleRate:     sid.SampleRate,
		Tier:           tier,
		ChunkSelection: selection,
	}); err != nil {
		return dayOutcome{}, err
	}

	var originEvents <-chan sse.Event
	if len(missing) > 0 && h.processor != nil {
		window := origin.Range{Start: win.Start, End: win.End}
		originEvents = h.processor.Submit(context.WithoutCancel(ctx), sid, win.Day, missing, window, sid.SampleRate, time.Now())
	}

	cachedEmitted, err := h.emitCachedChunks(ctx, sid, win.Day, tier, chunks, w)
	if err != nil {
		return dayOutcome{}, err
	}

	outcome := dayOutcome{status: "ok", emitted: cachedEmitted}
	if originEvents != nil {
		for ev := range originEvents {
			// The origin's own Complete is consumed here, not forwarded:
			// ServeHTTP's merged Complete is the only one the client sees.
			if c, ok := ev.(sse.Complete); ok {
				outcome.status = c.Status
				outcome.emitted += c.EmittedChunks
				continue
			}
			if err := w.Write(ev); err != nil {
				return outcome, err
			}
		}
	}
	return outcome, nil
}

// emitCachedChunks reads each cached chunk's compressed blob and emits it
// in chronological order (the slice is already sorted by start), returning
// how many chunk_data events it successfully wrote.
func (h *Handler) emitCachedChunks(ctx context.Context, sid station.SID, d station.Day, tier station.Tier, chunks []station.Chunk, w *sse.Writer) (int, error) {
	emitted := 0
	for _, c := range chunks {
		start, err := station.ParseClock(d, c.Start)
		if err != nil {
			continue
		}
		end, err := station.ParseClock(d, c.End)
		if err != nil {
			continue
		}
		path := station.ChunkBlobPath(sid, d, start, end, ladder.Codec)
		data, getErr := h.objects.Get(ctx, path)
		if getErr != nil {
			_ = w.Write(sse.ChunkError{Start: c.Start, Reason: getErr.Error()})
			continue
		}
		if err := w.WriteChunkData(sse.ChunkData{
			Tier:    tier,
			Start:   c.Start,
			End:     c.End,
			Cached:  true,
			Partial: c.Partial,
		}, data); err != nil {
			return emitted, err
		}
		emitted++
	}
	return emitted, nil
}

// overlapping filters a tier's chunk list to those overlapping [start, end).
func overlapping(d station.Day, chunks []station.Chunk, start, end time.Time) []station.Chunk {
	var out []station.Chunk
	for _, c := range chunks {
		cs, err := station.ParseClock(d, c.Start)
		if err != nil {
			continue
		}
		ce, err := station.ParseClock(d, c.End)
		if err != nil {
			continue
		}
		if ce.After(start) && cs.Before(end) {
			out = append(out, c)
		}
	}
	return out
}

// missingRanges reports the sub-intervals of [win.Start, win.End) not
// covered by any chunk in chunks, assuming chunks is sorted by start.
func missingRanges(win station.DayWindow, chunks []station.Chunk) []origin.Range {
	var out []origin.Range
	cursor := win.Start
	for _, c := range chunks {
		cs, err := station.ParseClock(win.Day, c.Start)
		if err != nil {
			continue
		}
		ce, err := station.ParseClock(win.Day, c.End)
		if err != nil {
			continue
		}
		if cs.After(cursor) {
			out = append(out, origin.Range{Start: cursor, End: cs})
		}
		if ce.After(cursor) {
			cursor = ce
		}
	}
	if cursor.Before(win.End) {
		out = append(out, origin.Range{Start: cursor, End: win.End})
	}
	return out
}
