// Package dayindex reads, merges, and durably rewrites the one JSON
// per-(SID,day) manifest that names every chunk, its stats, and whether the
// day is complete. The read-merge-write-retry cycle is guarded by the
// object store's If-Match compare-and-swap.
package dayindex

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Sonified/seisstream/internal/errs"
	"github.com/Sonified/seisstream/internal/ladder"
	"github.com/Sonified/seisstream/internal/objectstore"
	"github.com/Sonified/seisstream/internal/station"
)

// maxMergeRetries bounds how many times a conflicting concurrent writer can
// force a reload-and-retry before MergeAndWrite gives up.
const maxMergeRetries = 5

// Store reads and conditionally rewrites day index documents through an
// object store adapter. objects is typically an objectstore.CachedStore so
// repeated loads for a hot day don't round-trip to the backend.
type Store struct {
	objects objectstore.Store
}

// NewStore builds a Store over objects.
func NewStore(objects objectstore.Store) *Store {
	return &Store{objects: objects}
}

type loaded struct {
	idx  *station.DayIndex
	etag string
}

// Load returns the day's current index, or *errs.NotFound if the day has
// never been written.
func (s *Store) Load(ctx context.Context, sid station.SID, d station.Day) (*station.DayIndex, error) {
	l, err := s.load(ctx, sid, d)
	if err != nil {
		return nil, err
	}
	return l.idx, nil
}

func (s *Store) load(ctx context.Context, sid station.SID, d station.Day) (loaded, error) {
	path := station.IndexPath(sid, d)
	data, err := s.objects.Get(ctx, path)
	if err != nil {
		return loaded{}, err
	}
	meta, err := s.objects.Head(ctx, path)
	if err != nil {
		return loaded{}, err
	}
	var idx station.DayIndex
	if err := json.Unmarshal(data, &idx); err != nil {
		return loaded{}, &errs.Permanent{Op: "dayindex.load", Err: fmt.Errorf("unmarshal %s: %w", path, err)}
	}
	return loaded{idx: &idx, etag: meta.ETag}, nil
}

// MergeAndWrite unions newChunks into the day's existing index (creating one
// on first write), recomputes CompleteDay, and writes the result back with
// an If-Match compare-and-swap against the etag it was read at. On conflict
// it reloads and retries up to maxMergeRetries times — only one origin task
// is expected to be writing a given (SID, D) at once, so a conflict here
// means a rare concurrent retry of the same missing range, not a design
// assumption violation.
func (s *Store) MergeAndWrite(ctx context.Context, sid station.SID, d station.Day, newChunks map[station.Tier][]ladder.TierChunk, now time.Time) (*station.DayIndex, error) {
	var lastErr error
	for attempt := 0; attempt < maxMergeRetries; attempt++ {
		l, err := s.load(ctx, sid, d)
		var notFound *errs.NotFound
		var idx *station.DayIndex
		ifMatch := objectstore.IfMatchAbsent
		switch {
		case errors.As(err, &notFound):
			idx = station.NewDayIndex(sid, d, now)
		case err != nil:
			return nil, err
		default:
			idx = l.idx
			ifMatch = l.etag
		}

		mergeChunks(idx, newChunks)
		idx.UpdatedAt = now
		idx.RecomputeCompleteDay()

		data, err := json.Marshal(idx)
		if err != nil {
			return nil, &errs.Permanent{Op: "dayindex.write", Err: err}
		}

		_, err = s.objects.Put(ctx, station.IndexPath(sid, d), data, objectstore.PutOptions{
			ContentType: "application/json",
			IfMatch:     ifMatch,
		})
		if err == nil {
			return idx, nil
		}
		if !errors.Is(err, objectstore.ErrEtagMismatch) {
			return nil, err
		}
		lastErr = err
	}
	return nil, &errs.Transient{Op: "dayindex.merge", Err: fmt.Errorf("exceeded %d retries against a conflicting writer: %w", maxMergeRetries, lastErr)}
}

// MergeAndWriteGaps unions newGaps into the day's detailed gap-list sibling
// document (station.GapsPath) and overwrites it unconditionally: unlike the
// index itself this document isn't etag-guarded, since only one origin
// pipeline is ever writing a given (SID, D) at a time. It exists only as a
// size optimization splitting the full interpolated-gap detail out of the
// index, which keeps just the per-chunk gap summaries.
func (s *Store) MergeAndWriteGaps(ctx context.Context, sid station.SID, d station.Day, newGaps []station.Gap) ([]station.Gap, error) {
	path := station.GapsPath(sid, d)
	existing, err := s.loadGaps(ctx, path)
	if err != nil {
		return nil, err
	}
	merged := station.MergeGaps(existing, newGaps)

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, &errs.Permanent{Op: "dayindex.write_gaps", Err: err}
	}
	if _, err := s.objects.Put(ctx, path, data, objectstore.PutOptions{ContentType: "application/json"}); err != nil {
		return nil, err
	}
	return merged, nil
}

func (s *Store) loadGaps(ctx context.Context, path string) ([]station.Gap, error) {
	data, err := s.objects.Get(ctx, path)
	if err != nil {
		var notFound *errs.NotFound
		if errors.As(err, &notFound) {
			return nil, nil
		}
		return nil, err
	}
	var gaps []station.Gap
	if err := json.Unmarshal(data, &gaps); err != nil {
		return nil, &errs.Permanent{Op: "dayindex.load_gaps", Err: fmt.Errorf("unmarshal %s: %w", path, err)}
	}
	return gaps, nil
}

// mergeChunks unions each tier's chunk list by start, with newChunks winning
// any collision, then writes the result back into idx.
func mergeChunks(idx *station.DayIndex, newChunks map[station.Tier][]ladder.TierChunk) {
	for _, tier := range station.Tiers {
		incoming := make([]station.Chunk, 0, len(newChunks[tier]))
		for _, tc := range newChunks[tier] {
			incoming = append(incoming, station.Chunk{
				Start:   station.ClockString(tc.Start),
				End:     station.ClockString(tc.End),
				Stats:   tc.Stats,
				Partial: tc.Partial,
			})
		}
		idx.Chunks[tier] = station.MergeChunks(idx.Chunks[tier], incoming)
	}
}
