package station

import (
	"fmt"
	"time"
)

// ParseClock resolves a Chunk's "HH:MM:SS" boundary into an absolute instant
// on day d.
func ParseClock(d Day, clock string) (time.Time, error) {
	t, err := time.Parse("15:04:05", clock)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse clock %q: %w", clock, err)
	}
	return d.Start().Add(
		time.Duration(t.Hour())*time.Hour +
			time.Duration(t.Minute())*time.Minute +
			time.Duration(t.Second())*time.Second,
	), nil
}

// OverlapMinMax scans one tier's chunk list and returns the min/max across
// every chunk overlapping [windowStart, windowEnd), plus whether any chunk
// overlapped at all. Shared by the edge's provisional-range calculation and
// the origin's definitive range_update so both compute "min/max over chunks
// overlapping the request" the same way.
func OverlapMinMax(d Day, chunks []Chunk, windowStart, windowEnd time.Time) (min, max int32, any bool) {
	for _, c := range chunks {
		cs, err := ParseClock(d, c.Start)
		if err != nil {
			continue
		}
		ce, err := ParseClock(d, c.End)
		if err != nil {
			continue
		}
		if !ce.After(windowStart) || !cs.Before(windowEnd) {
			continue
		}
		if !any {
			min, max = c.Stats.Min, c.Stats.Max
			any = true
			continue
		}
		if c.Stats.Min < min {
			min = c.Stats.Min
		}
		if c.Stats.Max > max {
			max = c.Stats.Max
		}
	}
	return min, max, any
}
