package waveform

import (
	"time"

	"golang.org/x/exp/slices"

	"github.com/Sonified/seisstream/internal/errs"
	"github.com/Sonified/seisstream/internal/station"
)

// Coverage reports the exact span a Normalize call produced.
type Coverage struct {
	Start   time.Time
	End     time.Time
	Samples int64
}

// Normalize merges overlapping traces, linearly interpolates gaps, and
// trims the result to a whole-second boundary. It implements the
// parse/dedupe → order/gap-detect → fill → trim → emit pipeline: traces
// are assumed already decoded (see DecodeTraces); this function never
// touches raw archive bytes. requestStart/requestEnd bound the window a
// caller actually asked for; when traces is empty the whole window is
// reported as a single synthetic gap rather than failing outright — only a
// zero-length window after trimming is NoUsableData.
func Normalize(requestStart, requestEnd time.Time, traces []Trace, sampleRate float64) ([]int32, []station.Gap, Coverage, error) {
	requestStart = requestStart.UTC()
	requestEnd = requestEnd.UTC()

	if len(traces) == 0 {
		return allGap(requestStart, requestEnd, sampleRate)
	}

	traces = dedupeOverlaps(traces, sampleRate)
	slices.SortFunc(traces, func(a, b Trace) int {
		switch {
		case a.Start.Before(b.Start):
			return -1
		case a.Start.After(b.Start):
			return 1
		default:
			return 0
		}
	})

	start := requestStart
	samples := make([]int32, 0, len(traces[0].Samples))
	var gaps []station.Gap
	cursor := start
	gapThreshold := 0.5 / sampleRate

	fillGap := func(gapStart, gapEnd time.Time, after int32) {
		gapSeconds := gapEnd.Sub(gapStart).Seconds()
		if gapSeconds <= gapThreshold {
			return
		}
		n := int64(roundHalfAwayFromZero(gapSeconds * sampleRate))
		if n <= 0 {
			return
		}
		var before int32
		if len(samples) > 0 {
			before = samples[len(samples)-1]
		}
		samples = append(samples, interpolate(before, after, n)...)
		gaps = append(gaps, station.Gap{
			StartISO:      gapStart.Format(time.RFC3339),
			EndISO:        gapEnd.Format(time.RFC3339),
			DurationSec:   gapSeconds,
			SamplesFilled: n,
		})
	}

	for _, tr := range traces {
		var after int32
		if len(tr.Samples) > 0 {
			after = tr.Samples[0]
		}
		fillGap(cursor, tr.Start, after)
		samples = append(samples, tr.Samples...)
		end := tr.End(sampleRate)
		if end.After(cursor) {
			cursor = end
		}
	}
	// If real trace data runs out before requestEnd (the live leading edge:
	// the archive simply has nothing yet for the remainder), there is no
	// post-gap sample to interpolate toward, so this isn't a gap at all —
	// cursor, not requestEnd, bounds what actually got covered. The caller
	// (ladder.Builder) sees the short Coverage and is the one responsible
	// for flagging the trailing chunk partial, not this function for
	// inventing samples to paper over it.
	trimmedEnd := start.Add(time.Duration(int64(cursor.Sub(start).Seconds())) * time.Second)
	finalSamples := int64(trimmedEnd.Sub(start).Seconds() * sampleRate)
	if finalSamples <= 0 {
		return nil, nil, Coverage{}, &errs.NoUsableData{Reason: "zero-length window after trimming to a second boundary"}
	}
	if int64(len(samples)) > finalSamples {
		samples = samples[:finalSamples]
	} else if int64(len(samples)) < finalSamples {
		pad := finalSamples - int64(len(samples))
		var last int32
		if len(samples) > 0 {
			last = samples[len(samples)-1]
		}
		for i := int64(0); i < pad; i++ {
			samples = append(samples, last)
		}
	}

	return samples, gaps, Coverage{Start: start, End: trimmedEnd, Samples: finalSamples}, nil
}

// allGap handles the all-gap edge case: the archive reported no traces at
// all for [requestStart, requestEnd). The whole window becomes one
// synthetic interpolated gap at zero amplitude.
func allGap(requestStart, requestEnd time.Time, sampleRate float64) ([]int32, []station.Gap, Coverage, error) {
	trimmedEnd := requestStart.Add(time.Duration(int64(requestEnd.Sub(requestStart).Seconds())) * time.Second)
	n := int64(trimmedEnd.Sub(requestStart).Seconds() * sampleRate)
	if n <= 0 {
		return nil, nil, Coverage{}, &errs.NoUsableData{Reason: "zero-length window after trimming to a second boundary"}
	}
	samples := make([]int32, n)
	gaps := []station.Gap{{
		StartISO:      requestStart.Format(time.RFC3339),
		EndISO:        trimmedEnd.Format(time.RFC3339),
		DurationSec:   trimmedEnd.Sub(requestStart).Seconds(),
		SamplesFilled: n,
	}}
	return samples, gaps, Coverage{Start: requestStart, End: trimmedEnd, Samples: n}, nil
}

// dedupeOverlaps drops traces that are fully contained in (or bit-identical
// duplicates of) an earlier trace; the archive occasionally resends the
// same segment. The earlier segment always wins.
func dedupeOverlaps(traces []Trace, sampleRate float64) []Trace {
	sorted := append([]Trace(nil), traces...)
	slices.SortFunc(sorted, func(a, b Trace) int {
		switch {
		case a.Start.Before(b.Start):
			return -1
		case a.Start.After(b.Start):
			return 1
		default:
			return 0
		}
	})

	var out []Trace
	for _, tr := range sorted {
		if len(out) == 0 {
			out = append(out, tr)
			continue
		}
		prev := out[len(out)-1]
		if !tr.Start.Before(prev.End(sampleRate)) {
			out = append(out, tr)
			continue
		}
		// Overlap: keep only the non-overlapping tail of tr, if any.
		overlapSamples := int64(prev.End(sampleRate).Sub(tr.Start).Seconds() * sampleRate)
		if overlapSamples >= int64(len(tr.Samples)) {
			continue // fully contained in prev; drop entirely
		}
		tail := tr.Samples[overlapSamples:]
		out = append(out, Trace{
			Start:   prev.End(sampleRate),
			Samples: tail,
		})
	}
	return out
}

func interpolate(before, after int32, n int64) []int32 {
	out := make([]int32, n)
	for i := int64(0); i < n; i++ {
		frac := float64(i+1) / float64(n+1)
		out[i] = before + int32(frac*float64(after-before))
	}
	return out
}

func roundHalfAwayFromZero(v float64) float64 {
	if v >= 0 {
		return float64(int64(v + 0.5))
	}
	return float64(int64(v - 0.5))
}
