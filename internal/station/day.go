package station

import (
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/ncruces/go-strftime"
)

// Tier is one of the four chunk durations maintained in parallel.
type Tier string

const (
	Tier10Min Tier = "10min"
	Tier1Hour Tier = "1h"
	Tier6Hour Tier = "6h"
	Tier24Hour Tier = "24h"
)

// Seconds returns the nominal duration of the tier in seconds.
func (t Tier) Seconds() int64 {
	switch t {
	case Tier10Min:
		return 600
	case Tier1Hour:
		return 3600
	case Tier6Hour:
		return 21_600
	case Tier24Hour:
		return 86_400
	default:
		return 0
	}
}

// Tiers lists all four tiers, finest first. Chunk uploads proceed in this
// same fine-to-coarse order so the earliest-available blob enables the
// earliest playback; callers can range over it directly.
var Tiers = []Tier{Tier10Min, Tier1Hour, Tier6Hour, Tier24Hour}

// SelectTier picks the finest tier whose nominal chunk duration still
// covers the requested window, escalating to a coarser tier only once the
// window outgrows it.
func SelectTier(durationSeconds float64) Tier {
	switch {
	case durationSeconds <= 600:
		return Tier10Min
	case durationSeconds <= 3600:
		return Tier1Hour
	case durationSeconds <= 21_600:
		return Tier6Hour
	default:
		return Tier24Hour
	}
}

// Day is a canonical UTC calendar day, truncated to midnight.
type Day struct {
	t time.Time
}

// DayOf truncates an arbitrary instant to its UTC calendar day.
func DayOf(t time.Time) Day {
	u := t.UTC()
	return Day{time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)}
}

// ParseDay parses a "YYYY-MM-DD" string into a Day.
func ParseDay(s string) (Day, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Day{}, fmt.Errorf("parse day %q: %w", s, err)
	}
	return Day{t}, nil
}

// String renders the day as "YYYY-MM-DD".
func (d Day) String() string { return d.t.Format("2006-01-02") }

// Start returns the instant at 00:00:00 UTC on the day.
func (d Day) Start() time.Time { return d.t }

// End returns the instant at 00:00:00 UTC on the following day.
func (d Day) End() time.Time { return d.t.AddDate(0, 0, 1) }

// Next returns the following calendar day.
func (d Day) Next() Day { return Day{d.t.AddDate(0, 0, 1)} }

// Contains reports whether t falls within [Start, End).
func (d Day) Contains(t time.Time) bool {
	u := t.UTC()
	return !u.Before(d.Start()) && u.Before(d.End())
}

// SecondsSinceStart returns how many whole seconds t is after the day's
// start. Callers must ensure t is within the day.
func (d Day) SecondsSinceStart(t time.Time) int64 {
	return int64(t.UTC().Sub(d.Start()).Round(time.Second).Seconds())
}

// DayWindow decomposes an arbitrary [start, start+duration) window into
// per-day sub-windows, so a multi-day request can be served as parallel
// per-day sub-requests writing onto one shared stream.
type DayWindow struct {
	Day        Day
	Start, End time.Time
}

func Split(start time.Time, durationSeconds float64) []DayWindow {
	start = start.UTC()
	end := start.Add(time.Duration(durationSeconds * float64(time.Second)))

	var windows []DayWindow
	cur := start
	for cur.Before(end) {
		d := DayOf(cur)
		segEnd := d.End()
		if segEnd.After(end) {
			segEnd = end
		}
		windows = append(windows, DayWindow{Day: d, Start: cur, End: segEnd})
		cur = segEnd
	}
	return windows
}

// StoragePath builds the "data/YYYY/MM/NET/<grouping>/STA/LOC/CHA/" prefix
// under which a day's chunks and index live.
func StoragePath(sid SID, d Day) string {
	loc := sid.Location
	if loc == "" {
		loc = NoLocation
	}
	return path.Join(
		"data",
		fmt.Sprintf("%04d", d.t.Year()),
		fmt.Sprintf("%02d", int(d.t.Month())),
		sid.Network,
		Grouping(sid),
		sid.Station,
		loc,
		sid.Channel,
	)
}

// IndexPath builds the path of the day's JSON index document.
func IndexPath(sid SID, d Day) string {
	return path.Join(StoragePath(sid, d), d.String()+".json")
}

// GapsPath builds the path of the day's sibling detailed-gap-list document,
// written unconditionally alongside the index rather than lazily on demand.
func GapsPath(sid SID, d Day) string {
	return path.Join(StoragePath(sid, d), d.String()+"_gaps.json")
}

// ChunkBlobName builds the self-describing blob name:
// "NET_STA_LOC_CHA_SRHz_YYYY-MM-DD-hh-mm-ss_to_YYYY-MM-DD-hh-mm-ss.bin.<codec>".
func ChunkBlobName(sid SID, chunkStart, chunkEnd time.Time, codec string) string {
	loc := sid.Location
	if loc == "" {
		loc = NoLocation
	}
	parts := []string{
		sid.Network, sid.Station, loc, sid.Channel,
		sampleRateDecimal(sid.SampleRate) + "Hz",
		strftime.Format("%Y-%m-%d-%H-%M-%S", chunkStart.UTC()),
		"to",
		strftime.Format("%Y-%m-%d-%H-%M-%S", chunkEnd.UTC()),
	}
	return strings.Join(parts, "_") + ".bin." + codec
}

// ChunkBlobPath builds the full path of a chunk blob within its day.
func ChunkBlobPath(sid SID, d Day, chunkStart, chunkEnd time.Time, codec string) string {
	return path.Join(StoragePath(sid, d), ChunkBlobName(sid, chunkStart, chunkEnd, codec))
}

// ClockString renders an instant as "HH:MM:SS" relative to UTC, the wire
// format used for Chunk.Start/Chunk.End.
func ClockString(t time.Time) string {
	return t.UTC().Format("15:04:05")
}
