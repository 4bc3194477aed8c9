package station

import "time"

// Gap is a maximal contiguous span that was missing in the archive and has
// been linearly interpolated.
type Gap struct {
	StartISO       string  `json:"start_iso"`
	EndISO         string  `json:"end_iso"`
	DurationSec    float64 `json:"duration_seconds"`
	SamplesFilled  int64   `json:"samples_filled"`
}

// ChunkStats are the per-chunk aggregate statistics.
type ChunkStats struct {
	Min                int32 `json:"min"`
	Max                int32 `json:"max"`
	Samples            int64 `json:"samples"`
	GapCount           int   `json:"gap_count"`
	GapDurationSeconds float64 `json:"gap_duration_seconds"`
	GapSamplesFilled   int64 `json:"gap_samples_filled"`
}

// Chunk is one entry in a day index's per-tier chunk list.
type Chunk struct {
	Start   string     `json:"start"` // "HH:MM:SS"
	End     string     `json:"end"`   // "HH:MM:SS"
	Stats   ChunkStats `json:"stats"`
	Partial bool       `json:"partial,omitempty"`
}

// DayIndex is the one-per-(SID,day) JSON manifest.
type DayIndex struct {
	Date          string             `json:"date"`
	Network       string             `json:"network"`
	Station       string             `json:"station"`
	Location      string             `json:"location"`
	Channel       string             `json:"channel"`
	InstrumentType string            `json:"instrument_type,omitempty"`
	SampleRate    float64            `json:"sample_rate"`
	Latitude      *float64           `json:"latitude,omitempty"`
	Longitude     *float64           `json:"longitude,omitempty"`
	ElevationM    *float64           `json:"elevation_m,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
	UpdatedAt     time.Time          `json:"updated_at"`
	CompleteDay   bool               `json:"complete_day"`
	Chunks        map[Tier][]Chunk   `json:"chunks"`
}

// NewDayIndex creates an empty index for a (SID, day), with empty tier
// lists ready to be merged into.
func NewDayIndex(sid SID, d Day, now time.Time) *DayIndex {
	return &DayIndex{
		Date:       d.String(),
		Network:    sid.Network,
		Station:    sid.Station,
		Location:   sid.Location,
		Channel:    sid.Channel,
		SampleRate: sid.SampleRate,
		CreatedAt:  now,
		UpdatedAt:  now,
		Chunks: map[Tier][]Chunk{
			Tier10Min:  {},
			Tier1Hour:  {},
			Tier6Hour:  {},
			Tier24Hour: {},
		},
	}
}

// ExpectedCount returns the number of chunks a complete day must have for
// the given tier.
func (t Tier) ExpectedCount() int {
	switch t {
	case Tier10Min:
		return 144
	case Tier1Hour:
		return 24
	case Tier6Hour:
		return 4
	case Tier24Hour:
		return 1
	default:
		return 0
	}
}

// RecomputeCompleteDay sets CompleteDay: true iff the 24h tier is a single
// full chunk with no partial gap at the edge.
func (idx *DayIndex) RecomputeCompleteDay() {
	chunks := idx.Chunks[Tier24Hour]
	idx.CompleteDay = len(chunks) == 1 && !chunks[0].Partial
}
