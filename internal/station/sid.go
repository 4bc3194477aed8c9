// Package station defines the station identifier tuple (SID), canonical
// UTC-day helpers, and the object-store path/blob-name builders built
// around FDSN station identity rather than a numeric station ID.
package station

import (
	"fmt"
	"strconv"
	"strings"
)

// NoLocation is the FDSN sentinel for "no location code."
const NoLocation = "--"

// SID identifies a single channel of a single station: network, station,
// location, channel, plus its fixed sample rate. SID+SampleRate uniquely
// determines the storage path for its data.
type SID struct {
	Network    string
	Station    string
	Location   string
	Channel    string
	SampleRate float64
}

// String renders the SID in FDSN dotted form, e.g. "HV.NPOC.01.HHZ".
func (s SID) String() string {
	loc := s.Location
	if loc == "" {
		loc = NoLocation
	}
	return fmt.Sprintf("%s.%s.%s.%s", s.Network, s.Station, loc, s.Channel)
}

// Validate reports whether the SID has all the fields required to compute a
// storage path.
func (s SID) Validate() error {
	if s.Network == "" || s.Station == "" || s.Channel == "" {
		return fmt.Errorf("sid %+v: network, station, and channel are required", s)
	}
	if s.SampleRate <= 0 {
		return fmt.Errorf("sid %s: sample_rate must be positive, got %v", s, s.SampleRate)
	}
	return nil
}

// sampleRateDecimal renders the sample rate the way blob names expect:
// an integer when exact, otherwise a trimmed decimal (e.g. "100" or
// "40.96").
func sampleRateDecimal(rate float64) string {
	s := strconv.FormatFloat(rate, 'f', -1, 64)
	return s
}

// Grouping derives an opaque application-level storage tag for a SID. This
// default groups by network, a reasonable choice for a single-archive
// deployment; callers with a richer mapping (e.g. network->volcano) can
// substitute their own.
func Grouping(s SID) string {
	return strings.ToLower(s.Network)
}
