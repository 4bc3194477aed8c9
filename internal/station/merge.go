package station

import "golang.org/x/exp/slices"

// MergeChunks merges two per-tier chunk lists: union by start, new entries
// win over old entries on collision, result sorted by start with no
// duplicates.
func MergeChunks(existing, incoming []Chunk) []Chunk {
	byStart := make(map[string]Chunk, len(existing)+len(incoming))
	for _, c := range existing {
		byStart[c.Start] = c
	}
	for _, c := range incoming {
		byStart[c.Start] = c // new wins over old on collision
	}

	merged := make([]Chunk, 0, len(byStart))
	for _, c := range byStart {
		merged = append(merged, c)
	}
	slices.SortFunc(merged, func(a, b Chunk) int {
		switch {
		case a.Start < b.Start:
			return -1
		case a.Start > b.Start:
			return 1
		default:
			return 0
		}
	})
	return merged
}

// MergeGaps unions two gap lists by start time, preferring the incoming
// entry on exact collision, and returns them sorted by start. Used when the
// origin re-fetches a range that recovers previously-missing seconds.
func MergeGaps(existing, incoming []Gap) []Gap {
	byStart := make(map[string]Gap, len(existing)+len(incoming))
	for _, g := range existing {
		byStart[g.StartISO] = g
	}
	for _, g := range incoming {
		byStart[g.StartISO] = g
	}
	merged := make([]Gap, 0, len(byStart))
	for _, g := range byStart {
		merged = append(merged, g)
	}
	slices.SortFunc(merged, func(a, b Gap) int {
		switch {
		case a.StartISO < b.StartISO:
			return -1
		case a.StartISO > b.StartISO:
			return 1
		default:
			return 0
		}
	})
	return merged
}
