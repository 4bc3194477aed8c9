package archive

import (
	"bytes"
	"context"
	"errors"
	"time"

	"github.com/Sonified/seisstream/internal/errs"
	"github.com/Sonified/seisstream/internal/retry"
	"github.com/Sonified/seisstream/internal/station"
)

// Segment is one contiguous archive fetch result, in request order.
type Segment struct {
	Start, End time.Time
	Data       []byte
	NoData     bool // archive reported no samples for this span
}

// FetchRange fetches [startUTC, endUTC) for sid, retrying Transient errors
// with backoff and bisecting on Oversized until every sub-range either
// succeeds or reports NoData, which is accepted at any size and recorded as
// an all-gap segment rather than failing the whole range.
func (c *Client) FetchRange(ctx context.Context, sid station.SID, startUTC, endUTC time.Time) ([]Segment, error) {
	var out []Segment
	if err := c.fetchRange(ctx, sid, startUTC, endUTC, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) fetchRange(ctx context.Context, sid station.SID, start, end time.Time, out *[]Segment) error {
	var data []byte
	fetchErr := retry.Do(ctx, retry.DefaultPolicy, func(attempt int) error {
		var err error
		data, err = c.Fetch(ctx, sid, start, end)
		return err
	})

	var oversized *errs.Oversized
	if errors.As(fetchErr, &oversized) {
		mid := start.Add(end.Sub(start) / 2).Truncate(time.Second)
		if !mid.After(start) || !mid.Before(end) {
			// Can't bisect a sub-second span any further; surface the
			// failure rather than loop forever.
			return fetchErr
		}
		if err := c.fetchRange(ctx, sid, start, mid, out); err != nil {
			return err
		}
		return c.fetchRange(ctx, sid, mid, end, out)
	}

	var noData *errs.NoData
	if errors.As(fetchErr, &noData) {
		*out = append(*out, Segment{Start: start, End: end, NoData: true})
		return nil
	}

	if fetchErr != nil {
		return fetchErr
	}

	*out = append(*out, Segment{Start: start, End: end, Data: bytes.Clone(data)})
	return nil
}
