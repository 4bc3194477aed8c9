// Package archive fetches raw seismic waveform byte streams from the
// upstream FDSN dataselect service. The transport tuning and retry shape
// are carried over from a CIMIS ingest client's OptimizedHTTPTransport and
// FetchDailyDataStreaming: connection pooling, a context-scoped request per
// call, and a descriptive User-Agent.
package archive

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/Sonified/seisstream/internal/errs"
	"github.com/Sonified/seisstream/internal/station"
)

const (
	userAgent      = "seisstreamd/1.0 (+https://github.com/Sonified/seisstream)"
	requestTimeout = 45 * time.Second
)

// optimizedTransport returns a tuned http.Transport for repeated fetches
// against a single archive host.
func optimizedTransport() *http.Transport {
	return &http.Transport{
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,

		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		ForceAttemptHTTP2:     true,

		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
	}
}

// Config points a Client at a specific FDSN dataselect endpoint.
type Config struct {
	DataselectURL   string // e.g. "https://service.iris.edu/fdsnws/dataselect/1/query"
	StationURL      string // e.g. "https://service.iris.edu/fdsnws/station/1/query"
	MaxFetchSeconds float64
}

// DefaultConfig points at IRIS's public FDSN web services with a one-day
// max fetch span before the client bisects a request.
var DefaultConfig = Config{
	DataselectURL:   "https://service.iris.edu/fdsnws/dataselect/1/query",
	StationURL:      "https://service.iris.edu/fdsnws/station/1/query",
	MaxFetchSeconds: 86_400,
}

// Client fetches archive byte streams over FDSN dataselect.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewClient builds a Client against cfg.
func NewClient(cfg Config) *Client {
	return &Client{
		cfg: cfg,
		httpClient: &http.Client{
			Transport: optimizedTransport(),
			Timeout:   requestTimeout,
		},
	}
}

// StationMeta carries the subset of FDSN station metadata the normalizer
// can discover incidentally from a station/1/query response.
type StationMeta struct {
	Latitude, Longitude, ElevationM *float64
	SampleRate                      float64
}

// Fetch retrieves the archive byte stream covering [startUTC, endUTC) for
// sid. Both bounds must be whole seconds with start before end, and the
// span must not exceed cfg.MaxFetchSeconds — callers that need a longer
// span must bisect themselves or let Oversized trigger a recursive bisect
// at the call site.
func (c *Client) Fetch(ctx context.Context, sid station.SID, startUTC, endUTC time.Time) ([]byte, error) {
	start := startUTC.UTC().Truncate(time.Second)
	end := endUTC.UTC().Truncate(time.Second)
	if !start.Before(end) {
		return nil, &errs.ValidationError{Field: "start_utc/end_utc", Reason: "start must precede end"}
	}
	span := end.Sub(start).Seconds()
	if span > c.cfg.MaxFetchSeconds {
		return nil, &errs.Oversized{Seconds: span}
	}

	loc := sid.Location
	if loc == "" {
		loc = "--"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.DataselectURL, nil)
	if err != nil {
		return nil, &errs.Permanent{Op: "archive.fetch", Err: err}
	}
	q := req.URL.Query()
	q.Set("net", sid.Network)
	q.Set("sta", sid.Station)
	q.Set("loc", loc)
	q.Set("cha", sid.Channel)
	q.Set("start", start.Format(time.RFC3339))
	q.Set("end", end.Format(time.RFC3339))
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept-Encoding", "gzip")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, classifyNetErr(err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &errs.Transient{Op: "archive.fetch.read", Err: err}
	}

	return body, classifyStatus(resp.StatusCode, body)
}

func classifyStatus(status int, body []byte) error {
	switch {
	case status == http.StatusOK:
		if len(body) == 0 {
			return &errs.NoData{Reason: "archive returned 200 with an empty body"}
		}
		return nil
	case status == http.StatusNoContent:
		return &errs.NoData{Reason: "archive reported no data for the requested range"}
	case status == http.StatusTooManyRequests:
		return &errs.Transient{Op: "archive.fetch", Err: fmt.Errorf("throttled: %s", string(body))}
	case status == http.StatusRequestEntityTooLarge:
		return &errs.Oversized{Seconds: 0}
	case status >= 500:
		return &errs.Transient{Op: "archive.fetch", Err: fmt.Errorf("status %d: %s", status, string(body))}
	case status >= 400:
		return &errs.Permanent{Op: "archive.fetch", Err: fmt.Errorf("status %d: %s", status, string(body))}
	default:
		return &errs.Transient{Op: "archive.fetch", Err: fmt.Errorf("unexpected status %d", status)}
	}
}

func classifyNetErr(err error) error {
	var netErr net.Error
	if ok := asNetErr(err, &netErr); ok && netErr.Timeout() {
		return &errs.Transient{Op: "archive.fetch", Err: err}
	}
	return &errs.Transient{Op: "archive.fetch", Err: err}
}

func asNetErr(err error, target *net.Error) bool {
	for err != nil {
		if ne, ok := err.(net.Error); ok {
			*target = ne
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
