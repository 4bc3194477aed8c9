package archive

import (
	"bufio"
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Sonified/seisstream/internal/errs"
	"github.com/Sonified/seisstream/internal/station"
)

// FetchStationMeta retrieves latitude/longitude/elevation for sid from the
// FDSN station service in its pipe-delimited text format (level=channel),
// which is far cheaper to parse than StationXML and carries every field
// the normalizer needs.
func (c *Client) FetchStationMeta(ctx context.Context, sid station.SID) (StationMeta, error) {
	loc := sid.Location
	if loc == "" {
		loc = "--"
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.StationURL, nil)
	if err != nil {
		return StationMeta{}, &errs.Permanent{Op: "archive.station", Err: err}
	}
	q := req.URL.Query()
	q.Set("net", sid.Network)
	q.Set("sta", sid.Station)
	q.Set("loc", loc)
	q.Set("cha", sid.Channel)
	q.Set("level", "channel")
	q.Set("format", "text")
	req.URL.RawQuery = q.Encode()
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StationMeta{}, classifyNetErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return StationMeta{}, &errs.NotFound{Path: sid.String()}
	}
	if resp.StatusCode != http.StatusOK {
		return StationMeta{}, classifyStatus(resp.StatusCode, nil)
	}

	return parseStationText(resp.Body)
}

// parseStationText parses FDSN station/1/query's format=text,level=channel
// output:
//
//	#Network|Station|Location|Channel|Latitude|Longitude|Elevation|...
//	IU|ANMO|00|BHZ|34.9459|-106.4572|1820.0|...
func parseStationText(r io.Reader) (StationMeta, error) {
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") || line == "" {
			continue
		}
		fields := strings.Split(line, "|")
		if len(fields) < 7 {
			continue
		}
		lat, err1 := strconv.ParseFloat(fields[4], 64)
		lon, err2 := strconv.ParseFloat(fields[5], 64)
		elev, err3 := strconv.ParseFloat(fields[6], 64)
		if err1 != nil || err2 != nil || err3 != nil {
			continue
		}
		return StationMeta{
			Latitude:   &lat,
			Longitude:  &lon,
			ElevationM: &elev,
		}, nil
	}
	if err := scanner.Err(); err != nil {
		return StationMeta{}, &errs.Transient{Op: "archive.station.parse", Err: err}
	}
	return StationMeta{}, &errs.NotFound{Path: "station metadata row"}
}
