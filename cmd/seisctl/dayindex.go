package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Sonified/seisstream/internal/dayindex"
	"github.com/Sonified/seisstream/internal/errs"
	"github.com/Sonified/seisstream/internal/ladder"
	"github.com/Sonified/seisstream/internal/station"
)

func cmdDayIndex(args []string) {
	fs := flag.NewFlagSet("day-index", flag.ExitOnError)
	day := fs.String("day", "", "day to inspect (YYYY-MM-DD)")
	getStation := stationFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}

	sid, d := resolveSIDDay(getStation, *day)
	ctx := context.Background()
	store, _ := openObjectStore(ctx)
	index := dayindex.NewStore(store)

	idx, err := index.Load(ctx, sid, d)
	var notFound *errs.NotFound
	if errors.As(err, &notFound) {
		fmt.Printf("no index written yet for %s %s\n", sid.Station, d.String())
		return
	}
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	out, err := json.MarshalIndent(idx, "", "  ")
	if err != nil {
		log.Fatalf("marshal: %v", err)
	}
	os.Stdout.Write(out)
	fmt.Println()
}

func cmdVerify(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	day := fs.String("day", "", "day to verify (YYYY-MM-DD)")
	getStation := stationFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}

	sid, d := resolveSIDDay(getStation, *day)
	ctx := context.Background()
	store, _ := openObjectStore(ctx)
	index := dayindex.NewStore(store)

	idx, err := index.Load(ctx, sid, d)
	if err != nil {
		log.Fatalf("load: %v", err)
	}

	var missingBlobs, checked int
	for _, tier := range station.Tiers {
		for _, c := range idx.Chunks[tier] {
			checked++
			start, err := station.ParseClock(d, c.Start)
			if err != nil {
				log.Fatalf("parse start %q: %v", c.Start, err)
			}
			end, err := station.ParseClock(d, c.End)
			if err != nil {
				log.Fatalf("parse end %q: %v", c.End, err)
			}
			path := station.ChunkBlobPath(sid, d, start, end, ladder.Codec)
			if _, headErr := store.Head(ctx, path); headErr != nil {
				missingBlobs++
				fmt.Printf("MISSING blob for %s %s: %s\n", tier, c.Start, path)
			}
		}
	}

	fmt.Printf("checked %d chunks, %d missing blobs, complete_day=%v\n", checked, missingBlobs, idx.CompleteDay)
	if missingBlobs > 0 {
		os.Exit(1)
	}
}

// resolveSIDDay builds a station.SID from flags and parses the day flag,
// exiting the process on any missing or malformed input.
func resolveSIDDay(getStation func() (network, stationCode, location, channel string, sampleRate float64), dayStr string) (station.SID, station.Day) {
	network, stationCode, location, channel, sampleRate := getStation()
	if network == "" || stationCode == "" || channel == "" || sampleRate == 0 {
		log.Fatal("-network, -station, -channel, and -sample-rate are required")
	}
	sid := station.SID{Network: network, Station: stationCode, Location: location, Channel: channel, SampleRate: sampleRate}
	if err := sid.Validate(); err != nil {
		log.Fatalf("invalid station identity: %v", err)
	}
	if dayStr == "" {
		log.Fatal("-day is required")
	}
	d, err := station.ParseDay(dayStr)
	if err != nil {
		log.Fatalf("invalid day: %v", err)
	}
	return sid, d
}
