package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/Sonified/seisstream/internal/archive"
	"github.com/Sonified/seisstream/internal/dayindex"
	"github.com/Sonified/seisstream/internal/ladder"
	"github.com/Sonified/seisstream/internal/origin"
	"github.com/Sonified/seisstream/internal/sse"
	"github.com/Sonified/seisstream/internal/station"
)

// cmdBackfill drives the same origin.Processor the server uses, but from
// the command line: it asks for a whole day unconditionally, so an
// operator can force a re-ingest independent of any live request.
func cmdBackfill(args []string) {
	fs := flag.NewFlagSet("backfill", flag.ExitOnError)
	day := fs.String("day", "", "day to backfill (YYYY-MM-DD)")
	getStation := stationFlags(fs)
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}

	sid, d := resolveSIDDay(getStation, *day)
	ctx := context.Background()
	store, cfg := openObjectStore(ctx)
	index := dayindex.NewStore(store)

	archiveCfg := archive.DefaultConfig
	archiveCfg.DataselectURL = cfg.FDSNBaseURL
	archiveClient := archive.NewClient(archiveCfg)

	builder, err := ladder.NewBuilder()
	if err != nil {
		log.Fatalf("ladder.NewBuilder: %v", err)
	}
	defer builder.Close()

	ledger, err := origin.OpenLedger(cfg.LedgerPath)
	if err != nil {
		log.Fatalf("origin.OpenLedger: %v", err)
	}
	defer ledger.Close()

	processor := origin.NewProcessor(archiveClient, builder, index, store, ledger, cfg.MaxConcurrentFetches)

	window := origin.Range{Start: d.Start(), End: d.End()}
	events := processor.Submit(ctx, sid, d, []origin.Range{window}, window, sid.SampleRate, time.Now())

	for ev := range events {
		switch e := ev.(type) {
		case sse.ChunkUploaded:
			fmt.Printf("uploaded tier=%s start=%s end=%s\n", e.Tier, e.Start, e.End)
		case sse.RangeUpdate:
			fmt.Printf("range_update min=%d max=%d\n", e.Min, e.Max)
		case sse.OriginError:
			fmt.Printf("error: %s\n", e.Reason)
		case sse.Complete:
			fmt.Printf("complete status=%s emitted=%d\n", e.Status, e.EmittedChunks)
		}
	}
}
