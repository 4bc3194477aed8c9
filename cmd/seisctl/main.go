// Main entry point for the seisctl operator CLI.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Sonified/seisstream/internal/config"
	"github.com/Sonified/seisstream/internal/objectstore"
)

// Version is set during build.
var Version = "dev"

func printUsage() {
	fmt.Fprintln(os.Stderr, "seisctl: operator CLI for seisstreamd")
	fmt.Fprintln(os.Stderr, "usage: seisctl <command> [flags]")
	fmt.Fprintln(os.Stderr, "commands: version, day-index, verify, backfill, tasks, stats, profile")
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "version":
		fmt.Printf("seisctl %s\n", Version)

	case "day-index":
		cmdDayIndex(os.Args[2:])

	case "verify":
		cmdVerify(os.Args[2:])

	case "backfill":
		cmdBackfill(os.Args[2:])

	case "tasks":
		cmdTasks(os.Args[2:])

	case "stats":
		cmdStats(os.Args[2:])

	case "profile":
		cmdProfile(os.Args[2:])

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// openObjectStore builds the object store every subcommand reads through,
// from the same SEIS_* settings seisstreamd uses.
func openObjectStore(ctx context.Context) (objectstore.Store, config.Config) {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		ForcePathStyle:  cfg.S3Endpoint != "",
	})
	if err != nil {
		log.Fatalf("objectstore: %v", err)
	}
	return store, cfg
}

func stationFlags(fs *flag.FlagSet) func() (network, stationCode, location, channel string, sampleRate float64) {
	network := fs.String("network", "", "station network code")
	stationCode := fs.String("station", "", "station code")
	location := fs.String("location", "", "location code")
	channel := fs.String("channel", "", "channel code")
	sampleRate := fs.Float64("sample-rate", 0, "nominal sample rate in Hz")
	return func() (string, string, string, string, float64) {
		return *network, *stationCode, *location, *channel, *sampleRate
	}
}
