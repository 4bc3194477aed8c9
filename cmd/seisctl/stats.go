package main

import (
	"flag"
	"log"
	"os"

	"github.com/Sonified/seisstream/internal/profile"
)

// cmdStats prints a runtime statistics snapshot of the seisctl process
// itself; it does not connect to a running seisstreamd.
func cmdStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}
	profile.PrintRuntimeStats(os.Stdout)
}
