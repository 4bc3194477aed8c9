package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/Sonified/seisstream/internal/config"
	"github.com/Sonified/seisstream/internal/origin"
)

// cmdTasks prints the origin ledger's audit trail: every (station, day)
// pipeline run this process (or a prior one sharing the same ledger path)
// has started, and its last known state.
func cmdTasks(args []string) {
	fs := flag.NewFlagSet("tasks", flag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	ledger, err := origin.OpenLedger(cfg.LedgerPath)
	if err != nil {
		log.Fatalf("origin.OpenLedger: %v", err)
	}
	defer ledger.Close()

	recs, err := ledger.List(context.Background())
	if err != nil {
		log.Fatalf("List: %v", err)
	}
	if len(recs) == 0 {
		fmt.Println("no recorded tasks")
		return
	}
	for _, r := range recs {
		status := r.State
		if r.Error != "" {
			status = fmt.Sprintf("%s (%s)", r.State, r.Error)
		}
		fmt.Printf("%-20s %-12s %-12s task=%s started=%s\n", r.SID, r.Day, status, r.TaskID, r.StartedAt.Format("2006-01-02T15:04:05Z"))
	}
}
