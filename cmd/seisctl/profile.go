package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/Sonified/seisstream/internal/profile"
)

// cmdProfile either starts a pprof HTTP server to attach to a running
// process's address space, or captures a fixed-duration CPU profile of
// this process for a quick self-check.
func cmdProfile(args []string) {
	fs := flag.NewFlagSet("profile", flag.ExitOnError)
	server := fs.String("server", "", "start a pprof server on this address (e.g. localhost:6060)")
	cpu := fs.String("cpu", "", "capture a CPU profile to this file")
	duration := fs.Duration("duration", 30*time.Second, "CPU profile capture duration")
	if err := fs.Parse(args); err != nil {
		log.Fatal(err)
	}

	if *server != "" {
		srv := profile.StartPProfServer(*server)
		defer srv.Close()
		fmt.Println("press Ctrl+C to stop")
		select {}
	}

	if *cpu != "" {
		p := profile.NewProfiler()
		if err := p.StartCPUProfile(*cpu); err != nil {
			log.Fatalf("StartCPUProfile: %v", err)
		}
		time.Sleep(*duration)
		if err := p.StopCPUProfile(); err != nil {
			log.Fatalf("StopCPUProfile: %v", err)
		}
		return
	}

	profile.PrintMemStats()
	os.Exit(0)
}
