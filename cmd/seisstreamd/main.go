// Main entry point for the seisstreamd server.
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/Sonified/seisstream/internal/archive"
	"github.com/Sonified/seisstream/internal/config"
	"github.com/Sonified/seisstream/internal/dayindex"
	"github.com/Sonified/seisstream/internal/edge"
	"github.com/Sonified/seisstream/internal/ladder"
	"github.com/Sonified/seisstream/internal/logging"
	"github.com/Sonified/seisstream/internal/objectstore"
	"github.com/Sonified/seisstream/internal/origin"
)

// Version is set during build.
var Version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger := logging.New(cfg.LogLevel)
	logger.Info("starting seisstreamd", "version", Version, "listen_addr", cfg.ListenAddr)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
		Bucket:          cfg.S3Bucket,
		Region:          cfg.S3Region,
		Endpoint:        cfg.S3Endpoint,
		AccessKeyID:     cfg.AWSAccessKeyID,
		SecretAccessKey: cfg.AWSSecretAccessKey,
		ForcePathStyle:  cfg.S3Endpoint != "",
	})
	if err != nil {
		logger.Error("failed to open object store", "error", err)
		log.Fatal(err)
	}

	objects, err := objectstore.NewCachedStore(backend, 256)
	if err != nil {
		logger.Error("failed to wrap object store with cache", "error", err)
		log.Fatal(err)
	}

	index := dayindex.NewStore(objects)

	archiveCfg := archive.DefaultConfig
	archiveCfg.DataselectURL = cfg.FDSNBaseURL
	archiveClient := archive.NewClient(archiveCfg)

	builder, err := ladder.NewBuilder()
	if err != nil {
		logger.Error("failed to build chunk ladder", "error", err)
		log.Fatal(err)
	}
	defer builder.Close()

	ledger, err := origin.OpenLedger(cfg.LedgerPath)
	if err != nil {
		logger.Error("failed to open origin ledger", "error", err)
		log.Fatal(err)
	}
	defer ledger.Close()

	processor := origin.NewProcessor(archiveClient, builder, index, objects, ledger, cfg.MaxConcurrentFetches)
	handler := edge.NewHandler(index, objects, processor, cfg.MaxConcurrentDays, logger)

	mux := http.NewServeMux()
	mux.Handle("/request-stream", handler)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{
		Addr:        cfg.ListenAddr,
		Handler:     mux,
		ReadTimeout: 10 * time.Second,
		// No WriteTimeout: SSE streams can legitimately run for as long as a
		// multi-day backfill takes to process.
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		logger.Info("shutting down")
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("graceful shutdown failed", "error", err)
		}
	}()

	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server exited", "error", err)
		log.Fatal(err)
	}
}
