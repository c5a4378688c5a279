package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/maxpert/commitlog-cdc/admin"
	"github.com/maxpert/commitlog-cdc/cfg"
	"github.com/maxpert/commitlog-cdc/commitlog"
	"github.com/maxpert/commitlog-cdc/offset"
	"github.com/maxpert/commitlog-cdc/processor"
	"github.com/maxpert/commitlog-cdc/publisher"
	_ "github.com/maxpert/commitlog-cdc/publisher/sink"
	_ "github.com/maxpert/commitlog-cdc/publisher/transformer"
	"github.com/maxpert/commitlog-cdc/schema"
	"github.com/maxpert/commitlog-cdc/telemetry"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	queueSampleInterval = 5 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	flag.Parse()

	// Load configuration
	err := cfg.Load(*cfg.ConfigPathFlag)
	if err != nil {
		panic(err)
	}

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("Invalid configuration: %v", err))
	}

	// Setup logging
	var writer io.Writer = zerolog.NewConsoleWriter()
	if cfg.Config.Logging.Format == "json" {
		writer = os.Stdout
	}
	gLog := zerolog.New(writer).
		With().
		Timestamp().
		Uint64("node_id", cfg.Config.NodeID).
		Logger()

	if cfg.Config.Logging.Verbose {
		log.Logger = gLog.Level(zerolog.DebugLevel)
	} else {
		log.Logger = gLog.Level(zerolog.InfoLevel)
	}

	log.Info().Str("cluster", cfg.Config.ClusterName).Msg("Commit log CDC agent starting")
	log.Debug().Msg("Initializing telemetry")
	telemetry.InitializeTelemetry()
	telemetry.InitMetrics()

	if err := run(); err != nil {
		log.Fatal().Err(err).Msg("Agent stopped with error")
	}
	log.Info().Msg("Agent stopped")
}

func run() error {
	store, err := offset.Open(cfg.Config.Offsets.Dir)
	if err != nil {
		return err
	}
	defer store.Close()

	static, err := schema.FromConfig(cfg.Config.Schema.Tables)
	if err != nil {
		return fmt.Errorf("invalid schema configuration: %w", err)
	}
	provider, err := schema.NewCached(static, cfg.Config.Schema.CacheSize)
	if err != nil {
		return err
	}

	policy, err := commitlog.ParsePolicy(cfg.Config.CommitLog.Policy)
	if err != nil {
		return err
	}
	finalizer, err := commitlog.NewFinalizer(commitlog.FinalizerConfig{
		Policy:        policy,
		ArchiveDir:    cfg.Config.CommitLog.ArchiveDir,
		ErrorDir:      cfg.Config.CommitLog.ErrorDir,
		ArchiveRetain: cfg.Config.CommitLog.ArchiveRetain,
	})
	if err != nil {
		return err
	}

	// Segments committed before a crash but never finalized
	recoverSegments(cfg.Config.CommitLog.CDCDir, store, finalizer)

	emitter, err := publisher.FromConfig(cfg.Config.Sink, provider)
	if err != nil {
		return err
	}
	defer emitter.Close()

	pipeline, err := processor.NewPipeline(processor.PipelineConfig{
		Shards:       cfg.Config.Queue.Shards,
		Capacity:     cfg.Config.Queue.Capacity,
		MaxBatch:     cfg.Config.Queue.MaxBatchSize,
		PollInterval: time.Duration(cfg.Config.Queue.PollIntervalMS) * time.Millisecond,
		Emitter:      emitter,
		Finalizer:    finalizer,
		Offsets:      store,
	})
	if err != nil {
		return err
	}

	collector := telemetry.NewMetricsCollector(pipeline, segmentBacklog(cfg.Config.CommitLog.CDCDir), queueSampleInterval)
	collector.Start()
	defer collector.Stop()

	server := startHTTPServer(store, pipeline, provider)

	pipeline.Start()
	log.Info().
		Int("shards", pipeline.Shards()).
		Str("cdc_dir", cfg.Config.CommitLog.CDCDir).
		Str("sink", cfg.Config.Sink.Name).
		Msg("Agent is operational")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("Shutdown signal received")
	case <-pipeline.Failed():
		runErr = pipeline.Err()
		log.Error().Err(runErr).Msg("Pipeline failed, shutting down")
	}

	// Finishes the in-flight cycle and releases blocked producers
	pipeline.Stop()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Warn().Err(err).Msg("HTTP server shutdown failed")
		}
	}

	return runErr
}

// segmentBacklog samples the segments waiting in dir. Segment names carry
// their creation time in milliseconds.
func segmentBacklog(dir string) telemetry.BacklogFunc {
	return func() (telemetry.Backlog, error) {
		paths, err := commitlog.ListSegments(dir)
		if err != nil {
			return telemetry.Backlog{}, err
		}
		if len(paths) == 0 {
			return telemetry.Backlog{}, nil
		}

		millis, err := commitlog.ParseTimestamp(paths[0], commitlog.SegmentKind)
		if err != nil {
			return telemetry.Backlog{}, err
		}
		return telemetry.Backlog{Pending: len(paths), Oldest: time.UnixMilli(millis)}, nil
	}
}

// startHTTPServer serves /metrics and the admin API on the prometheus bind
// address. Returns nil when neither is enabled.
func startHTTPServer(store *offset.Store, pipeline *processor.Pipeline, schemas *schema.Cached) *http.Server {
	metrics := telemetry.GetMetricsHandler()
	if metrics == nil && !cfg.Config.Admin.Enabled {
		return nil
	}

	r := chi.NewRouter()
	if metrics != nil {
		r.Handle("/metrics", metrics)
	}
	if cfg.Config.Admin.Enabled {
		admin.RegisterRoutes(r, admin.NewHandlers(store, pipeline, schemas, cfg.Config.CommitLog.CDCDir))
	}

	server := &http.Server{
		Addr:              cfg.Config.Prometheus.Bind,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		log.Info().Str("bind", server.Addr).Msg("HTTP server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server failed")
		}
	}()

	return server
}
