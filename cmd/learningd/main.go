// Learningd is the learning-agent memory daemon.
//
// It receives finished conversation traces over HTTP, extracts durable
// learnings from them in the background, stores the learnings with dual
// embeddings in a local sqlite database, and serves formatted learning
// context back to the orchestrator for new tasks. Scheduled lifecycle
// jobs decay, generalize, and prune the stored memories over time.
//
// Usage:
//
//	# Start with defaults (~/.config/learning-agent/config.yaml)
//	learningd
//
//	# Explicit config file
//	learningd -config /etc/learning-agent/config.yaml
//
//	# Configure via environment
//	SERVER_HTTP_PORT=9091 EMBEDDINGS_BASE_URL=http://tei:8080 learningd
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/johannhartmann/learning-agent/internal/analyzer"
	"github.com/johannhartmann/learning-agent/internal/config"
	"github.com/johannhartmann/learning-agent/internal/embeddings"
	"github.com/johannhartmann/learning-agent/internal/extraction"
	"github.com/johannhartmann/learning-agent/internal/learner"
	"github.com/johannhartmann/learning-agent/internal/lifecycle"
	"github.com/johannhartmann/learning-agent/internal/logging"
	"github.com/johannhartmann/learning-agent/internal/memory"
	"github.com/johannhartmann/learning-agent/internal/notify"
	"github.com/johannhartmann/learning-agent/internal/retrieval"
	"github.com/johannhartmann/learning-agent/internal/server"
)

// Version information (set via ldflags during build)
var (
	version   = "dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	showVersion := flag.Bool("version", false, "print version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("learningd\n")
		fmt.Printf("Version:    %s\n", version)
		fmt.Printf("Commit:     %s\n", gitCommit)
		fmt.Printf("Build Date: %s\n", buildDate)
		os.Exit(0)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("Received signal %v, shutting down gracefully...", sig)
		cancel()
	}()

	if err := run(ctx, *configPath); err != nil {
		log.Fatalf("Server error: %v", err)
	}

	log.Println("Server shutdown complete")
}

// run wires the daemon together and blocks until ctx is cancelled.
func run(ctx context.Context, configPath string) error {
	if err := config.EnsureConfigDir(); err != nil {
		return err
	}

	cfg, err := config.LoadWithFile(configPath)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("initializing logger: %w", err)
	}
	defer func() {
		_ = logging.Sync(logger)
	}()

	logger.Info("starting learningd",
		zap.String("version", version),
		zap.Int("port", cfg.Server.Port),
		zap.String("database", cfg.Database.Path))

	// Memory store with TEI-backed embeddings.
	embedder, err := embeddings.NewService(embeddings.Config{
		BaseURL: cfg.Embeddings.BaseURL,
		Model:   cfg.Embeddings.Model,
		Timeout: cfg.Embeddings.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating embedding service: %w", err)
	}

	dbPath, err := config.ExpandPath(cfg.Database.Path)
	if err != nil {
		return err
	}
	db, err := memory.Open(dbPath)
	if err != nil {
		return fmt.Errorf("opening memory database: %w", err)
	}
	store, err := memory.NewStore(db, embedder, logger)
	if err != nil {
		return fmt.Errorf("creating memory store: %w", err)
	}

	// Learning pipeline.
	external, err := extraction.NewHTTPExtractor(extraction.HTTPConfig{
		BaseURL: cfg.Extraction.BaseURL,
		APIKey:  cfg.Extraction.APIKey.Value(),
		Timeout: cfg.Extraction.Timeout,
	})
	if err != nil {
		return fmt.Errorf("creating extraction client: %w", err)
	}
	extractor, err := extraction.New(external, extraction.Config{Timeout: cfg.Extraction.Timeout}, logger)
	if err != nil {
		return fmt.Errorf("creating extractor: %w", err)
	}

	var notifier notify.Notifier = notify.Nop{}
	if cfg.NATS.Enabled {
		natsNotifier, err := notify.NewNATSNotifier(notify.Config{
			URL:     cfg.NATS.URL,
			Timeout: cfg.NATS.Timeout,
		}, logger)
		if err != nil {
			return fmt.Errorf("connecting to nats: %w", err)
		}
		defer natsNotifier.Close()
		notifier = natsNotifier
	}

	learn, err := learner.New(
		analyzer.New(analyzer.Config{MaxStatusChecks: cfg.Analyzer.MaxStatusChecks}),
		extractor,
		store,
		notifier,
		learner.Config{
			DebounceWindow: cfg.Learner.DebounceWindow,
			ProcessTimeout: cfg.Learner.ProcessTimeout,
		},
		logger,
	)
	if err != nil {
		return fmt.Errorf("creating learner: %w", err)
	}
	defer learn.Close()

	retriever, err := retrieval.New(store, retrieval.Config{
		Limit:         cfg.Retrieval.Limit,
		MinSimilarity: cfg.Retrieval.MinSimilarity,
		HistoryWindow: cfg.Retrieval.HistoryWindow,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating retriever: %w", err)
	}

	// Lifecycle jobs.
	manager, err := lifecycle.NewManager(store, lifecycle.Config{
		StableUnusedDays:       cfg.Lifecycle.StableUnusedDays,
		DecliningUnusedDays:    cfg.Lifecycle.DecliningUnusedDays,
		ArchiveRetentionDays:   cfg.Lifecycle.ArchiveRetentionDays,
		FailedRetentionDays:    cfg.Lifecycle.FailedRetentionDays,
		GeneralizeSimilarity:   cfg.Lifecycle.GeneralizeSimilarity,
		GeneralizeConfidence:   cfg.Lifecycle.GeneralizeConfidence,
		GeneralizeApplications: cfg.Lifecycle.GeneralizeApplications,
		GeneralizeGroupSize:    cfg.Lifecycle.GeneralizeGroupSize,
		DuplicateSimilarity:    cfg.Lifecycle.DuplicateSimilarity,
		LowValueConfidence:     cfg.Lifecycle.LowValueConfidence,
		LowValueApplications:   cfg.Lifecycle.LowValueApplications,
		LowValueAgeDays:        cfg.Lifecycle.LowValueAgeDays,
	}, logger)
	if err != nil {
		return fmt.Errorf("creating lifecycle manager: %w", err)
	}

	scheduler, err := lifecycle.NewScheduler(manager, logger,
		lifecycle.WithDailyInterval(cfg.Lifecycle.DailyInterval),
		lifecycle.WithWeeklyInterval(cfg.Lifecycle.WeeklyInterval),
		lifecycle.WithMonthlyInterval(cfg.Lifecycle.MonthlyInterval),
		lifecycle.WithJobTimeout(cfg.Lifecycle.JobTimeout),
	)
	if err != nil {
		return fmt.Errorf("creating lifecycle scheduler: %w", err)
	}
	if err := scheduler.Start(); err != nil {
		return fmt.Errorf("starting lifecycle scheduler: %w", err)
	}
	defer scheduler.Stop()

	// HTTP server.
	srv, err := server.NewServer(learn, retriever, store, manager, logger, &server.Config{
		Host: cfg.Server.Host,
		Port: cfg.Server.Port,
	})
	if err != nil {
		return fmt.Errorf("creating http server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	return srv.Shutdown(shutdownCtx)
}
