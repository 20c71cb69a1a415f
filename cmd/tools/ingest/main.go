// Command ingest loads a vendor catalog CSV into the products table and
// queues a search reindex when the load succeeds.
//
// Usage:
//
//	ingest -file catalog.csv [-source vendor-name] [-table products]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	redis "github.com/redis/go-redis/v9"

	"github.com/stitchline/backend-quote/internal/config"
	"github.com/stitchline/backend-quote/internal/ingest"
	"github.com/stitchline/backend-quote/internal/obs"
	"github.com/stitchline/backend-quote/internal/queue"
	"github.com/stitchline/backend-quote/internal/repo"
)

func main() {
	var (
		file   = flag.String("file", "", "path to the catalog CSV (required)")
		source = flag.String("source", "", "source label recorded with the run (defaults to the file name)")
		table  = flag.String("table", "products", "target table recorded with the run")
	)
	flag.Parse()

	if *file == "" {
		fmt.Fprintln(os.Stderr, "ingest: -file is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "ingest: load config: %v\n", err)
		os.Exit(1)
	}
	logger := obs.NewLogger(envOrDefault("OBS_LOG_FORMAT", "console"), envOrDefault("OBS_LOG_LEVEL", "info")).
		With().Str("component", "ingest").Logger()
	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "stitch"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f, err := os.Open(*file)
	if err != nil {
		logger.Error().Err(err).Str("file", *file).Msg("open catalog file")
		os.Exit(1)
	}
	defer f.Close()

	rows, badRows, err := ingest.ReadRows(f, logger)
	if err != nil {
		logger.Error().Err(err).Msg("parse catalog file")
		os.Exit(1)
	}

	build := ingest.Build(rows, logger)
	build.RowsTotal += badRows
	build.RowsSkipped += badRows
	logger.Info().
		Int("rows", build.RowsTotal).
		Int("skipped", build.RowsSkipped).
		Int("styles", len(build.Docs)).
		Msg("catalog parsed")

	pool, err := pgxpool.New(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Error().Err(err).Msg("connect database")
		os.Exit(1)
	}
	defer pool.Close()

	var enqueuer *queue.Enqueuer
	if cfg.RedisURL != "" {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			logger.Error().Err(err).Msg("parse redis url")
			os.Exit(1)
		}
		redisClient := redis.NewClient(redisOpts)
		defer redisClient.Close()
		enqueuer = &queue.Enqueuer{R: redisClient, Prefix: cfg.QueueRedisPrefix, DedupTTL: cfg.IdempotencyTTL}
	}

	loader := ingest.Loader{
		Products:    repo.Products{DB: pool},
		Runs:        repo.IngestRuns{DB: pool},
		TargetTable: *table,
		BatchSize:   cfg.IngestBatchSize,
		MaxAttempts: cfg.IngestRetryMaxAttempts,
		RetryBase:   cfg.IngestRetryBase,
		RetryJitter: cfg.IngestRetryJitterPct,
		Log:         logger,
	}
	if enqueuer != nil {
		loader.Enqueuer = *enqueuer
	}

	label := *source
	if label == "" {
		label = filepath.Base(*file)
	}
	if err := loader.Run(ctx, label, build); err != nil {
		logger.Error().Err(err).Msg("catalog ingest failed")
		os.Exit(1)
	}
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok && val != "" {
		return val
	}
	return fallback
}
