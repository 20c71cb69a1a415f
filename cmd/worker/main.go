package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/extra/redisotel/v9"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stitchline/backend-quote/internal/catalog"
	"github.com/stitchline/backend-quote/internal/config"
	"github.com/stitchline/backend-quote/internal/lock"
	"github.com/stitchline/backend-quote/internal/obs"
	"github.com/stitchline/backend-quote/internal/queue"
	"github.com/stitchline/backend-quote/internal/repo"
	"github.com/stitchline/backend-quote/internal/search"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logFormat := envOrDefault("OBS_LOG_FORMAT", "json")
	logLevel := envOrDefault("OBS_LOG_LEVEL", "info")
	logger := obs.NewLogger(logFormat, logLevel).With().Str("component", "worker").Logger()

	obs.MustRegisterDomainMetrics(envOrDefault("OBS_METRICS_NAMESPACE", "stitch"), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool := mustInitDatabase(ctx, cfg, logger)
	defer pool.Close()

	redisClient := mustInitRedis(ctx, cfg, logger)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Error().Err(err).Msg("close redis")
		}
	}()

	reindexer := search.Reindexer{
		Store: repo.Products{DB: pool},
		Index: search.Index{R: redisClient, Key: cfg.QueueRedisPrefix + ":search:styles"},
		Cache: catalog.NewCache(redisClient, cfg.CatalogCacheTTL),
		Log:   logger,
	}
	locker := lock.Locker{R: redisClient, RetryBackoff: cfg.LockRetryBackoff}
	lockKey := cfg.QueueRedisPrefix + ":lock:reindex"

	reindexWorker := queue.Worker{
		R:                 redisClient,
		Prefix:            cfg.QueueRedisPrefix,
		Kind:              queue.KindReindex,
		Concurrency:       1,
		VisibilityTimeout: cfg.ReindexLockTTL,
		RetryBase:         cfg.IngestRetryBase,
		RetryJitter:       cfg.IngestRetryJitterPct,
		Log:               logger,
		Handler: func(jobCtx context.Context, _ queue.Task) error {
			err := locker.TryWithLock(jobCtx, lockKey, cfg.ReindexLockTTL, reindexer.Run)
			if errors.Is(err, lock.ErrNotAcquired) {
				// another instance is already rebuilding, nothing to do
				logger.Debug().Msg("reindex already in progress elsewhere")
				return nil
			}
			return err
		},
	}

	logger.Info().Msg("worker starting")
	if err := reindexWorker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error().Err(err).Msg("worker stopped with error")
	} else {
		logger.Info().Msg("worker shutdown complete")
	}
}

func mustInitDatabase(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *pgxpool.Pool {
	poolConfig, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse database config")
	}
	poolConfig.ConnConfig.Tracer = obs.PGXTracer{}
	if poolConfig.ConnConfig.RuntimeParams == nil {
		poolConfig.ConnConfig.RuntimeParams = map[string]string{}
	}
	poolConfig.ConnConfig.RuntimeParams["application_name"] = "quote-worker"

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect database")
	}
	if err := pool.Ping(ctx); err != nil {
		logger.Fatal().Err(err).Msg("ping database")
	}
	return pool
}

func mustInitRedis(ctx context.Context, cfg *config.Config, logger zerolog.Logger) *redis.Client {
	redisOpts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("parse redis url")
	}
	redisClient := redis.NewClient(redisOpts)
	if err := redisotel.InstrumentTracing(redisClient); err != nil {
		logger.Error().Err(err).Msg("instrument redis tracing")
	}
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal().Err(err).Msg("ping redis")
	}
	return redisClient
}

func envOrDefault(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		trimmed := strings.TrimSpace(val)
		if trimmed != "" {
			return trimmed
		}
	}
	return fallback
}
