package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/stitchline/backend-quote/internal/obs"
	"github.com/stitchline/backend-quote/internal/queue"
	"github.com/stitchline/backend-quote/internal/repo"
	"github.com/stitchline/backend-quote/internal/resilience"
)

type productWriter interface {
	UpsertBatch(ctx context.Context, docs []repo.ProductDoc) error
}

type runRecorder interface {
	Start(ctx context.Context, source, targetTable string) (repo.IngestRun, error)
	Finish(ctx context.Context, id, status string, rowsTotal, rowsSkipped, stylesWritten int) error
}

type taskEnqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

// Loader writes aggregated catalog documents in bounded batches with retries.
type Loader struct {
	Products    productWriter
	Runs        runRecorder
	Enqueuer    taskEnqueuer
	TargetTable string
	BatchSize   int
	MaxAttempts int
	RetryBase   time.Duration
	RetryJitter float64
	Log         zerolog.Logger

	sleep func(time.Duration)
}

// Run upserts the built documents and records the run. A failed batch commit
// is retried with capped exponential backoff and jitter; exhausting the
// attempts aborts the run and marks it failed. On success a search reindex
// task is enqueued so autocomplete picks up the new catalog.
func (l Loader) Run(ctx context.Context, source string, build BuildResult) error {
	if l.Products == nil {
		return errors.New("ingest: product writer not configured")
	}
	batchSize := l.BatchSize
	if batchSize <= 0 {
		batchSize = 400
	}
	maxAttempts := l.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	retryBase := l.RetryBase
	if retryBase <= 0 {
		retryBase = 500 * time.Millisecond
	}
	sleep := l.sleep
	if sleep == nil {
		sleep = time.Sleep
	}

	var runID string
	if l.Runs != nil {
		run, err := l.Runs.Start(ctx, source, l.targetTable())
		if err != nil {
			return fmt.Errorf("record ingest run: %w", err)
		}
		runID = run.ID
	}

	written := 0
	for start := 0; start < len(build.Docs); start += batchSize {
		end := start + batchSize
		if end > len(build.Docs) {
			end = len(build.Docs)
		}
		batch := build.Docs[start:end]
		if err := l.writeBatch(ctx, batch, maxAttempts, retryBase, sleep); err != nil {
			l.finish(ctx, runID, "failed", build, written)
			return fmt.Errorf("upsert batch %d-%d: %w", start, end, err)
		}
		written += len(batch)
	}

	l.finish(ctx, runID, "succeeded", build, written)
	l.Log.Info().
		Str("source", source).
		Int("styles", written).
		Int("rows", build.RowsTotal).
		Int("skipped", build.RowsSkipped).
		Msg("catalog ingest complete")

	if l.Enqueuer != nil {
		task := queue.Task{
			Kind:           queue.KindReindex,
			Payload:        []byte(fmt.Sprintf(`{"source":%q}`, source)),
			IdempotencyKey: fmt.Sprintf("ingest:%s:%d", source, time.Now().Unix()),
		}
		if err := l.Enqueuer.Enqueue(ctx, task); err != nil {
			// The catalog is already written; the periodic reindex will
			// catch up even if this enqueue is lost.
			l.Log.Warn().Err(err).Msg("failed to enqueue reindex task")
		}
	}
	return nil
}

func (l Loader) writeBatch(ctx context.Context, batch []repo.ProductDoc, maxAttempts int, base time.Duration, sleep func(time.Duration)) error {
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lastErr = l.Products.UpsertBatch(ctx, batch)
		if lastErr == nil {
			return nil
		}
		if attempt == maxAttempts {
			break
		}
		obs.IngestBatchRetries.Inc()
		delay := resilience.Backoff(base, attempt, l.RetryJitter)
		l.Log.Warn().Err(lastErr).Int("attempt", attempt).Dur("backoff", delay).Msg("batch upsert failed, retrying")
		sleep(delay)
	}
	return lastErr
}

func (l Loader) finish(ctx context.Context, runID, status string, build BuildResult, written int) {
	if l.Runs == nil || runID == "" {
		return
	}
	if err := l.Runs.Finish(ctx, runID, status, build.RowsTotal, build.RowsSkipped, written); err != nil {
		l.Log.Warn().Err(err).Str("run_id", runID).Msg("failed to finalize ingest run record")
	}
}

func (l Loader) targetTable() string {
	if l.TargetTable == "" {
		return "products"
	}
	return l.TargetTable
}
