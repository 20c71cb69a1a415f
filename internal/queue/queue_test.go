package queue_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	redis "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/backend-quote/internal/queue"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func runWorker(t *testing.T, w queue.Worker, d time.Duration) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	require.NoError(t, w.Run(ctx))
}

func TestEnqueueDedup(t *testing.T) {
	client := newTestRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "stitch", DedupTTL: time.Minute}
	ctx := context.Background()

	task := queue.Task{Kind: queue.KindReindex, IdempotencyKey: "catalog-v1"}
	require.NoError(t, enq.Enqueue(ctx, task))
	require.NoError(t, enq.Enqueue(ctx, task))

	depth, err := client.ZCard(ctx, "stitch:queue:"+queue.KindReindex).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestWorkerProcessesTask(t *testing.T) {
	client := newTestRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "stitch"}
	require.NoError(t, enq.Enqueue(context.Background(), queue.Task{
		Kind:           queue.KindReindex,
		Payload:        []byte(`{"reason":"ingest"}`),
		IdempotencyKey: "run-1",
	}))

	var processed atomic.Int32
	w := queue.Worker{
		R:      client,
		Prefix: "stitch",
		Kind:   queue.KindReindex,
		Log:    zerolog.Nop(),
		Handler: func(_ context.Context, task queue.Task) error {
			require.Equal(t, queue.KindReindex, task.Kind)
			require.JSONEq(t, `{"reason":"ingest"}`, string(task.Payload))
			processed.Add(1)
			return nil
		},
	}
	runWorker(t, w, 500*time.Millisecond)
	require.Equal(t, int32(1), processed.Load())

	// Ack clears the dedup key so a later run with the same key enqueues again.
	require.NoError(t, enq.Enqueue(context.Background(), queue.Task{Kind: queue.KindReindex, IdempotencyKey: "run-1"}))
	depth, err := client.ZCard(context.Background(), "stitch:queue:"+queue.KindReindex).Result()
	require.NoError(t, err)
	require.Equal(t, int64(1), depth)
}

func TestFailingTaskMovesToDLQ(t *testing.T) {
	client := newTestRedis(t)
	enq := queue.Enqueuer{R: client, Prefix: "stitch"}
	require.NoError(t, enq.Enqueue(context.Background(), queue.Task{
		Kind:        queue.KindReindex,
		MaxAttempts: 2,
	}))

	var attempts atomic.Int32
	w := queue.Worker{
		R:         client,
		Prefix:    "stitch",
		Kind:      queue.KindReindex,
		RetryBase: time.Millisecond,
		Log:       zerolog.Nop(),
		Handler: func(context.Context, queue.Task) error {
			attempts.Add(1)
			return context.DeadlineExceeded
		},
	}
	runWorker(t, w, time.Second)
	require.Equal(t, int32(2), attempts.Load())

	dead, err := queue.DLQ(context.Background(), client, "stitch", queue.KindReindex, 10)
	require.NoError(t, err)
	require.Len(t, dead, 1)
}
