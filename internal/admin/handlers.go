// Package admin provides operational endpoints guarded by the admin token:
// triggering a search reindex and inspecting ingest runs and dead tasks.
package admin

import (
	"context"
	"net/http"

	"github.com/redis/go-redis/v9"

	"github.com/stitchline/backend-quote/internal/common"
	"github.com/stitchline/backend-quote/internal/queue"
	"github.com/stitchline/backend-quote/internal/repo"
)

type taskEnqueuer interface {
	Enqueue(ctx context.Context, t queue.Task) error
}

type runLister interface {
	List(ctx context.Context, limit int) ([]repo.IngestRun, error)
}

// Handler serves the admin endpoints.
type Handler struct {
	Enqueuer    taskEnqueuer
	Runs        runLister
	Redis       *redis.Client
	QueuePrefix string
}

// PostReindex handles POST /api/v1/admin/reindex by queueing a rebuild of the
// style search index.
func (h Handler) PostReindex(w http.ResponseWriter, r *http.Request) {
	if h.Enqueuer == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "queue not configured", nil)
		return
	}
	err := h.Enqueuer.Enqueue(r.Context(), queue.Task{
		Kind:           queue.KindReindex,
		Payload:        []byte(`{"source":"admin"}`),
		IdempotencyKey: "admin:reindex",
	})
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to enqueue reindex", nil)
		return
	}
	common.JSON(w, http.StatusAccepted, map[string]any{"data": map[string]string{"status": "queued"}})
}

// GetIngestRuns handles GET /api/v1/admin/ingest-runs.
func (h Handler) GetIngestRuns(w http.ResponseWriter, r *http.Request) {
	if h.Runs == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "ingest runs not configured", nil)
		return
	}
	limit := common.AtoiDefault(r.URL.Query().Get("limit"), 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}
	runs, err := h.Runs.List(r.Context(), limit)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list ingest runs", nil)
		return
	}
	views := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		view := map[string]any{
			"id":            run.ID,
			"source":        run.Source,
			"targetTable":   run.TargetTable,
			"status":        run.Status,
			"rowsTotal":     run.RowsTotal,
			"rowsSkipped":   run.RowsSkipped,
			"stylesWritten": run.StylesWritten,
			"startedAt":     run.StartedAt,
		}
		if run.FinishedAt != nil {
			view["finishedAt"] = run.FinishedAt
		}
		views = append(views, view)
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}

// GetDeadTasks handles GET /api/v1/admin/dlq, listing reindex tasks that
// exhausted their retries.
func (h Handler) GetDeadTasks(w http.ResponseWriter, r *http.Request) {
	if h.Redis == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "redis not configured", nil)
		return
	}
	tasks, err := queue.DLQ(r.Context(), h.Redis, h.QueuePrefix, queue.KindReindex, 50)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list dead tasks", nil)
		return
	}
	views := make([]map[string]any, 0, len(tasks))
	for _, task := range tasks {
		views = append(views, map[string]any{
			"kind":    task.Kind,
			"key":     task.IdempotencyKey,
			"payload": string(task.Payload),
		})
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": views})
}
