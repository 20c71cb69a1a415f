package admin_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stitchline/backend-quote/internal/admin"
	"github.com/stitchline/backend-quote/internal/queue"
	"github.com/stitchline/backend-quote/internal/repo"
)

type fakeEnqueuer struct {
	tasks []queue.Task
	err   error
}

func (f *fakeEnqueuer) Enqueue(_ context.Context, t queue.Task) error {
	if f.err != nil {
		return f.err
	}
	f.tasks = append(f.tasks, t)
	return nil
}

type fakeRuns struct {
	runs []repo.IngestRun
}

func (f *fakeRuns) List(_ context.Context, limit int) ([]repo.IngestRun, error) {
	if limit < len(f.runs) {
		return f.runs[:limit], nil
	}
	return f.runs, nil
}

func TestPostReindex(t *testing.T) {
	t.Run("queues a reindex task", func(t *testing.T) {
		enq := &fakeEnqueuer{}
		h := admin.Handler{Enqueuer: enq}
		rec := httptest.NewRecorder()
		h.PostReindex(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reindex", nil))
		require.Equal(t, http.StatusAccepted, rec.Code)
		require.Len(t, enq.tasks, 1)
		require.Equal(t, queue.KindReindex, enq.tasks[0].Kind)
	})

	t.Run("enqueue failure is surfaced", func(t *testing.T) {
		h := admin.Handler{Enqueuer: &fakeEnqueuer{err: errors.New("redis down")}}
		rec := httptest.NewRecorder()
		h.PostReindex(rec, httptest.NewRequest(http.MethodPost, "/api/v1/admin/reindex", nil))
		require.Equal(t, http.StatusInternalServerError, rec.Code)
	})
}

func TestGetIngestRuns(t *testing.T) {
	finished := time.Now()
	h := admin.Handler{Runs: &fakeRuns{runs: []repo.IngestRun{
		{ID: "r1", Source: "vendor.csv", Status: "succeeded", RowsTotal: 100, StylesWritten: 40, FinishedAt: &finished},
		{ID: "r2", Source: "vendor.csv", Status: "failed", RowsTotal: 100},
	}}}

	rec := httptest.NewRecorder()
	h.GetIngestRuns(rec, httptest.NewRequest(http.MethodGet, "/api/v1/admin/ingest-runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp.Data, 2)
	require.Equal(t, "succeeded", resp.Data[0]["status"])
	require.Contains(t, resp.Data[0], "finishedAt")
	require.NotContains(t, resp.Data[1], "finishedAt")
}
