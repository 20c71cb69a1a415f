package ingest_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/stitchline/backend-quote/internal/ingest"
	"github.com/stitchline/backend-quote/internal/obs"
	"github.com/stitchline/backend-quote/internal/pricing"
	"github.com/stitchline/backend-quote/internal/queue"
	"github.com/stitchline/backend-quote/internal/repo"
)

const sampleCSV = `style_no,title,color,size,category,price_2,price_6,price_12,price_24,price_48,price_72,cap_price_2,cap_price_24,cap_price_144,size_upcharge
PC61,Essential Tee,Black,S,garment,34.00,25.00,21.00,20.00,19.00,18.00,,,,
PC61,Essential Tee,Black,M,garment,34.00,25.00,21.00,20.00,19.00,18.00,,,,
PC61,Essential Tee,Navy,2XL,garment,34.00,25.00,21.00,20.00,19.00,18.00,,,,1.50
,Orphan Row,Red,M,garment,10.00,9.00,8.00,7.00,6.00,5.00,,,,
CP80,Six Panel Cap,Black,OSFA,cap,12.00,12.00,12.00,12.00,12.00,12.00,12.00,10.00,8.50,
`

func setupMetrics(t *testing.T) {
	t.Helper()
	obs.MustRegisterDomainMetrics("stitch", prometheus.NewRegistry())
}

func TestReadRows(t *testing.T) {
	setupMetrics(t)
	rows, skipped, err := ingest.ReadRows(strings.NewReader(sampleCSV), zerolog.Nop())
	require.NoError(t, err)
	require.Zero(t, skipped)
	require.Len(t, rows, 5)

	require.Equal(t, "PC61", rows[0].StyleNo)
	require.Equal(t, pricing.Money(3400), rows[0].GarmentPrices[0])
	require.Equal(t, pricing.Money(1800), rows[0].GarmentPrices[5])
	require.False(t, rows[0].HasCapPrices)

	require.Equal(t, pricing.Money(150), rows[2].Upcharge)

	require.True(t, rows[4].IsCap)
	require.True(t, rows[4].HasCapPrices)
	require.Equal(t, pricing.Money(850), rows[4].CapPrices[2])
}

func TestReadRowsRejectsBadHeader(t *testing.T) {
	setupMetrics(t)
	_, _, err := ingest.ReadRows(strings.NewReader("style,name\nPC61,Tee\n"), zerolog.Nop())
	require.Error(t, err)
}

func TestReadRowsSkipsMalformedPrice(t *testing.T) {
	setupMetrics(t)
	bad := strings.Replace(sampleCSV, "34.00", "thirty-four", 1)
	rows, skipped, err := ingest.ReadRows(strings.NewReader(bad), zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 1, skipped)
	require.Len(t, rows, 4)
	require.Equal(t, "M", rows[0].Size)
	require.Equal(t, "CP80", rows[3].StyleNo)
}

func TestReadRowsSkipsShortRow(t *testing.T) {
	setupMetrics(t)
	bad := strings.Replace(sampleCSV,
		"PC61,Essential Tee,Black,M,garment,34.00,25.00,21.00,20.00,19.00,18.00,,,,\n",
		"PC61,Essential Tee,Black,M\n", 1)
	rows, skipped, err := ingest.ReadRows(strings.NewReader(bad), zerolog.Nop())
	require.NoError(t, err)
	require.Equal(t, 1, skipped)
	require.Len(t, rows, 4)
}

func TestBuildGroupsByStyle(t *testing.T) {
	setupMetrics(t)
	rows, _, err := ingest.ReadRows(strings.NewReader(sampleCSV), zerolog.Nop())
	require.NoError(t, err)

	res := ingest.Build(rows, zerolog.Nop())
	require.Equal(t, 5, res.RowsTotal)
	require.Equal(t, 1, res.RowsSkipped)
	require.Len(t, res.Docs, 2)

	tee := res.Docs[0]
	require.Equal(t, "PC61", tee.StyleNo)
	require.Equal(t, []string{"Black", "Navy"}, tee.Colors)
	require.Equal(t, []string{"S", "M", "2XL"}, tee.Sizes)
	require.Len(t, tee.BasePrices, 6)
	require.Equal(t, pricing.Money(2000), tee.BasePrices.UnitPrice(30))
	require.Equal(t, pricing.Money(150), tee.SizeUpcharges["2XL"])
	require.Empty(t, tee.CapPrices)

	capDoc := res.Docs[1]
	require.True(t, capDoc.IsCap)
	require.Len(t, capDoc.CapPrices, 3)
	require.Equal(t, pricing.Money(1000), capDoc.CapPrices.UnitPrice(30))
}

func TestBuildIsDeterministic(t *testing.T) {
	setupMetrics(t)
	rows, _, err := ingest.ReadRows(strings.NewReader(sampleCSV), zerolog.Nop())
	require.NoError(t, err)

	first := ingest.Build(rows, zerolog.Nop())
	second := ingest.Build(rows, zerolog.Nop())
	require.Equal(t, first.Docs, second.Docs)
}

type recordingWriter struct {
	batches  [][]repo.ProductDoc
	failures int
}

func (w *recordingWriter) UpsertBatch(_ context.Context, docs []repo.ProductDoc) error {
	if w.failures > 0 {
		w.failures--
		return errors.New("deadlock detected")
	}
	batch := make([]repo.ProductDoc, len(docs))
	copy(batch, docs)
	w.batches = append(w.batches, batch)
	return nil
}

type recordingRuns struct {
	finishedStatus string
	written        int
}

func (r *recordingRuns) Start(context.Context, string, string) (repo.IngestRun, error) {
	return repo.IngestRun{ID: "run-1"}, nil
}

func (r *recordingRuns) Finish(_ context.Context, _ string, status string, _, _, written int) error {
	r.finishedStatus = status
	r.written = written
	return nil
}

type recordingEnqueuer struct {
	tasks []queue.Task
}

func (e *recordingEnqueuer) Enqueue(_ context.Context, t queue.Task) error {
	e.tasks = append(e.tasks, t)
	return nil
}

func docs(n int) []repo.ProductDoc {
	out := make([]repo.ProductDoc, n)
	for i := range out {
		out[i] = repo.ProductDoc{StyleNo: "S" + string(rune('A'+i))}
	}
	return out
}

func TestLoaderBatchesAndEnqueuesReindex(t *testing.T) {
	setupMetrics(t)
	writer := &recordingWriter{}
	runs := &recordingRuns{}
	enq := &recordingEnqueuer{}
	loader := ingest.Loader{
		Products:  writer,
		Runs:      runs,
		Enqueuer:  enq,
		BatchSize: 2,
		Log:       zerolog.Nop(),
	}

	err := loader.Run(context.Background(), "vendor.csv", ingest.BuildResult{Docs: docs(5), RowsTotal: 5})
	require.NoError(t, err)
	require.Len(t, writer.batches, 3)
	require.Equal(t, "succeeded", runs.finishedStatus)
	require.Equal(t, 5, runs.written)
	require.Len(t, enq.tasks, 1)
	require.Equal(t, queue.KindReindex, enq.tasks[0].Kind)
}

func TestLoaderRetriesFailedBatch(t *testing.T) {
	setupMetrics(t)
	writer := &recordingWriter{failures: 2}
	loader := ingest.Loader{
		Products:    writer,
		BatchSize:   10,
		MaxAttempts: 5,
		RetryBase:   time.Millisecond,
		Log:         zerolog.Nop(),
	}

	err := loader.Run(context.Background(), "vendor.csv", ingest.BuildResult{Docs: docs(3), RowsTotal: 3})
	require.NoError(t, err)
	require.Len(t, writer.batches, 1)
}

func TestLoaderAbortsAfterMaxAttempts(t *testing.T) {
	setupMetrics(t)
	writer := &recordingWriter{failures: 100}
	runs := &recordingRuns{}
	loader := ingest.Loader{
		Products:    writer,
		Runs:        runs,
		BatchSize:   10,
		MaxAttempts: 3,
		RetryBase:   time.Millisecond,
		Log:         zerolog.Nop(),
	}

	err := loader.Run(context.Background(), "vendor.csv", ingest.BuildResult{Docs: docs(3), RowsTotal: 3})
	require.Error(t, err)
	require.Equal(t, "failed", runs.finishedStatus)
	require.Empty(t, writer.batches)
}
