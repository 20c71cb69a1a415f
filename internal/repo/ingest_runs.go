package repo

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// IngestRun records one catalog ingestion pass for operational visibility.
type IngestRun struct {
	ID            string
	Source        string
	TargetTable   string
	Status        string
	RowsTotal     int
	RowsSkipped   int
	StylesWritten int
	StartedAt     time.Time
	FinishedAt    *time.Time
}

// IngestRuns provides access to ingestion run records.
type IngestRuns struct {
	DB *pgxpool.Pool
}

// Start opens a new run in the running state.
func (r IngestRuns) Start(ctx context.Context, source, targetTable string) (IngestRun, error) {
	run := IngestRun{Source: source, TargetTable: targetTable, Status: "running"}
	err := r.DB.QueryRow(ctx,
		`INSERT INTO ingest_runs (source, target_table, status) VALUES ($1, $2, 'running')
		 RETURNING id, started_at`,
		source, targetTable,
	).Scan(&run.ID, &run.StartedAt)
	if err != nil {
		return IngestRun{}, fmt.Errorf("start ingest run: %w", err)
	}
	return run, nil
}

// Finish closes a run with its final status and counters.
func (r IngestRuns) Finish(ctx context.Context, id, status string, rowsTotal, rowsSkipped, stylesWritten int) error {
	_, err := r.DB.Exec(ctx,
		`UPDATE ingest_runs
		 SET status = $2, rows_total = $3, rows_skipped = $4, styles_written = $5, finished_at = now()
		 WHERE id = $1`,
		id, status, rowsTotal, rowsSkipped, stylesWritten)
	if err != nil {
		return fmt.Errorf("finish ingest run: %w", err)
	}
	return nil
}

// List returns the most recent runs, newest first.
func (r IngestRuns) List(ctx context.Context, limit int) ([]IngestRun, error) {
	rows, err := r.DB.Query(ctx,
		`SELECT id, source, target_table, status, rows_total, rows_skipped, styles_written, started_at, finished_at
		 FROM ingest_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingest runs: %w", err)
	}
	defer rows.Close()
	var out []IngestRun
	for rows.Next() {
		var run IngestRun
		if err := rows.Scan(&run.ID, &run.Source, &run.TargetTable, &run.Status,
			&run.RowsTotal, &run.RowsSkipped, &run.StylesWritten, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
