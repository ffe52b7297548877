package storage

import (
	"context"
	"fmt"
	"time"
)

// Run is the summary of one pipeline run.
type Run struct {
	StartedAt   time.Time
	FinishedAt  time.Time
	ID          string
	Fetched     int
	Prefiltered int
	Confirmed   int
	Extracted   int
	Added       int
	Updated     int
	DryRun      bool
}

// RecordRun appends a run summary.
func (l *Ledger) RecordRun(ctx context.Context, run Run) error {
	if err := validateContext(ctx); err != nil {
		return err
	}
	if err := validateString(run.ID, "run id"); err != nil {
		return err
	}

	query, args, err := psql.Insert("runs").
		Columns("id", "started_at", "finished_at", "fetched", "prefiltered", "confirmed", "extracted", "added", "updated", "dry_run").
		Values(run.ID, formatTime(run.StartedAt), formatTime(run.FinishedAt), run.Fetched, run.Prefiltered,
			run.Confirmed, run.Extracted, run.Added, run.Updated, run.DryRun).
		ToSql()
	if err != nil {
		return fmt.Errorf("failed to build query: %w", err)
	}

	if _, err := l.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}
	return nil
}

// RecentRuns returns up to limit runs, newest first.
func (l *Ledger) RecentRuns(ctx context.Context, limit int) ([]Run, error) {
	if err := validateContext(ctx); err != nil {
		return nil, err
	}

	builder := psql.Select("id", "started_at", "finished_at", "fetched", "prefiltered", "confirmed", "extracted", "added", "updated", "dry_run").
		From("runs").
		OrderBy("started_at DESC", "id DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := l.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var runs []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Fetched, &r.Prefiltered,
			&r.Confirmed, &r.Extracted, &r.Added, &r.Updated, &r.DryRun); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		r.FinishedAt = parseTime(finished)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return runs, nil
}
