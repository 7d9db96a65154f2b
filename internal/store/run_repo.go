package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/rogers-f/clash-section-engine/internal/domain"
)

// RunRepo handles persistence for batch run history.
type RunRepo struct{}

const runColumns = `run_id, test_name, folder_name, status, total, succeeded, failed, started_at, finished_at`

// Create inserts a new run.
func (r *RunRepo) Create(ctx context.Context, db *sql.DB, run domain.RunRecord) error {
	const q = `INSERT INTO runs (` + runColumns + `)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := db.ExecContext(ctx, q,
		run.RunID,
		run.TestName,
		run.FolderName,
		string(run.Status),
		run.Total,
		run.Succeeded,
		run.Failed,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("create run: %w", err)
	}
	return nil
}

// FinishTx records the outcome of a run and its failures in one transaction.
func (r *RunRepo) FinishTx(ctx context.Context, tx *sql.Tx, run domain.RunRecord, failures []domain.FailedItem) error {
	const q = `UPDATE runs SET status = ?, total = ?, succeeded = ?, failed = ?, finished_at = ?
WHERE run_id = ?`
	res, err := tx.ExecContext(ctx, q,
		string(run.Status),
		run.Total,
		run.Succeeded,
		run.Failed,
		run.FinishedAt,
		run.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrRunNotFound
	}

	const fq = `INSERT INTO run_failures (run_id, seq_no, item_name, reason) VALUES (?, ?, ?, ?)`
	for i, f := range failures {
		if _, err := tx.ExecContext(ctx, fq, run.RunID, i+1, f.Name, f.Reason); err != nil {
			return fmt.Errorf("record run failure: %w", err)
		}
	}
	return nil
}

// GetByID retrieves a run by its ID.
func (r *RunRepo) GetByID(ctx context.Context, db *sql.DB, runID string) (*domain.RunRecord, error) {
	const q = `SELECT ` + runColumns + ` FROM runs WHERE run_id = ?`
	run, err := scanRun(db.QueryRowContext(ctx, q, runID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrRunNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return run, nil
}

// ListRecent returns up to limit runs, newest first.
func (r *RunRepo) ListRecent(ctx context.Context, db *sql.DB, limit int) ([]domain.RunRecord, error) {
	const q = `SELECT ` + runColumns + ` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`
	rows, err := db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.RunRecord
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListFailures returns the failures of a run in the order they happened.
func (r *RunRepo) ListFailures(ctx context.Context, db *sql.DB, runID string) ([]domain.FailedItem, error) {
	const q = `SELECT item_name, reason FROM run_failures WHERE run_id = ? ORDER BY seq_no ASC`
	rows, err := db.QueryContext(ctx, q, runID)
	if err != nil {
		return nil, fmt.Errorf("list run failures: %w", err)
	}
	defer rows.Close()

	var failures []domain.FailedItem
	for rows.Next() {
		var f domain.FailedItem
		if err := rows.Scan(&f.Name, &f.Reason); err != nil {
			return nil, fmt.Errorf("scan run failure: %w", err)
		}
		failures = append(failures, f)
	}
	return failures, rows.Err()
}

func scanRun(s scanner) (*domain.RunRecord, error) {
	var run domain.RunRecord
	var status string
	err := s.Scan(&run.RunID, &run.TestName, &run.FolderName, &status, &run.Total,
		&run.Succeeded, &run.Failed, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return nil, err
	}
	run.Status = domain.RunStatus(status)
	return &run, nil
}
