package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"pricesync-service/internal/models"
)

type syncRunRow struct {
	RunID      string     `db:"run_id"`
	StoreID    string     `db:"store_id"`
	Repriced   int        `db:"repriced_count"`
	Pending    int        `db:"pending_count"`
	Unlisted   int        `db:"unlisted_count"`
	Errors     []byte     `db:"errors"`
	LastError  string     `db:"last_error"`
	Status     string     `db:"status"`
	StartedAt  time.Time  `db:"started_at"`
	FinishedAt *time.Time `db:"finished_at"`
}

func (r *syncRunRow) toOutcome() (*models.SyncOutcome, error) {
	outcome := &models.SyncOutcome{
		RunID:      r.RunID,
		StoreID:    r.StoreID,
		Repriced:   r.Repriced,
		Pending:    r.Pending,
		Unlisted:   r.Unlisted,
		Status:     r.Status,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
	}
	if len(r.Errors) > 0 {
		if err := json.Unmarshal(r.Errors, &outcome.Errors); err != nil {
			return nil, fmt.Errorf("failed to parse run errors: %w", err)
		}
	}
	return outcome, nil
}

// StartRun persists a fresh in_progress outcome so observers see the run
// before it completes.
func (s *Store) StartRun(ctx context.Context, outcome *models.SyncOutcome) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sync_runs (run_id, store_id, repriced_count, pending_count, unlisted_count, errors, last_error, status, started_at)
		VALUES ($1, $2, 0, 0, 0, '[]', '', $3, $4)`,
		outcome.RunID, outcome.StoreID, models.RunStatusInProgress, outcome.StartedAt)
	return err
}

// UpdateProgress writes the current tallies of a running sync. lastError is
// the most recent per-item failure, empty while none occurred, so mid-run
// observers see failures before the run finalizes.
func (s *Store) UpdateProgress(ctx context.Context, storeID, runID string, repriced, pending, unlisted int, lastError string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET repriced_count = $1, pending_count = $2, unlisted_count = $3, last_error = $4
		WHERE run_id = $5`,
		repriced, pending, unlisted, lastError, runID)
	return err
}

// SaveOutcome finalizes a run's row with its derived status and error list.
func (s *Store) SaveOutcome(ctx context.Context, outcome *models.SyncOutcome) error {
	errorsJSON, err := json.Marshal(outcome.Errors)
	if err != nil {
		return fmt.Errorf("failed to marshal run errors: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE sync_runs
		SET repriced_count = $1, pending_count = $2, unlisted_count = $3,
		    errors = $4, status = $5, finished_at = $6
		WHERE run_id = $7`,
		outcome.Repriced, outcome.Pending, outcome.Unlisted,
		errorsJSON, outcome.Status, outcome.FinishedAt, outcome.RunID)
	return err
}

// GetLatestOutcome retrieves the most recent run for a store, nil when the
// store was never synced.
func (s *Store) GetLatestOutcome(ctx context.Context, storeID string) (*models.SyncOutcome, error) {
	var row syncRunRow
	err := s.db.GetContext(ctx, &row,
		"SELECT * FROM sync_runs WHERE store_id = $1 ORDER BY started_at DESC LIMIT 1", storeID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return row.toOutcome()
}

// UpsertProductStatus overwrites the per (store, product) classification.
func (s *Store) UpsertProductStatus(ctx context.Context, entry *models.ProductStatusEntry) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO product_statuses (store_id, product_id, status, current_price, target_price, error_message, last_attempt, last_success)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (store_id, product_id) DO UPDATE
		SET status = EXCLUDED.status,
		    current_price = EXCLUDED.current_price,
		    target_price = EXCLUDED.target_price,
		    error_message = EXCLUDED.error_message,
		    last_attempt = EXCLUDED.last_attempt,
		    last_success = COALESCE(EXCLUDED.last_success, product_statuses.last_success)`,
		entry.StoreID, entry.ProductID, entry.Status,
		entry.CurrentPrice, entry.TargetPrice, entry.ErrorMessage,
		entry.LastAttempt, entry.LastSuccess)
	return err
}

// GetProductStatuses lists the per-product classifications for a store.
func (s *Store) GetProductStatuses(ctx context.Context, storeID string) ([]models.ProductStatusEntry, error) {
	var entries []models.ProductStatusEntry
	err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM product_statuses WHERE store_id = $1 ORDER BY product_id", storeID)
	return entries, err
}
