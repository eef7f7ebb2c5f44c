// sync_run_repository.go implements SyncRunRepository for the sync_log audit table.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/GarretWalker/marketplace-management/internal/db/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

// SyncRunRepository handles database operations for sync runs
type SyncRunRepository struct {
	db dbtx
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db *sqlx.DB) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

// Create inserts a run in its initial state.
func (r *SyncRunRepository) Create(ctx context.Context, run *models.SyncRun) error {
	query := `
		INSERT INTO sync_log (
			id, chamber_id, sync_type, status, members_added, members_updated, members_deactivated, started_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.ChamberID,
		run.SyncType,
		run.Status,
		run.MembersAdded,
		run.MembersUpdated,
		run.MembersDeactivated,
		run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create sync run: %w", err)
	}
	return nil
}

// Finish writes the terminal state of a run. Only a run still in "started" can be
// finished, so each run transitions exactly once.
func (r *SyncRunRepository) Finish(ctx context.Context, run *models.SyncRun) error {
	query := `
		UPDATE sync_log
		SET status = $2, members_added = $3, members_updated = $4, members_deactivated = $5,
		    error_message = $6, completed_at = $7
		WHERE id = $1 AND status = 'started'
	`

	result, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.Status,
		run.MembersAdded,
		run.MembersUpdated,
		run.MembersDeactivated,
		run.ErrorMessage,
		run.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to finish sync run: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("sync run %s is not in started state: %w", run.ID, ErrConflict)
	}
	return nil
}

// GetLatest returns the most recently started run for a chamber, or nil when none exist.
func (r *SyncRunRepository) GetLatest(ctx context.Context, chamberID uuid.UUID) (*models.SyncRun, error) {
	query := `
		SELECT id, chamber_id, sync_type, status, members_added, members_updated, members_deactivated,
		       error_message, started_at, completed_at
		FROM sync_log
		WHERE chamber_id = $1
		ORDER BY started_at DESC
		LIMIT 1
	`

	var run models.SyncRun
	err := r.db.GetContext(ctx, &run, query, chamberID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest sync run: %w", err)
	}
	return &run, nil
}
