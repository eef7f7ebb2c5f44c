// chamber_repository.go implements ChamberRepository: chamber lookups, directory
// connection settings and the last-sync timestamp.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GarretWalker/marketplace-management/internal/db/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const chamberColumns = `
	id, name, slug, city, state, contact_email, phone, website_url,
	chambermaster_association_id, chambermaster_api_key, chambermaster_base_url,
	chambermaster_sync_enabled, chambermaster_last_sync_at, is_active, created_at, updated_at`

// ChamberRepository handles database operations for chambers
type ChamberRepository struct {
	db dbtx
}

// NewChamberRepository creates a new chamber repository
func NewChamberRepository(db *sqlx.DB) *ChamberRepository {
	return &ChamberRepository{db: db}
}

// GetByID retrieves a chamber by ID. Returns nil, nil when it does not exist.
func (r *ChamberRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Chamber, error) {
	query := `SELECT` + chamberColumns + ` FROM chambers WHERE id = $1`

	var chamber models.Chamber
	err := r.db.GetContext(ctx, &chamber, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chamber: %w", err)
	}

	chamber.HasAPIKey = chamber.APIKey != nil && *chamber.APIKey != ""
	return &chamber, nil
}

// UpdateDirectorySettings persists the chamber's directory connection fields.
// The API key must already be sealed by the caller.
func (r *ChamberRepository) UpdateDirectorySettings(ctx context.Context, chamber *models.Chamber) error {
	query := `
		UPDATE chambers
		SET chambermaster_association_id = $2,
		    chambermaster_api_key = $3,
		    chambermaster_base_url = $4,
		    chambermaster_sync_enabled = $5,
		    updated_at = $6
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		chamber.ID,
		chamber.AssociationID,
		chamber.APIKey,
		chamber.BaseURL,
		chamber.SyncEnabled,
		chamber.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update chamber directory settings: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("chamber %s: %w", chamber.ID, ErrNotFound)
	}
	return nil
}

// TouchLastSync stamps the chamber's last successful directory sync time.
func (r *ChamberRepository) TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE chambers SET chambermaster_last_sync_at = $2, updated_at = $2 WHERE id = $1`,
		id, at,
	)
	if err != nil {
		return fmt.Errorf("failed to update chamber last sync: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("chamber %s: %w", id, ErrNotFound)
	}
	return nil
}

// GetLastSyncAt returns only the chamber's last sync timestamp.
// The boolean is false when the chamber does not exist.
func (r *ChamberRepository) GetLastSyncAt(ctx context.Context, id uuid.UUID) (*time.Time, bool, error) {
	var lastSync sql.NullTime
	err := r.db.QueryRowxContext(ctx,
		`SELECT chambermaster_last_sync_at FROM chambers WHERE id = $1`, id,
	).Scan(&lastSync)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to get chamber last sync: %w", err)
	}
	if !lastSync.Valid {
		return nil, true, nil
	}
	return &lastSync.Time, true, nil
}
