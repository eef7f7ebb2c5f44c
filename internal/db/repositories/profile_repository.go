// profile_repository.go implements ProfileRepository for the user profiles that carry
// role, chamber and merchant associations.
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

// ProfileRepository handles database operations for profiles
type ProfileRepository struct {
	db dbtx
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sqlx.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *ProfileRepository) WithTx(tx *sqlx.Tx) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

// GetByID retrieves a profile by ID. Returns nil, nil when it does not exist.
func (r *ProfileRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error) {
	query := `
		SELECT id, email, full_name, role, chamber_id, merchant_id, created_at, updated_at
		FROM profiles
		WHERE id = $1
	`

	var profile models.Profile
	err := r.db.GetContext(ctx, &profile, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return &profile, nil
}

// LinkMerchant attaches a merchant to the profile. Visitors are promoted to the
// merchant role; other roles are kept.
func (r *ProfileRepository) LinkMerchant(ctx context.Context, profileID, merchantID uuid.UUID, at time.Time) error {
	query := `
		UPDATE profiles
		SET merchant_id = $2,
		    role = CASE WHEN role = 'visitor' THEN 'merchant' ELSE role END,
		    updated_at = $3
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query, profileID, merchantID, at)
	if err != nil {
		return fmt.Errorf("failed to link profile to merchant: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("profile %s: %w", profileID, ErrNotFound)
	}
	return nil
}
