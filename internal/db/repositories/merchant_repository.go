// merchant_repository.go implements MerchantRepository. Merchants are only ever
// inserted by claim approval.
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

const merchantSlugConstraint = "merchants_slug_key"

// ErrSlugTaken is returned by Create when another merchant already holds the slug.
var ErrSlugTaken = errors.New("merchant slug already taken")

// MerchantRepository handles database operations for merchants
type MerchantRepository struct {
	db dbtx
}

// NewMerchantRepository creates a new merchant repository
func NewMerchantRepository(db *sqlx.DB) *MerchantRepository {
	return &MerchantRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *MerchantRepository) WithTx(tx *sqlx.Tx) *MerchantRepository {
	return &MerchantRepository{db: tx}
}

// SlugsLike returns every existing slug equal to base or of the form base-<suffix>.
func (r *MerchantRepository) SlugsLike(ctx context.Context, base string) ([]string, error) {
	slugs := []string{}
	err := r.db.SelectContext(ctx, &slugs,
		`SELECT slug FROM merchants WHERE slug = $1 OR slug LIKE $2`,
		base, escapeLike(base)+"-%",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to probe merchant slugs: %w", err)
	}
	return slugs, nil
}

// Create inserts a merchant with zeroed operational counters.
func (r *MerchantRepository) Create(ctx context.Context, m *models.Merchant) error {
	query := `
		INSERT INTO merchants (
			id, chamber_id, cm_member_id, business_name, slug, description, category,
			contact_email, phone, website_url, address_line1, address_line2, city, state, zip,
			status, approved_at, approved_by, total_products, total_orders, total_revenue,
			created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, 0, 0, 0, $19, $19)
	`

	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.ChamberID,
		m.CMMemberID,
		m.BusinessName,
		m.Slug,
		m.Description,
		m.Category,
		m.ContactEmail,
		m.Phone,
		m.WebsiteURL,
		m.AddressLine1,
		m.AddressLine2,
		m.City,
		m.State,
		m.Zip,
		m.Status,
		m.ApprovedAt,
		m.ApprovedBy,
		m.CreatedAt,
	)
	if err != nil {
		if constraint, dup := uniqueViolation(err); dup && constraint == merchantSlugConstraint {
			return fmt.Errorf("slug %q: %w", m.Slug, ErrSlugTaken)
		}
		return fmt.Errorf("failed to create merchant: %w", err)
	}
	return nil
}

// GetByID retrieves a merchant by ID. Returns nil, nil when it does not exist.
func (r *MerchantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Merchant, error) {
	query := `
		SELECT id, chamber_id, cm_member_id, business_name, slug, description, category,
		       contact_email, phone, website_url, address_line1, address_line2, city, state, zip,
		       status, approved_at, approved_by, stripe_onboarding_complete, stripe_charges_enabled,
		       fulfillment_pickup, fulfillment_delivery, total_products, total_orders, total_revenue,
		       created_at, updated_at
		FROM merchants
		WHERE id = $1
	`

	var merchant models.Merchant
	err := r.db.GetContext(ctx, &merchant, query, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant: %w", err)
	}
	return &merchant, nil
}
