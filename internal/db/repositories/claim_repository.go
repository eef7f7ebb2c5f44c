// claim_repository.go implements ClaimRepository for claim_requests, including the
// locking read and guarded state transitions used by the approval transaction.
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

const claimColumns = `
	id, chamber_id, cm_member_id, requested_by, contact_name, contact_email, contact_phone,
	message, status, resolved_by, resolved_at, denial_reason, created_at, updated_at`

// pendingClaimIndex is the partial unique index that allows one pending claim per user.
const pendingClaimIndex = "claim_requests_one_pending_per_user"

// ErrPendingClaimExists is returned by Create when the user already holds a pending claim.
var ErrPendingClaimExists = errors.New("user already has a pending claim")

// ClaimRepository handles database operations for claim requests
type ClaimRepository struct {
	db dbtx
}

// NewClaimRepository creates a new claim repository
func NewClaimRepository(db *sqlx.DB) *ClaimRepository {
	return &ClaimRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *ClaimRepository) WithTx(tx *sqlx.Tx) *ClaimRepository {
	return &ClaimRepository{db: tx}
}

// Create inserts a new claim.
func (r *ClaimRepository) Create(ctx context.Context, claim *models.ClaimRequest) error {
	query := `
		INSERT INTO claim_requests (
			id, chamber_id, cm_member_id, requested_by, contact_name, contact_email, contact_phone,
			message, status, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`

	_, err := r.db.ExecContext(ctx, query,
		claim.ID,
		claim.ChamberID,
		claim.CMMemberID,
		claim.RequestedBy,
		claim.ContactName,
		claim.ContactEmail,
		claim.ContactPhone,
		claim.Message,
		claim.Status,
		claim.CreatedAt,
		claim.UpdatedAt,
	)
	if err != nil {
		if constraint, dup := uniqueViolation(err); dup && constraint == pendingClaimIndex {
			return ErrPendingClaimExists
		}
		return fmt.Errorf("failed to create claim request: %w", err)
	}
	return nil
}

func (r *ClaimRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.ClaimRequest, error) {
	var claim models.ClaimRequest
	err := r.db.GetContext(ctx, &claim, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get claim request: %w", err)
	}
	return &claim, nil
}

// GetByID retrieves a claim by ID. Returns nil, nil when it does not exist.
func (r *ClaimRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.ClaimRequest, error) {
	return r.getOne(ctx, `SELECT`+claimColumns+` FROM claim_requests WHERE id = $1`, id)
}

// GetByIDForUpdate reads a claim and holds a row lock until the transaction ends.
func (r *ClaimRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ClaimRequest, error) {
	return r.getOne(ctx, `SELECT`+claimColumns+` FROM claim_requests WHERE id = $1 FOR UPDATE`, id)
}

// HasPendingForUser reports whether the user holds a pending claim in any chamber.
func (r *ClaimRepository) HasPendingForUser(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.db.QueryRowxContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM claim_requests WHERE requested_by = $1 AND status = 'pending')`,
		userID,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check pending claims: %w", err)
	}
	return exists, nil
}

// claimListRow is the flat scan target for ListByChamber.
type claimListRow struct {
	models.ClaimRequest
	MemberBusinessName string                  `db:"member_business_name"`
	MemberAddressLine1 *string                 `db:"member_address_line1"`
	MemberAddressLine2 *string                 `db:"member_address_line2"`
	MemberCity         *string                 `db:"member_city"`
	MemberState        *string                 `db:"member_state"`
	MemberZip          *string                 `db:"member_zip"`
	MemberStatus       models.MembershipStatus `db:"member_membership_status"`
	MemberCategory     *string                 `db:"member_category"`
}

// ListByChamber returns a chamber's claims joined with their member data, newest first.
func (r *ClaimRepository) ListByChamber(ctx context.Context, chamberID uuid.UUID, status *models.ClaimStatus) ([]models.ClaimWithMemberData, error) {
	query := `
		SELECT c.id, c.chamber_id, c.cm_member_id, c.requested_by, c.contact_name, c.contact_email,
		       c.contact_phone, c.message, c.status, c.resolved_by, c.resolved_at, c.denial_reason,
		       c.created_at, c.updated_at,
		       m.business_name AS member_business_name,
		       m.address_line1 AS member_address_line1,
		       m.address_line2 AS member_address_line2,
		       m.city AS member_city,
		       m.state AS member_state,
		       m.zip AS member_zip,
		       m.membership_status AS member_membership_status,
		       m.category AS member_category
		FROM claim_requests c
		JOIN chambermaster_members m ON m.id = c.cm_member_id
		WHERE c.chamber_id = $1`
	args := []interface{}{chamberID}

	if status != nil {
		query += ` AND c.status = $2`
		args = append(args, *status)
	}
	query += ` ORDER BY c.created_at DESC`

	var rows []claimListRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list claim requests: %w", err)
	}

	claims := make([]models.ClaimWithMemberData, 0, len(rows))
	for _, row := range rows {
		claims = append(claims, models.ClaimWithMemberData{
			ClaimRequest: row.ClaimRequest,
			Member: models.ClaimMemberSummary{
				BusinessName: row.MemberBusinessName,
				Address: models.JoinAddress(
					row.MemberAddressLine1, row.MemberAddressLine2,
					row.MemberCity, row.MemberState, row.MemberZip,
				),
				MembershipStatus: row.MemberStatus,
				Category:         row.MemberCategory,
			},
		})
	}
	return claims, nil
}

func (r *ClaimRepository) resolve(ctx context.Context, query string, id uuid.UUID, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, append([]interface{}{id}, args...)...)
	if err != nil {
		return fmt.Errorf("failed to update claim status: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("claim %s is not pending: %w", id, ErrConflict)
	}
	return nil
}

// MarkApproved moves a pending claim to approved.
func (r *ClaimRepository) MarkApproved(ctx context.Context, id, resolvedBy uuid.UUID, at time.Time) error {
	return r.resolve(ctx, `
		UPDATE claim_requests
		SET status = 'approved', resolved_by = $2, resolved_at = $3, updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, resolvedBy, at)
}

// MarkDenied moves a pending claim to denied with the given reason.
func (r *ClaimRepository) MarkDenied(ctx context.Context, id, resolvedBy uuid.UUID, at time.Time, reason string) error {
	return r.resolve(ctx, `
		UPDATE claim_requests
		SET status = 'denied', resolved_by = $2, resolved_at = $3, denial_reason = $4, updated_at = $3
		WHERE id = $1 AND status = 'pending'
	`, id, resolvedBy, at, reason)
}
