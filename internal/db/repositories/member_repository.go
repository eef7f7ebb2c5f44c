// member_repository.go implements MemberRepository for chambermaster_members, the local
// copy of each chamber's directory roster.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/GarretWalker/marketplace-management/internal/db/models"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
)

const memberColumns = `
	id, chamber_id, cm_member_id, business_name, contact_name, email, phone,
	address_line1, address_line2, city, state, zip, website_url, description, category,
	membership_status, member_status_code, is_claimed, claimed_by, claimed_at,
	last_synced_at, created_at, updated_at`

// MemberRepository handles database operations for chamber member records
type MemberRepository struct {
	db dbtx
}

// NewMemberRepository creates a new member repository
func NewMemberRepository(db *sqlx.DB) *MemberRepository {
	return &MemberRepository{db: db}
}

// WithTx returns a copy of the repository bound to tx.
func (r *MemberRepository) WithTx(tx *sqlx.Tx) *MemberRepository {
	return &MemberRepository{db: tx}
}

func (r *MemberRepository) getOne(ctx context.Context, query string, args ...interface{}) (*models.ChamberMember, error) {
	var member models.ChamberMember
	err := r.db.GetContext(ctx, &member, query, args...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get chamber member: %w", err)
	}
	return &member, nil
}

// GetByExternalID looks a member up by its composite key (chamber, directory id).
func (r *MemberRepository) GetByExternalID(ctx context.Context, chamberID uuid.UUID, cmMemberID string) (*models.ChamberMember, error) {
	return r.getOne(ctx,
		`SELECT`+memberColumns+` FROM chambermaster_members WHERE chamber_id = $1 AND cm_member_id = $2`,
		chamberID, cmMemberID,
	)
}

// GetInChamber retrieves a member by local ID, scoped to the chamber that owns it.
func (r *MemberRepository) GetInChamber(ctx context.Context, chamberID, memberID uuid.UUID) (*models.ChamberMember, error) {
	return r.getOne(ctx,
		`SELECT`+memberColumns+` FROM chambermaster_members WHERE id = $1 AND chamber_id = $2`,
		memberID, chamberID,
	)
}

// GetByIDForUpdate reads a member and holds a row lock until the surrounding
// transaction ends. Only meaningful on a repository bound with WithTx.
func (r *MemberRepository) GetByIDForUpdate(ctx context.Context, id uuid.UUID) (*models.ChamberMember, error) {
	return r.getOne(ctx,
		`SELECT`+memberColumns+` FROM chambermaster_members WHERE id = $1 FOR UPDATE`,
		id,
	)
}

// Insert creates a member row first seen during a sync.
func (r *MemberRepository) Insert(ctx context.Context, m *models.ChamberMember) error {
	query := `
		INSERT INTO chambermaster_members (
			id, chamber_id, cm_member_id, business_name, contact_name, email, phone,
			address_line1, address_line2, city, state, zip, website_url, description, category,
			membership_status, member_status_code, is_claimed, last_synced_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, FALSE, $18, $19, $19)
	`

	_, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.ChamberID,
		m.CMMemberID,
		m.BusinessName,
		m.ContactName,
		m.Email,
		m.Phone,
		m.AddressLine1,
		m.AddressLine2,
		m.City,
		m.State,
		m.Zip,
		m.WebsiteURL,
		m.Description,
		m.Category,
		m.MembershipStatus,
		m.MemberStatusCode,
		m.LastSyncedAt,
		m.CreatedAt,
	)
	if err != nil {
		if _, dup := uniqueViolation(err); dup {
			return fmt.Errorf("member %s already exists in chamber %s: %w", m.CMMemberID, m.ChamberID, ErrConflict)
		}
		return fmt.Errorf("failed to insert chamber member: %w", err)
	}
	return nil
}

// UpdateFromDirectory overwrites the directory-owned columns of an existing member.
// is_claimed, claimed_by and claimed_at are never written here.
func (r *MemberRepository) UpdateFromDirectory(ctx context.Context, m *models.ChamberMember) error {
	query := `
		UPDATE chambermaster_members
		SET business_name = $2,
		    contact_name = $3,
		    email = $4,
		    phone = $5,
		    address_line1 = $6,
		    address_line2 = $7,
		    city = $8,
		    state = $9,
		    zip = $10,
		    website_url = $11,
		    description = $12,
		    category = $13,
		    membership_status = $14,
		    member_status_code = $15,
		    last_synced_at = $16,
		    updated_at = $16
		WHERE id = $1
	`

	result, err := r.db.ExecContext(ctx, query,
		m.ID,
		m.BusinessName,
		m.ContactName,
		m.Email,
		m.Phone,
		m.AddressLine1,
		m.AddressLine2,
		m.City,
		m.State,
		m.Zip,
		m.WebsiteURL,
		m.Description,
		m.Category,
		m.MembershipStatus,
		m.MemberStatusCode,
		m.LastSyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update chamber member: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("chamber member %s: %w", m.ID, ErrNotFound)
	}
	return nil
}

// MarkClaimed flips the claim-owned fields. It refuses to re-claim a member.
func (r *MemberRepository) MarkClaimed(ctx context.Context, id, claimedBy uuid.UUID, at time.Time) error {
	query := `
		UPDATE chambermaster_members
		SET is_claimed = TRUE, claimed_by = $2, claimed_at = $3, updated_at = $3
		WHERE id = $1 AND is_claimed = FALSE
	`

	result, err := r.db.ExecContext(ctx, query, id, claimedBy, at)
	if err != nil {
		return fmt.Errorf("failed to mark member as claimed: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("chamber member %s missing or already claimed: %w", id, ErrConflict)
	}
	return nil
}

// escapeLike escapes the LIKE wildcards in s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns one page of a chamber's roster ordered by business name, plus the total
// number of rows matching the filter.
func (r *MemberRepository) List(ctx context.Context, chamberID uuid.UUID, filter models.MemberFilter) ([]models.ChamberMember, int, error) {
	where := ` WHERE chamber_id = $1`
	args := []interface{}{chamberID}
	paramIndex := 2

	if filter.Status != nil {
		where += fmt.Sprintf(` AND membership_status = $%d`, paramIndex)
		args = append(args, *filter.Status)
		paramIndex++
	}

	if filter.IsClaimed != nil {
		where += fmt.Sprintf(` AND is_claimed = $%d`, paramIndex)
		args = append(args, *filter.IsClaimed)
		paramIndex++
	}

	if search := strings.TrimSpace(filter.Search); search != "" {
		where += fmt.Sprintf(` AND business_name ILIKE $%d`, paramIndex)
		args = append(args, "%"+escapeLike(search)+"%")
		paramIndex++
	}

	var total int
	if err := r.db.QueryRowxContext(ctx, `SELECT COUNT(*) FROM chambermaster_members`+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count chamber members: %w", err)
	}

	query := `SELECT` + memberColumns + ` FROM chambermaster_members` + where +
		fmt.Sprintf(` ORDER BY business_name ASC, id ASC LIMIT $%d OFFSET $%d`, paramIndex, paramIndex+1)
	args = append(args, filter.Limit, filter.Offset)

	members := []models.ChamberMember{}
	if err := r.db.SelectContext(ctx, &members, query, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list chamber members: %w", err)
	}

	return members, total, nil
}
