// Package models - chamber_member.go defines the local copy of a directory member
// (ChamberMemberRecord) and the filters used to page through a chamber's roster.
package models

import (
	"time"

	"github.com/google/uuid"
)

// MembershipStatus is the simplified tri-state status derived from a directory status code.
type MembershipStatus string

const (
	MembershipActive      MembershipStatus = "active"
	MembershipInactive    MembershipStatus = "inactive"
	MembershipProspective MembershipStatus = "prospective"
)

// Valid reports whether s is one of the three known statuses.
func (s MembershipStatus) Valid() bool {
	switch s {
	case MembershipActive, MembershipInactive, MembershipProspective:
		return true
	}
	return false
}

// ChamberMember is one directory business as stored for a chamber.
// Unique on (ChamberID, CMMemberID).
type ChamberMember struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ChamberID    uuid.UUID `db:"chamber_id" json:"chamber_id"`
	CMMemberID   string    `db:"cm_member_id" json:"cm_member_id"`
	BusinessName string    `db:"business_name" json:"business_name"`
	ContactName  *string   `db:"contact_name" json:"contact_name,omitempty"`
	Email        *string   `db:"email" json:"email,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	AddressLine1 *string   `db:"address_line1" json:"address_line1,omitempty"`
	AddressLine2 *string   `db:"address_line2" json:"address_line2,omitempty"`
	City         *string   `db:"city" json:"city,omitempty"`
	State        *string   `db:"state" json:"state,omitempty"`
	Zip          *string   `db:"zip" json:"zip,omitempty"`
	WebsiteURL   *string   `db:"website_url" json:"website_url,omitempty"`
	Description  *string   `db:"description" json:"description,omitempty"`
	Category     *string   `db:"category" json:"category,omitempty"`

	MembershipStatus MembershipStatus `db:"membership_status" json:"membership_status"`
	MemberStatusCode int              `db:"member_status_code" json:"member_status_code"`

	// Claim-owned fields. Written only by claim approval.
	IsClaimed bool       `db:"is_claimed" json:"is_claimed"`
	ClaimedBy *uuid.UUID `db:"claimed_by" json:"claimed_by,omitempty"`
	ClaimedAt *time.Time `db:"claimed_at" json:"claimed_at,omitempty"`

	LastSyncedAt time.Time `db:"last_synced_at" json:"last_synced_at"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// MemberFilter narrows a roster listing. Zero values mean "no filter".
type MemberFilter struct {
	Status    *MembershipStatus
	IsClaimed *bool
	Search    string
	Limit     int
	Offset    int
}
