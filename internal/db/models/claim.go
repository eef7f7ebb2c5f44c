// Package models - claim.go defines ClaimRequest, the ownership claim a user files
// against an unclaimed chamber member, plus its request and listing shapes.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// ClaimStatus represents the state of a claim request. approved and denied are terminal.
type ClaimStatus string

const (
	ClaimStatusPending  ClaimStatus = "pending"
	ClaimStatusApproved ClaimStatus = "approved"
	ClaimStatusDenied   ClaimStatus = "denied"
)

// Valid reports whether s is a known claim status.
func (s ClaimStatus) Valid() bool {
	switch s {
	case ClaimStatusPending, ClaimStatusApproved, ClaimStatusDenied:
		return true
	}
	return false
}

// ClaimRequest is a user's request to take ownership of a chamber member record.
type ClaimRequest struct {
	ID           uuid.UUID   `db:"id" json:"id"`
	ChamberID    uuid.UUID   `db:"chamber_id" json:"chamber_id"`
	CMMemberID   uuid.UUID   `db:"cm_member_id" json:"cm_member_id"`
	RequestedBy  uuid.UUID   `db:"requested_by" json:"requested_by"`
	ContactName  string      `db:"contact_name" json:"contact_name"`
	ContactEmail string      `db:"contact_email" json:"contact_email"`
	ContactPhone *string     `db:"contact_phone" json:"contact_phone,omitempty"`
	Message      *string     `db:"message" json:"message,omitempty"`
	Status       ClaimStatus `db:"status" json:"status"`

	ResolvedBy   *uuid.UUID `db:"resolved_by" json:"resolved_by,omitempty"`
	ResolvedAt   *time.Time `db:"resolved_at" json:"resolved_at,omitempty"`
	DenialReason *string    `db:"denial_reason" json:"denial_reason,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// ClaimMemberSummary is the slice of member data shown next to a claim.
type ClaimMemberSummary struct {
	BusinessName     string           `json:"business_name"`
	Address          string           `json:"address"`
	MembershipStatus MembershipStatus `json:"membership_status"`
	Category         *string          `json:"category,omitempty"`
}

// ClaimWithMemberData is a claim joined with the member it targets.
type ClaimWithMemberData struct {
	ClaimRequest
	Member ClaimMemberSummary `json:"member"`
}

// CreateClaimRequest is the body of POST /api/v1/claims.
type CreateClaimRequest struct {
	ChamberID    string  `json:"chamber_id"`
	MemberID     string  `json:"member_id"`
	ContactName  string  `json:"contact_name" binding:"max=255"`
	ContactEmail string  `json:"contact_email" binding:"max=255"`
	ContactPhone *string `json:"contact_phone,omitempty" binding:"omitempty,max=50"`
	Message      *string `json:"message,omitempty" binding:"omitempty,max=2000"`
}

// DenyClaimRequest is the body of POST /api/v1/claims/:id/deny.
type DenyClaimRequest struct {
	Reason string `json:"reason" binding:"max=2000"`
}

// JoinAddress joins the non-empty address parts with ", ".
func JoinAddress(parts ...*string) string {
	kept := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == nil {
			continue
		}
		if s := strings.TrimSpace(*p); s != "" {
			kept = append(kept, s)
		}
	}
	return strings.Join(kept, ", ")
}
