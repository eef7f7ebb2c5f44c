// Package models - profile.go defines the user profile and its marketplace role.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Role is the marketplace role attached to a profile.
type Role string

const (
	RoleChamberAdmin Role = "chamber_admin"
	RoleMerchant     Role = "merchant"
	RoleVisitor      Role = "visitor"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleChamberAdmin, RoleMerchant, RoleVisitor:
		return true
	}
	return false
}

// Profile is the stored identity record for an authenticated user.
type Profile struct {
	ID         uuid.UUID  `db:"id" json:"id"`
	Email      string     `db:"email" json:"email"`
	FullName   *string    `db:"full_name" json:"full_name,omitempty"`
	Role       Role       `db:"role" json:"role"`
	ChamberID  *uuid.UUID `db:"chamber_id" json:"chamber_id,omitempty"`
	MerchantID *uuid.UUID `db:"merchant_id" json:"merchant_id,omitempty"`
	CreatedAt  time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time  `db:"updated_at" json:"updated_at"`
}
