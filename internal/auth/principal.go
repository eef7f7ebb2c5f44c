package auth

import (
	"github.com/google/uuid"

	"github.com/GarretWalker/marketplace-management/internal/db/models"
)

// Principal is the authenticated caller, resolved from the token subject and
// the caller's profile row.
type Principal struct {
	UserID     uuid.UUID
	Email      string
	Role       models.Role
	ChamberID  *uuid.UUID
	MerchantID *uuid.UUID
}

// PrincipalFromProfile builds a Principal from a loaded profile.
func PrincipalFromProfile(p *models.Profile) Principal {
	return Principal{
		UserID:     p.ID,
		Email:      p.Email,
		Role:       p.Role,
		ChamberID:  p.ChamberID,
		MerchantID: p.MerchantID,
	}
}

// HasRole reports whether the principal holds any of roles.
func (p Principal) HasRole(roles ...models.Role) bool {
	for _, r := range roles {
		if p.Role == r {
			return true
		}
	}
	return false
}

// AdministersChamber reports whether the principal is a chamber admin of chamberID.
func (p Principal) AdministersChamber(chamberID uuid.UUID) bool {
	return p.Role == models.RoleChamberAdmin && p.ChamberID != nil && *p.ChamberID == chamberID
}
