// Package models - chamber.go defines the Chamber tenant model and the request used
// to change its directory (ChamberMaster) connection settings.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Chamber is a chamber-of-commerce tenant. It owns its member records, sync runs and merchants.
type Chamber struct {
	ID           uuid.UUID `db:"id" json:"id"`
	Name         string    `db:"name" json:"name"`
	Slug         string    `db:"slug" json:"slug"`
	City         *string   `db:"city" json:"city,omitempty"`
	State        *string   `db:"state" json:"state,omitempty"`
	ContactEmail *string   `db:"contact_email" json:"contact_email,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	WebsiteURL   *string   `db:"website_url" json:"website_url,omitempty"`

	// Directory connection. The API key is stored sealed and never serialized.
	AssociationID *string    `db:"chambermaster_association_id" json:"chambermaster_association_id,omitempty"`
	APIKey        *string    `db:"chambermaster_api_key" json:"-"`
	BaseURL       *string    `db:"chambermaster_base_url" json:"chambermaster_base_url,omitempty"`
	SyncEnabled   bool       `db:"chambermaster_sync_enabled" json:"chambermaster_sync_enabled"`
	LastSyncAt    *time.Time `db:"chambermaster_last_sync_at" json:"chambermaster_last_sync_at,omitempty"`

	IsActive  bool      `db:"is_active" json:"is_active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`

	HasAPIKey bool `db:"-" json:"has_api_key"`
}

// DirectoryConfigured reports whether the chamber carries enough settings to reach the directory.
func (c *Chamber) DirectoryConfigured() bool {
	return c.AssociationID != nil && *c.AssociationID != "" &&
		c.APIKey != nil && *c.APIKey != ""
}

// UpdateDirectorySettingsRequest changes a chamber's directory connection.
// Nil fields are left untouched; an empty APIKey clears the stored key.
type UpdateDirectorySettingsRequest struct {
	AssociationID *string `json:"chambermaster_association_id,omitempty" binding:"omitempty,min=1,max=64"`
	APIKey        *string `json:"chambermaster_api_key,omitempty" binding:"omitempty,max=512"`
	BaseURL       *string `json:"chambermaster_base_url,omitempty" binding:"omitempty,url"`
	SyncEnabled   *bool   `json:"chambermaster_sync_enabled,omitempty"`
}
