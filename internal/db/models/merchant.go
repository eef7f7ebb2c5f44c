// Package models - merchant.go defines the Merchant storefront, which is created only
// when a claim is approved.
package models

import (
	"time"

	"github.com/google/uuid"
)

// MerchantStatusActive is the status every newly approved merchant starts with.
const MerchantStatusActive = "active"

// Merchant is a storefront derived from an approved claim.
type Merchant struct {
	ID           uuid.UUID `db:"id" json:"id"`
	ChamberID    uuid.UUID `db:"chamber_id" json:"chamber_id"`
	CMMemberID   uuid.UUID `db:"cm_member_id" json:"cm_member_id"`
	BusinessName string    `db:"business_name" json:"business_name"`
	Slug         string    `db:"slug" json:"slug"`
	Description  *string   `db:"description" json:"description,omitempty"`
	Category     *string   `db:"category" json:"category,omitempty"`
	ContactEmail *string   `db:"contact_email" json:"contact_email,omitempty"`
	Phone        *string   `db:"phone" json:"phone,omitempty"`
	WebsiteURL   *string   `db:"website_url" json:"website_url,omitempty"`
	AddressLine1 *string   `db:"address_line1" json:"address_line1,omitempty"`
	AddressLine2 *string   `db:"address_line2" json:"address_line2,omitempty"`
	City         *string   `db:"city" json:"city,omitempty"`
	State        *string   `db:"state" json:"state,omitempty"`
	Zip          *string   `db:"zip" json:"zip,omitempty"`
	Status       string    `db:"status" json:"status"`

	ApprovedAt *time.Time `db:"approved_at" json:"approved_at,omitempty"`
	ApprovedBy *uuid.UUID `db:"approved_by" json:"approved_by,omitempty"`

	StripeOnboardingComplete bool `db:"stripe_onboarding_complete" json:"stripe_onboarding_complete"`
	StripeChargesEnabled     bool `db:"stripe_charges_enabled" json:"stripe_charges_enabled"`
	FulfillmentPickup        bool `db:"fulfillment_pickup" json:"fulfillment_pickup"`
	FulfillmentDelivery      bool `db:"fulfillment_delivery" json:"fulfillment_delivery"`

	TotalProducts int     `db:"total_products" json:"total_products"`
	TotalOrders   int     `db:"total_orders" json:"total_orders"`
	TotalRevenue  float64 `db:"total_revenue" json:"total_revenue"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}
