package models

import (
	"time"

	"github.com/google/uuid"
)

// NotificationTypeClaimApproved is written for the claimant when approval succeeds.
const NotificationTypeClaimApproved = "claim_approved"

// Notification is an in-app message addressed to one profile.
type Notification struct {
	ID          uuid.UUID  `db:"id" json:"id"`
	RecipientID uuid.UUID  `db:"recipient_id" json:"recipient_id"`
	Type        string     `db:"type" json:"type"`
	Title       string     `db:"title" json:"title"`
	Message     string     `db:"message" json:"message"`
	Link        *string    `db:"link" json:"link,omitempty"`
	ClaimID     *uuid.UUID `db:"claim_id" json:"claim_id,omitempty"`
	MerchantID  *uuid.UUID `db:"merchant_id" json:"merchant_id,omitempty"`
	IsRead      bool       `db:"is_read" json:"is_read"`
	CreatedAt   time.Time  `db:"created_at" json:"created_at"`
}
