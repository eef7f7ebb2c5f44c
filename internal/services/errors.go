// Package services coordinates repositories, the member directory and outbound
// notifications into the operations exposed over HTTP: triggering a member sync,
// reading sync state and the roster, and moving claims through their lifecycle.
package services

import (
	"errors"
	"time"
)

// ErrorKind classifies a PreconditionError for transport mapping.
type ErrorKind int

const (
	KindValidation ErrorKind = iota + 1
	KindNotFound
	KindForbidden
	KindConflict
	KindRateLimited
)

// PreconditionError is a rejected request with a user-facing reason. Nothing was
// written when one is returned.
type PreconditionError struct {
	Kind    ErrorKind
	Code    string
	Message string

	// RetryAfter is set for KindRateLimited.
	RetryAfter time.Duration
}

func (e *PreconditionError) Error() string { return e.Message }

// Is matches on Code and Message so a copy carrying RetryAfter still matches its sentinel.
func (e *PreconditionError) Is(target error) bool {
	var t *PreconditionError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code && t.Message == e.Message
}

func precondition(kind ErrorKind, code, message string) *PreconditionError {
	return &PreconditionError{Kind: kind, Code: code, Message: message}
}

// Claim lifecycle.
var (
	ErrAlreadyMerchant      = precondition(KindConflict, "ALREADY_MERCHANT", "You already have a merchant account")
	ErrPendingClaimExists   = precondition(KindConflict, "PENDING_CLAIM_EXISTS", "You already have a pending claim request")
	ErrMemberNotFound       = precondition(KindNotFound, "MEMBER_NOT_FOUND", "ChamberMaster member not found")
	ErrAlreadyClaimed       = precondition(KindConflict, "ALREADY_CLAIMED", "This business has already been claimed")
	ErrClaimNotFound        = precondition(KindNotFound, "CLAIM_NOT_FOUND", "Claim request not found")
	ErrClaimResolved        = precondition(KindConflict, "CLAIM_RESOLVED", "Claim has already been resolved")
	ErrDenialReasonRequired = precondition(KindValidation, "VALIDATION_ERROR", "Denial reason is required")
	ErrInvalidClaimStatus   = precondition(KindValidation, "VALIDATION_ERROR", "Invalid claim status")
	ErrContactNameRequired  = precondition(KindValidation, "VALIDATION_ERROR", "contact_name is required")
	ErrInvalidContactEmail  = precondition(KindValidation, "VALIDATION_ERROR", "contact_email must be a valid email address")
	ErrMemberIDRequired     = precondition(KindValidation, "VALIDATION_ERROR", "member_id is required")
	ErrSlugConflict         = precondition(KindConflict, "SLUG_CONFLICT", "Could not reserve a unique merchant slug, please retry")
)

// Chambers and sync.
var (
	ErrChamberIDRequired      = precondition(KindValidation, "VALIDATION_ERROR", "chamber_id is required")
	ErrChamberNotFound        = precondition(KindNotFound, "CHAMBER_NOT_FOUND", "Chamber not found")
	ErrForbidden              = precondition(KindForbidden, "FORBIDDEN", "Forbidden: You do not have access to this chamber")
	ErrDirectoryNotConfigured = precondition(KindValidation, "DIRECTORY_NOT_CONFIGURED", "ChamberMaster credentials are not configured for this chamber")
	ErrInvalidMemberStatus    = precondition(KindValidation, "VALIDATION_ERROR", "Invalid membership status")
	ErrSyncInProgress         = precondition(KindConflict, "SYNC_IN_PROGRESS", "A member sync is already running for this chamber")
	ErrSyncRateLimited        = precondition(KindRateLimited, "SYNC_RATE_LIMITED", "Too many sync requests for this chamber, try again later")
)

func rateLimited(retryAfter time.Duration) error {
	e := *ErrSyncRateLimited
	e.RetryAfter = retryAfter
	return &e
}
