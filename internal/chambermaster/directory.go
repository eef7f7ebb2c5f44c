// Package chambermaster is the client for the ChamberMaster member directory. Two
// interchangeable backends exist: the live HTTP API and a local fixture document.
// Which one is used is decided by configuration, never by the caller.
package chambermaster

import (
	"context"
	"errors"
	"fmt"

	"github.com/GarretWalker/marketplace-management/internal/config"
)

// ErrRequestFailed is the single error every directory failure unwraps to.
var ErrRequestFailed = errors.New("directory request failed")

// RequestError describes a failed directory call. Its message never includes the
// underlying cause, which may carry URLs or credentials; the cause is logged where
// it happens and kept in Cause for callers that need it.
type RequestError struct {
	Op     string
	Reason string
	Cause  error
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s (%s: %s)", ErrRequestFailed, e.Op, e.Reason)
}

func (e *RequestError) Unwrap() error { return ErrRequestFailed }

// Account identifies one chamber's directory tenancy.
type Account struct {
	ID      string
	APIKey  string
	BaseURL string
}

// Directory fetches member records for an account.
type Directory interface {
	// FetchDetailed returns every member in the detailed shape.
	FetchDetailed(ctx context.Context, acct Account) ([]DetailedMember, error)
	// FetchList returns members in the list shape, restricted to one status when
	// statusFilter is non-nil.
	FetchList(ctx context.Context, acct Account, statusFilter *Status) ([]ListMember, error)
}

// NewDirectory builds the backend selected by configuration.
func NewDirectory(cfg config.ChamberMasterConfig) (Directory, error) {
	if cfg.Mock {
		return NewFixtureDirectory(cfg.MockPath)
	}
	return NewHTTPDirectory(cfg.DefaultBaseURL, cfg.Timeout), nil
}
