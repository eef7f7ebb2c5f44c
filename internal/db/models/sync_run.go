// Package models - sync_run.go defines the per-invocation audit row written by the
// member reconciliation engine.
package models

import (
	"time"

	"github.com/google/uuid"
)

// SyncTypeChamberMaster tags runs that reconcile against the ChamberMaster directory.
const SyncTypeChamberMaster = "chambermaster"

// SyncRunStatus is the lifecycle state of a sync run.
type SyncRunStatus string

const (
	SyncRunStarted   SyncRunStatus = "started"
	SyncRunCompleted SyncRunStatus = "completed"
	SyncRunFailed    SyncRunStatus = "failed"
)

// SyncRun is one audited execution of the reconciliation engine. A run left in
// "started" never reached a terminal write and is considered stuck.
type SyncRun struct {
	ID                 uuid.UUID     `db:"id" json:"id"`
	ChamberID          uuid.UUID     `db:"chamber_id" json:"chamber_id"`
	SyncType           string        `db:"sync_type" json:"sync_type"`
	Status             SyncRunStatus `db:"status" json:"status"`
	MembersAdded       int           `db:"members_added" json:"members_added"`
	MembersUpdated     int           `db:"members_updated" json:"members_updated"`
	MembersDeactivated int           `db:"members_deactivated" json:"members_deactivated"`
	ErrorMessage       *string       `db:"error_message" json:"error_message,omitempty"`
	StartedAt          time.Time     `db:"started_at" json:"started_at"`
	CompletedAt        *time.Time    `db:"completed_at" json:"completed_at,omitempty"`
}

// IsTerminal reports whether the run has reached completed or failed.
func (r *SyncRun) IsTerminal() bool {
	return r.Status == SyncRunCompleted || r.Status == SyncRunFailed
}

// SyncStatus is the read model returned for a chamber's sync state.
type SyncStatus struct {
	LastSyncAt     *time.Time `json:"last_sync_at"`
	LastSyncResult *SyncRun   `json:"last_sync_result"`
}
