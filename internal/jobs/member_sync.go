// Package jobs contains the member reconciliation engine and the locks that keep
// one chamber from being synced twice at once.
//
// A sync is idempotent: re-running it against unchanged directory data rewrites
// the same rows and produces no duplicates.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/GarretWalker/marketplace-management/internal/chambermaster"
	"github.com/GarretWalker/marketplace-management/internal/db/models"
	"github.com/GarretWalker/marketplace-management/internal/db/repositories"
	"github.com/GarretWalker/marketplace-management/internal/telemetry"
)

// ErrDirectoryUnavailable is returned when both the detailed and the list fetch fail.
var ErrDirectoryUnavailable = errors.New("member directory unavailable")

// finishTimeout bounds the terminal sync_log write, which runs even if the
// triggering context was cancelled.
const finishTimeout = 30 * time.Second

// MemberStore is the subset of the member repository the engine writes through.
type MemberStore interface {
	GetByExternalID(ctx context.Context, chamberID uuid.UUID, cmMemberID string) (*models.ChamberMember, error)
	Insert(ctx context.Context, m *models.ChamberMember) error
	UpdateFromDirectory(ctx context.Context, m *models.ChamberMember) error
}

// SyncRunStore records sync_log rows.
type SyncRunStore interface {
	Create(ctx context.Context, run *models.SyncRun) error
	Finish(ctx context.Context, run *models.SyncRun) error
}

// ChamberStamper records a chamber's last successful sync time.
type ChamberStamper interface {
	TouchLastSync(ctx context.Context, id uuid.UUID, at time.Time) error
}

// SyncResult summarises one run. Deactivated is a subset of Updated.
type SyncResult struct {
	RunID       uuid.UUID `json:"sync_run_id"`
	Added       int       `json:"added"`
	Updated     int       `json:"updated"`
	Deactivated int       `json:"deactivated"`
	Skipped     int       `json:"skipped"`
}

// MemberSyncJob reconciles a chamber's stored members against the directory.
type MemberSyncJob struct {
	directory chambermaster.Directory
	members   MemberStore
	runs      SyncRunStore
	chambers  ChamberStamper
	now       func() time.Time
}

// NewMemberSyncJob creates a reconciliation engine.
func NewMemberSyncJob(directory chambermaster.Directory, members MemberStore, runs SyncRunStore, chambers ChamberStamper) *MemberSyncJob {
	return &MemberSyncJob{
		directory: directory,
		members:   members,
		runs:      runs,
		chambers:  chambers,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Reconcile pulls every member of acct from the directory and upserts them under
// chamberID. The sync_log row is written before any member is touched; if that
// write fails nothing else happens.
//
// Per-member write failures are logged and skipped. A directory outage, a
// cancelled context or a failure to stamp the chamber fails the run.
func (j *MemberSyncJob) Reconcile(ctx context.Context, chamberID uuid.UUID, acct chambermaster.Account) (SyncResult, error) {
	started := j.now()
	run := &models.SyncRun{
		ID:        uuid.New(),
		ChamberID: chamberID,
		SyncType:  models.SyncTypeChamberMaster,
		Status:    models.SyncRunStarted,
		StartedAt: started,
	}
	if err := j.runs.Create(ctx, run); err != nil {
		return SyncResult{}, fmt.Errorf("failed to create sync run: %w", err)
	}

	log := slog.With("chamber_id", chamberID, "sync_run_id", run.ID)
	log.InfoContext(ctx, "member sync started")

	result := SyncResult{RunID: run.ID}
	runErr := j.reconcileMembers(ctx, log, chamberID, acct, &result)
	if runErr == nil {
		if err := j.chambers.TouchLastSync(ctx, chamberID, j.now()); err != nil {
			runErr = fmt.Errorf("failed to update chamber last sync time: %w", err)
		}
	}

	if err := j.finish(ctx, run, result, runErr); err != nil {
		log.ErrorContext(ctx, "failed to record sync run outcome, run left in started state", "error", err)
		if runErr == nil {
			runErr = fmt.Errorf("failed to record sync run outcome: %w", err)
		}
	}

	telemetry.MemberSyncDuration.Observe(time.Since(started).Seconds())
	if runErr != nil {
		telemetry.MemberSyncRunsTotal.WithLabelValues(string(models.SyncRunFailed)).Inc()
		log.WarnContext(ctx, "member sync failed", "error", runErr,
			"added", result.Added, "updated", result.Updated, "skipped", result.Skipped)
		return result, runErr
	}

	telemetry.MemberSyncRunsTotal.WithLabelValues(string(models.SyncRunCompleted)).Inc()
	log.InfoContext(ctx, "member sync completed",
		"added", result.Added, "updated", result.Updated,
		"deactivated", result.Deactivated, "skipped", result.Skipped)
	return result, nil
}

func (j *MemberSyncJob) reconcileMembers(ctx context.Context, log *slog.Logger, chamberID uuid.UUID, acct chambermaster.Account, result *SyncResult) error {
	fetched, err := j.fetch(ctx, log, acct)
	if err != nil {
		return err
	}

	for _, m := range fetched {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("sync interrupted: %w", err)
		}

		mapped := chambermaster.Normalize(m)
		if mapped.ExternalID == "" {
			log.WarnContext(ctx, "skipping directory member without an id", "business_name", mapped.BusinessName)
			result.Skipped++
			telemetry.MemberSyncMembersTotal.WithLabelValues("skipped").Inc()
			continue
		}

		outcome, err := j.upsert(ctx, chamberID, mapped)
		if err != nil {
			log.WarnContext(ctx, "failed to write member, skipping",
				"cm_member_id", mapped.ExternalID, "error", err)
			result.Skipped++
			telemetry.MemberSyncMembersTotal.WithLabelValues("skipped").Inc()
			continue
		}

		switch outcome {
		case outcomeAdded:
			result.Added++
			telemetry.MemberSyncMembersTotal.WithLabelValues("added").Inc()
		case outcomeDeactivated:
			result.Deactivated++
			telemetry.MemberSyncMembersTotal.WithLabelValues("deactivated").Inc()
			fallthrough
		case outcomeUpdated:
			result.Updated++
			telemetry.MemberSyncMembersTotal.WithLabelValues("updated").Inc()
		}
	}
	return nil
}

// fetch prefers the detailed shape and falls back to the active-members list.
func (j *MemberSyncJob) fetch(ctx context.Context, log *slog.Logger, acct chambermaster.Account) ([]chambermaster.Member, error) {
	detailed, err := j.directory.FetchDetailed(ctx, acct)
	if err == nil {
		out := make([]chambermaster.Member, 0, len(detailed))
		for _, d := range detailed {
			out = append(out, d)
		}
		return out, nil
	}

	log.WarnContext(ctx, "detailed member fetch failed, falling back to active member list", "error", err)
	telemetry.MemberSyncDirectoryFallbacksTotal.Inc()

	active := chambermaster.StatusActive
	list, listErr := j.directory.FetchList(ctx, acct, &active)
	if listErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrDirectoryUnavailable, listErr)
	}

	out := make([]chambermaster.Member, 0, len(list))
	for _, l := range list {
		out = append(out, l)
	}
	return out, nil
}

type upsertOutcome int

const (
	outcomeAdded upsertOutcome = iota
	outcomeUpdated
	outcomeDeactivated
)

func (j *MemberSyncJob) upsert(ctx context.Context, chamberID uuid.UUID, mapped chambermaster.MappedMember) (upsertOutcome, error) {
	existing, err := j.members.GetByExternalID(ctx, chamberID, mapped.ExternalID)
	if err != nil {
		return 0, err
	}

	now := j.now()
	if existing == nil {
		rec := &models.ChamberMember{
			ID:         uuid.New(),
			ChamberID:  chamberID,
			CMMemberID: mapped.ExternalID,
			CreatedAt:  now,
		}
		applyDirectoryFields(rec, mapped, now)
		err := j.members.Insert(ctx, rec)
		if err == nil {
			return outcomeAdded, nil
		}
		if !errors.Is(err, repositories.ErrConflict) {
			return 0, err
		}
		// Inserted concurrently by someone else; the unique key guards the row,
		// so treat it as an update.
		existing, err = j.members.GetByExternalID(ctx, chamberID, mapped.ExternalID)
		if err != nil {
			return 0, err
		}
		if existing == nil {
			return 0, fmt.Errorf("member %s conflicted on insert but cannot be found", mapped.ExternalID)
		}
	}

	wasActive := existing.MembershipStatus == models.MembershipActive
	applyDirectoryFields(existing, mapped, now)
	if err := j.members.UpdateFromDirectory(ctx, existing); err != nil {
		return 0, err
	}
	if wasActive && existing.MembershipStatus != models.MembershipActive {
		return outcomeDeactivated, nil
	}
	return outcomeUpdated, nil
}

// applyDirectoryFields copies the directory-owned columns. Claim fields are
// deliberately left alone.
func applyDirectoryFields(rec *models.ChamberMember, m chambermaster.MappedMember, at time.Time) {
	rec.BusinessName = m.BusinessName
	rec.ContactName = m.ContactName
	rec.Email = m.Email
	rec.Phone = m.Phone
	rec.AddressLine1 = m.AddressLine1
	rec.AddressLine2 = m.AddressLine2
	rec.City = m.City
	rec.State = m.State
	rec.Zip = m.Zip
	rec.WebsiteURL = m.WebsiteURL
	rec.Description = m.Description
	rec.Category = m.Category
	rec.MembershipStatus = m.Status
	rec.MemberStatusCode = int(m.StatusCode)
	rec.LastSyncedAt = at
	rec.UpdatedAt = at
}

func (j *MemberSyncJob) finish(ctx context.Context, run *models.SyncRun, result SyncResult, runErr error) error {
	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), finishTimeout)
	defer cancel()

	completed := j.now()
	run.CompletedAt = &completed
	run.MembersAdded = result.Added
	run.MembersUpdated = result.Updated
	run.MembersDeactivated = result.Deactivated
	if runErr != nil {
		run.Status = models.SyncRunFailed
		msg := runErr.Error()
		run.ErrorMessage = &msg
	} else {
		run.Status = models.SyncRunCompleted
	}
	return j.runs.Finish(cleanupCtx, run)
}
