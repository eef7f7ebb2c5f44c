package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/GarretWalker/marketplace-management/internal/auth"
	"github.com/GarretWalker/marketplace-management/internal/chambermaster"
	"github.com/GarretWalker/marketplace-management/internal/crypto"
	"github.com/GarretWalker/marketplace-management/internal/db/models"
	"github.com/GarretWalker/marketplace-management/internal/jobs"
)

const (
	DefaultMemberPageSize = 50
	MaxMemberPageSize     = 100

	defaultSyncLockTTL = 10 * time.Minute
	unlockTimeout      = 5 * time.Second
)

// ChamberStore is the chamber persistence used by SyncService.
type ChamberStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Chamber, error)
	UpdateDirectorySettings(ctx context.Context, chamber *models.Chamber) error
	GetLastSyncAt(ctx context.Context, id uuid.UUID) (*time.Time, bool, error)
}

// MemberLister pages through a chamber's roster.
type MemberLister interface {
	List(ctx context.Context, chamberID uuid.UUID, filter models.MemberFilter) ([]models.ChamberMember, int, error)
}

// SyncRunReader returns the most recent run for a chamber.
type SyncRunReader interface {
	GetLatest(ctx context.Context, chamberID uuid.UUID) (*models.SyncRun, error)
}

// Reconciler runs one member sync.
type Reconciler interface {
	Reconcile(ctx context.Context, chamberID uuid.UUID, acct chambermaster.Account) (jobs.SyncResult, error)
}

// ListMembersInput holds roster query parameters as received from the caller.
type ListMembersInput struct {
	Status    string
	IsClaimed *bool
	Search    string
	Page      int
	Limit     int
}

// MemberPage is one page of a chamber's roster.
type MemberPage struct {
	Members []models.ChamberMember `json:"members"`
	Total   int                    `json:"total"`
	Page    int                    `json:"page"`
	Limit   int                    `json:"limit"`
}

// SyncService exposes sync triggering and the chamber read models to chamber admins.
type SyncService struct {
	chambers   ChamberStore
	members    MemberLister
	runs       SyncRunReader
	reconciler Reconciler
	cipher     *crypto.KeyCipher
	locker     jobs.SyncLocker
	limiter    jobs.TriggerLimiter
	lockTTL    time.Duration
	flights    singleflight.Group
	now        func() time.Time
}

// SyncServiceOption customises a SyncService.
type SyncServiceOption func(*SyncService)

// WithSyncLocker replaces the in-process lock, typically with a jobs.RedisLocker.
func WithSyncLocker(l jobs.SyncLocker, ttl time.Duration) SyncServiceOption {
	return func(s *SyncService) {
		s.locker = l
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

// WithTriggerLimiter caps manual sync triggers per chamber.
func WithTriggerLimiter(l jobs.TriggerLimiter) SyncServiceOption {
	return func(s *SyncService) { s.limiter = l }
}

// NewSyncService creates a SyncService. cipher opens the sealed directory API keys.
func NewSyncService(chambers ChamberStore, members MemberLister, runs SyncRunReader, reconciler Reconciler, cipher *crypto.KeyCipher, opts ...SyncServiceOption) *SyncService {
	s := &SyncService{
		chambers:   chambers,
		members:    members,
		runs:       runs,
		reconciler: reconciler,
		cipher:     cipher,
		locker:     jobs.NewLocalLocker(),
		limiter:    jobs.UnlimitedTriggers{},
		lockTTL:    defaultSyncLockTTL,
		now:        func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// authorizeChamber checks that p administers chamberID and that it exists.
func (s *SyncService) authorizeChamber(ctx context.Context, p auth.Principal, chamberID uuid.UUID) (*models.Chamber, error) {
	if !p.AdministersChamber(chamberID) {
		return nil, ErrForbidden
	}
	chamber, err := s.chambers.GetByID(ctx, chamberID)
	if err != nil {
		return nil, err
	}
	if chamber == nil {
		return nil, ErrChamberNotFound
	}
	return chamber, nil
}

// GetChamber returns the chamber administered by p. The API key is never exposed.
func (s *SyncService) GetChamber(ctx context.Context, p auth.Principal, chamberID uuid.UUID) (*models.Chamber, error) {
	return s.authorizeChamber(ctx, p, chamberID)
}

// UpdateChamberDirectorySettings changes the chamber's directory connection. A
// non-empty API key is sealed before it is stored; an empty one clears it.
func (s *SyncService) UpdateChamberDirectorySettings(ctx context.Context, p auth.Principal, chamberID uuid.UUID, in models.UpdateDirectorySettingsRequest) (*models.Chamber, error) {
	chamber, err := s.authorizeChamber(ctx, p, chamberID)
	if err != nil {
		return nil, err
	}

	if in.AssociationID != nil {
		chamber.AssociationID = trimmedOrNil(*in.AssociationID)
	}
	if in.BaseURL != nil {
		chamber.BaseURL = trimmedOrNil(*in.BaseURL)
	}
	if in.SyncEnabled != nil {
		chamber.SyncEnabled = *in.SyncEnabled
	}
	if in.APIKey != nil {
		key := strings.TrimSpace(*in.APIKey)
		if key == "" {
			chamber.APIKey = nil
		} else {
			sealed, err := s.cipher.Seal(key)
			if err != nil {
				return nil, fmt.Errorf("failed to seal directory api key: %w", err)
			}
			chamber.APIKey = &sealed
		}
	}
	chamber.UpdatedAt = s.now()

	if err := s.chambers.UpdateDirectorySettings(ctx, chamber); err != nil {
		return nil, err
	}
	chamber.HasAPIKey = chamber.APIKey != nil

	slog.InfoContext(ctx, "chamber directory settings updated",
		"chamber_id", chamberID, "updated_by", p.UserID, "has_api_key", chamber.HasAPIKey)
	return chamber, nil
}

// TriggerSync reconciles the chamber's members against the directory now.
// Concurrent triggers for one chamber share a single run in this process; another
// process holding the chamber's lock yields ErrSyncInProgress.
func (s *SyncService) TriggerSync(ctx context.Context, p auth.Principal, chamberID uuid.UUID) (jobs.SyncResult, error) {
	chamber, err := s.authorizeChamber(ctx, p, chamberID)
	if err != nil {
		return jobs.SyncResult{}, err
	}
	if !chamber.DirectoryConfigured() {
		return jobs.SyncResult{}, ErrDirectoryNotConfigured
	}

	apiKey, err := s.cipher.Open(*chamber.APIKey)
	if err != nil {
		return jobs.SyncResult{}, fmt.Errorf("failed to open directory api key: %w", err)
	}
	acct := chambermaster.Account{ID: *chamber.AssociationID, APIKey: apiKey}
	if chamber.BaseURL != nil {
		acct.BaseURL = *chamber.BaseURL
	}

	// The shared run outlives any single caller; each caller's ctx only ends its wait.
	key := chamberID.String()
	ch := s.flights.DoChan(key, func() (interface{}, error) {
		runCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.lockTTL)
		defer cancel()
		return s.runExclusive(runCtx, p, chamberID, acct)
	})

	select {
	case <-ctx.Done():
		return jobs.SyncResult{}, ctx.Err()
	case res := <-ch:
		if res.Shared {
			slog.DebugContext(ctx, "joined in-flight member sync", "chamber_id", chamberID)
		}
		result, _ := res.Val.(jobs.SyncResult)
		return result, res.Err
	}
}

func (s *SyncService) runExclusive(ctx context.Context, p auth.Principal, chamberID uuid.UUID, acct chambermaster.Account) (jobs.SyncResult, error) {
	key := chamberID.String()

	allowed, retryAfter, err := s.limiter.Allow(ctx, key)
	if err != nil {
		slog.WarnContext(ctx, "sync trigger limit unavailable, allowing trigger", "chamber_id", chamberID, "error", err)
	} else if !allowed {
		return jobs.SyncResult{}, rateLimited(retryAfter)
	}

	unlock, err := s.locker.Acquire(ctx, key, s.lockTTL)
	if errors.Is(err, jobs.ErrLockHeld) {
		return jobs.SyncResult{}, ErrSyncInProgress
	}
	if err != nil {
		return jobs.SyncResult{}, err
	}
	defer func() {
		unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unlockTimeout)
		defer cancel()
		if err := unlock(unlockCtx); err != nil {
			slog.WarnContext(ctx, "failed to release sync lock", "chamber_id", chamberID, "error", err)
		}
	}()

	slog.InfoContext(ctx, "member sync triggered", "chamber_id", chamberID, "triggered_by", p.UserID)
	return s.reconciler.Reconcile(ctx, chamberID, acct)
}

// GetSyncStatus returns the chamber's last sync timestamp and its most recent run.
func (s *SyncService) GetSyncStatus(ctx context.Context, p auth.Principal, chamberID uuid.UUID) (*models.SyncStatus, error) {
	if !p.AdministersChamber(chamberID) {
		return nil, ErrForbidden
	}

	var (
		status models.SyncStatus
		exists bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		lastSync, ok, err := s.chambers.GetLastSyncAt(gctx, chamberID)
		status.LastSyncAt, exists = lastSync, ok
		return err
	})
	g.Go(func() error {
		run, err := s.runs.GetLatest(gctx, chamberID)
		status.LastSyncResult = run
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrChamberNotFound
	}
	return &status, nil
}

// ListMembers returns one page of the chamber's roster ordered by business name.
func (s *SyncService) ListMembers(ctx context.Context, p auth.Principal, chamberID uuid.UUID, in ListMembersInput) (*MemberPage, error) {
	if !p.AdministersChamber(chamberID) {
		return nil, ErrForbidden
	}

	filter, page, limit, err := memberFilter(in)
	if err != nil {
		return nil, err
	}

	members, total, err := s.members.List(ctx, chamberID, filter)
	if err != nil {
		return nil, err
	}
	return &MemberPage{Members: members, Total: total, Page: page, Limit: limit}, nil
}

func memberFilter(in ListMembersInput) (models.MemberFilter, int, int, error) {
	page := in.Page
	if page < 1 {
		page = 1
	}
	limit := in.Limit
	switch {
	case limit <= 0:
		limit = DefaultMemberPageSize
	case limit > MaxMemberPageSize:
		limit = MaxMemberPageSize
	}

	filter := models.MemberFilter{
		IsClaimed: in.IsClaimed,
		Search:    in.Search,
		Limit:     limit,
		Offset:    (page - 1) * limit,
	}
	if in.Status != "" {
		st := models.MembershipStatus(strings.ToLower(in.Status))
		if !st.Valid() {
			return models.MemberFilter{}, 0, 0, ErrInvalidMemberStatus
		}
		filter.Status = &st
	}
	return filter, page, limit, nil
}

func trimmedOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
