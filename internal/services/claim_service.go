package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/GarretWalker/marketplace-management/internal/auth"
	"github.com/GarretWalker/marketplace-management/internal/db/models"
	"github.com/GarretWalker/marketplace-management/internal/db/repositories"
	"github.com/GarretWalker/marketplace-management/internal/notify"
	"github.com/GarretWalker/marketplace-management/internal/safego"
	"github.com/GarretWalker/marketplace-management/internal/telemetry"
)

const (
	// slugAttempts bounds approval retries when a concurrent approval takes the probed slug.
	slugAttempts = 3

	notificationTimeout = 30 * time.Second

	DefaultNotificationLimit = 20
	MaxNotificationLimit     = 100

	merchantDashboardLink = "/merchant/dashboard"
)

// Approval steps, used as the claim_approval_failures_total label.
const (
	stepLock         = "lock"
	stepMerchant     = "merchant"
	stepProfile      = "profile"
	stepMember       = "member"
	stepNotification = "notification"
	stepClaim        = "claim"
	stepCommit       = "commit"
)

// ClaimService moves claim requests through pending → approved | denied.
type ClaimService struct {
	db            *sqlx.DB
	claims        *repositories.ClaimRepository
	members       *repositories.MemberRepository
	merchants     *repositories.MerchantRepository
	profiles      *repositories.ProfileRepository
	notifications *repositories.NotificationRepository
	mailer        notify.Mailer
	portalURL     string
	now           func() time.Time
}

// NewClaimService creates a ClaimService. portalURL is used in decision emails.
func NewClaimService(db *sqlx.DB, mailer notify.Mailer, portalURL string) *ClaimService {
	if mailer == nil {
		mailer = notify.LogMailer{}
	}
	return &ClaimService{
		db:            db,
		claims:        repositories.NewClaimRepository(db),
		members:       repositories.NewMemberRepository(db),
		merchants:     repositories.NewMerchantRepository(db),
		profiles:      repositories.NewProfileRepository(db),
		notifications: repositories.NewNotificationRepository(db),
		mailer:        mailer,
		portalURL:     portalURL,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// CreateClaim files a pending claim for p against an unclaimed member of the chamber.
func (s *ClaimService) CreateClaim(ctx context.Context, p auth.Principal, in models.CreateClaimRequest) (*models.ClaimRequest, error) {
	chamberID, err := uuid.Parse(in.ChamberID)
	if err != nil {
		return nil, ErrChamberIDRequired
	}
	memberID, err := uuid.Parse(in.MemberID)
	if err != nil {
		return nil, ErrMemberIDRequired
	}
	contactName := strings.TrimSpace(in.ContactName)
	if contactName == "" {
		return nil, ErrContactNameRequired
	}
	addr, err := mail.ParseAddress(strings.TrimSpace(in.ContactEmail))
	if err != nil {
		return nil, ErrInvalidContactEmail
	}

	if p.MerchantID != nil {
		return nil, ErrAlreadyMerchant
	}

	pending, err := s.claims.HasPendingForUser(ctx, p.UserID)
	if err != nil {
		return nil, err
	}
	if pending {
		return nil, ErrPendingClaimExists
	}

	member, err := s.members.GetInChamber(ctx, chamberID, memberID)
	if err != nil {
		return nil, err
	}
	if member == nil {
		return nil, ErrMemberNotFound
	}
	if member.IsClaimed {
		return nil, ErrAlreadyClaimed
	}

	now := s.now()
	claim := &models.ClaimRequest{
		ID:           uuid.New(),
		ChamberID:    chamberID,
		CMMemberID:   memberID,
		RequestedBy:  p.UserID,
		ContactName:  contactName,
		ContactEmail: addr.Address,
		ContactPhone: in.ContactPhone,
		Message:      in.Message,
		Status:       models.ClaimStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.claims.Create(ctx, claim); err != nil {
		if errors.Is(err, repositories.ErrPendingClaimExists) {
			return nil, ErrPendingClaimExists
		}
		return nil, err
	}

	telemetry.ClaimTransitionsTotal.WithLabelValues(string(models.ClaimStatusPending)).Inc()
	slog.InfoContext(ctx, "claim request created",
		"claim_id", claim.ID, "user_id", p.UserID, "business_name", member.BusinessName)
	return claim, nil
}

// ListClaims returns a chamber's claims with member data, newest first. status may be empty.
func (s *ClaimService) ListClaims(ctx context.Context, p auth.Principal, chamberID uuid.UUID, status string) ([]models.ClaimWithMemberData, error) {
	var filter *models.ClaimStatus
	if status != "" {
		st := models.ClaimStatus(strings.ToLower(status))
		if !st.Valid() {
			return nil, ErrInvalidClaimStatus
		}
		filter = &st
	}
	if !p.AdministersChamber(chamberID) {
		return nil, ErrForbidden
	}
	return s.claims.ListByChamber(ctx, chamberID, filter)
}

// ApproveClaim creates the merchant for a pending claim and links it to the
// claimant. Every write happens in one transaction with the claim and member
// rows locked, so a failure at any step leaves the claim pending and no merchant behind.
func (s *ClaimService) ApproveClaim(ctx context.Context, p auth.Principal, claimID uuid.UUID) (*models.Merchant, error) {
	var (
		merchant *models.Merchant
		claim    *models.ClaimRequest
		err      error
	)
	for attempt := 1; attempt <= slugAttempts; attempt++ {
		merchant, claim, err = s.approveOnce(ctx, p, claimID)
		if !errors.Is(err, repositories.ErrSlugTaken) {
			break
		}
		slog.WarnContext(ctx, "merchant slug taken concurrently, retrying approval",
			"claim_id", claimID, "attempt", attempt)
	}
	if errors.Is(err, repositories.ErrSlugTaken) {
		telemetry.ClaimApprovalFailuresTotal.WithLabelValues(stepMerchant).Inc()
		return nil, ErrSlugConflict
	}
	if err != nil {
		return nil, err
	}

	telemetry.ClaimTransitionsTotal.WithLabelValues(string(models.ClaimStatusApproved)).Inc()
	slog.InfoContext(ctx, "claim approved and merchant created",
		"claim_id", claimID, "merchant_id", merchant.ID, "business_name", merchant.BusinessName)

	to := claim.ContactEmail
	if merchant.ContactEmail != nil {
		to = *merchant.ContactEmail
	}
	s.sendAsync(ctx, "claim_approved_email", notify.ClaimApprovedEmail(to, merchant.BusinessName, s.portalURL))
	return merchant, nil
}

func (s *ClaimService) approveOnce(ctx context.Context, p auth.Principal, claimID uuid.UUID) (*models.Merchant, *models.ClaimRequest, error) {
	var (
		merchant *models.Merchant
		claim    *models.ClaimRequest
		step     string
	)

	err := repositories.RunInTx(ctx, s.db, func(tx *sqlx.Tx) error {
		claims := s.claims.WithTx(tx)
		members := s.members.WithTx(tx)
		merchants := s.merchants.WithTx(tx)

		step = stepLock
		var err error
		claim, err = claims.GetByIDForUpdate(ctx, claimID)
		if err != nil {
			return err
		}
		if claim == nil {
			return ErrClaimNotFound
		}
		if !p.AdministersChamber(claim.ChamberID) {
			return ErrForbidden
		}
		if claim.Status != models.ClaimStatusPending {
			return ErrClaimResolved
		}

		member, err := members.GetByIDForUpdate(ctx, claim.CMMemberID)
		if err != nil {
			return err
		}
		if member == nil {
			return ErrMemberNotFound
		}
		if member.IsClaimed {
			return ErrAlreadyClaimed
		}

		step = stepMerchant
		base := Slugify(member.BusinessName)
		taken, err := merchants.SlugsLike(ctx, base)
		if err != nil {
			return err
		}
		now := s.now()
		merchant = merchantFromMember(member, claim, nextFreeSlug(base, taken), p.UserID, now)
		if err := merchants.Create(ctx, merchant); err != nil {
			return err
		}

		step = stepProfile
		if err := s.profiles.WithTx(tx).LinkMerchant(ctx, claim.RequestedBy, merchant.ID, now); err != nil {
			return err
		}

		step = stepMember
		if err := members.MarkClaimed(ctx, member.ID, claim.RequestedBy, now); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return ErrAlreadyClaimed
			}
			return err
		}

		step = stepNotification
		link := merchantDashboardLink
		if err := s.notifications.WithTx(tx).Create(ctx, &models.Notification{
			ID:          uuid.New(),
			RecipientID: claim.RequestedBy,
			Type:        models.NotificationTypeClaimApproved,
			Title:       "Your business claim was approved!",
			Message:     fmt.Sprintf("Your claim for %s has been approved. You can now start adding products.", merchant.BusinessName),
			Link:        &link,
			ClaimID:     &claim.ID,
			MerchantID:  &merchant.ID,
			CreatedAt:   now,
		}); err != nil {
			return err
		}

		step = stepClaim
		if err := claims.MarkApproved(ctx, claim.ID, p.UserID, now); err != nil {
			if errors.Is(err, repositories.ErrConflict) {
				return ErrClaimResolved
			}
			return err
		}

		step = stepCommit
		return nil
	})
	if err != nil {
		var pe *PreconditionError
		if !errors.As(err, &pe) && !errors.Is(err, repositories.ErrSlugTaken) {
			telemetry.ClaimApprovalFailuresTotal.WithLabelValues(step).Inc()
			slog.ErrorContext(ctx, "failed to approve claim", "claim_id", claimID, "step", step, "error", err)
		}
		return nil, nil, err
	}
	return merchant, claim, nil
}

// merchantFromMember copies identity from the member record, preferring its
// contact fields over those submitted with the claim.
func merchantFromMember(member *models.ChamberMember, claim *models.ClaimRequest, slug string, approvedBy uuid.UUID, now time.Time) *models.Merchant {
	email := member.Email
	if email == nil || *email == "" {
		email = &claim.ContactEmail
	}
	phone := member.Phone
	if phone == nil || *phone == "" {
		phone = claim.ContactPhone
	}

	return &models.Merchant{
		ID:           uuid.New(),
		ChamberID:    claim.ChamberID,
		CMMemberID:   member.ID,
		BusinessName: member.BusinessName,
		Slug:         slug,
		Description:  member.Description,
		Category:     member.Category,
		ContactEmail: email,
		Phone:        phone,
		WebsiteURL:   member.WebsiteURL,
		AddressLine1: member.AddressLine1,
		AddressLine2: member.AddressLine2,
		City:         member.City,
		State:        member.State,
		Zip:          member.Zip,
		Status:       models.MerchantStatusActive,
		ApprovedAt:   &now,
		ApprovedBy:   &approvedBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// DenyClaim resolves a pending claim as denied. Only the claim row changes.
func (s *ClaimService) DenyClaim(ctx context.Context, p auth.Principal, claimID uuid.UUID, reason string) error {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ErrDenialReasonRequired
	}

	claim, err := s.claims.GetByID(ctx, claimID)
	if err != nil {
		return err
	}
	if claim == nil {
		return ErrClaimNotFound
	}
	if !p.AdministersChamber(claim.ChamberID) {
		return ErrForbidden
	}
	if claim.Status != models.ClaimStatusPending {
		return ErrClaimResolved
	}

	if err := s.claims.MarkDenied(ctx, claim.ID, p.UserID, s.now(), reason); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			return ErrClaimResolved
		}
		return err
	}

	telemetry.ClaimTransitionsTotal.WithLabelValues(string(models.ClaimStatusDenied)).Inc()
	slog.InfoContext(ctx, "claim denied", "claim_id", claimID, "denied_by", p.UserID, "reason", reason)

	businessName := "your business"
	member, err := s.members.GetInChamber(ctx, claim.ChamberID, claim.CMMemberID)
	if err != nil {
		slog.WarnContext(ctx, "failed to load member for denial email", "claim_id", claimID, "error", err)
	} else if member != nil {
		businessName = member.BusinessName
	}
	s.sendAsync(ctx, "claim_denied_email", notify.ClaimDeniedEmail(claim.ContactEmail, businessName, reason))
	return nil
}

// ListNotifications returns the caller's most recent in-app notifications.
func (s *ClaimService) ListNotifications(ctx context.Context, p auth.Principal, limit int) ([]models.Notification, error) {
	switch {
	case limit <= 0:
		limit = DefaultNotificationLimit
	case limit > MaxNotificationLimit:
		limit = MaxNotificationLimit
	}
	return s.notifications.ListForRecipient(ctx, p.UserID, limit)
}

// sendAsync delivers msg in the background. Failures are logged and counted only.
func (s *ClaimService) sendAsync(ctx context.Context, kind string, msg notify.Message) {
	safego.Go(ctx, kind, notificationTimeout, func(ctx context.Context) {
		if err := s.mailer.Send(ctx, msg); err != nil {
			telemetry.NotificationFailuresTotal.WithLabelValues(kind).Inc()
			slog.ErrorContext(ctx, "failed to send claim notification", "kind", kind, "error", err)
		}
	})
}
