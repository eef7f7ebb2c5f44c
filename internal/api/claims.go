// claims.go implements the claim workflow endpoints and the caller's notification feed.
package api

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GarretWalker/marketplace-management/internal/auth"
	"github.com/GarretWalker/marketplace-management/internal/db/models"
	"github.com/GarretWalker/marketplace-management/internal/middleware"
	"github.com/GarretWalker/marketplace-management/internal/services"
)

// ClaimWorkflow is the subset of services.ClaimService the handlers call.
type ClaimWorkflow interface {
	CreateClaim(ctx context.Context, p auth.Principal, in models.CreateClaimRequest) (*models.ClaimRequest, error)
	ListClaims(ctx context.Context, p auth.Principal, chamberID uuid.UUID, status string) ([]models.ClaimWithMemberData, error)
	ApproveClaim(ctx context.Context, p auth.Principal, claimID uuid.UUID) (*models.Merchant, error)
	DenyClaim(ctx context.Context, p auth.Principal, claimID uuid.UUID, reason string) error
	ListNotifications(ctx context.Context, p auth.Principal, limit int) ([]models.Notification, error)
}

// ClaimHandlers serves /api/v1/claims and /api/v1/notifications.
type ClaimHandlers struct {
	svc ClaimWorkflow
}

// NewClaimHandlers creates the claim handlers.
func NewClaimHandlers(svc ClaimWorkflow) *ClaimHandlers {
	return &ClaimHandlers{svc: svc}
}

func principal(c *gin.Context) (auth.Principal, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
	}
	return p, ok
}

// CreateClaim files a claim on a directory member for the caller.
// POST /api/v1/claims
func (h *ClaimHandlers) CreateClaim(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	var req models.CreateClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	claim, err := h.svc.CreateClaim(c.Request.Context(), p, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, claim)
}

// ListClaims lists a chamber's claims, optionally filtered by status.
// GET /api/v1/claims?chamber_id=&status=
func (h *ClaimHandlers) ListClaims(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}

	chamberID, err := uuid.Parse(c.Query("chamber_id"))
	if err != nil {
		respondError(c, services.ErrChamberIDRequired)
		return
	}

	claims, err := h.svc.ListClaims(c.Request.Context(), p, chamberID, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	if claims == nil {
		claims = []models.ClaimWithMemberData{}
	}
	c.JSON(http.StatusOK, gin.H{"claims": claims})
}

func claimID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid claim ID")
		return uuid.Nil, false
	}
	return id, true
}

// ApproveClaim approves a pending claim and returns the merchant it created.
// POST /api/v1/claims/:id/approve
func (h *ClaimHandlers) ApproveClaim(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := claimID(c)
	if !ok {
		return
	}

	merchant, err := h.svc.ApproveClaim(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":  "Claim approved",
		"merchant": merchant,
	})
}

// DenyClaim denies a pending claim. The body must carry a non-empty reason.
// POST /api/v1/claims/:id/deny
func (h *ClaimHandlers) DenyClaim(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, ok := claimID(c)
	if !ok {
		return
	}

	var req models.DenyClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	if err := h.svc.DenyClaim(c.Request.Context(), p, id, req.Reason); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Claim denied"})
}

// ListNotifications returns the caller's newest notifications.
// GET /api/v1/notifications?limit=
func (h *ClaimHandlers) ListNotifications(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	limit, err := intQuery(c, "limit")
	if err != nil {
		badRequest(c, "limit must be an integer")
		return
	}

	notifications, err := h.svc.ListNotifications(c.Request.Context(), p, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	if notifications == nil {
		notifications = []models.Notification{}
	}
	c.JSON(http.StatusOK, gin.H{"notifications": notifications})
}
