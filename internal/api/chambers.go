// chambers.go implements the chamber admin endpoints: directory settings, manual
// member sync, sync status and the member listing.
package api

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GarretWalker/marketplace-management/internal/auth"
	"github.com/GarretWalker/marketplace-management/internal/db/models"
	"github.com/GarretWalker/marketplace-management/internal/jobs"
	"github.com/GarretWalker/marketplace-management/internal/middleware"
	"github.com/GarretWalker/marketplace-management/internal/services"
)

// ChamberService is the subset of services.SyncService the handlers call.
type ChamberService interface {
	GetChamber(ctx context.Context, p auth.Principal, chamberID uuid.UUID) (*models.Chamber, error)
	UpdateChamberDirectorySettings(ctx context.Context, p auth.Principal, chamberID uuid.UUID, in models.UpdateDirectorySettingsRequest) (*models.Chamber, error)
	TriggerSync(ctx context.Context, p auth.Principal, chamberID uuid.UUID) (jobs.SyncResult, error)
	GetSyncStatus(ctx context.Context, p auth.Principal, chamberID uuid.UUID) (*models.SyncStatus, error)
	ListMembers(ctx context.Context, p auth.Principal, chamberID uuid.UUID, in services.ListMembersInput) (*services.MemberPage, error)
}

// ChamberHandlers serves /api/v1/chambers.
type ChamberHandlers struct {
	svc ChamberService
}

// NewChamberHandlers creates the chamber handlers.
func NewChamberHandlers(svc ChamberService) *ChamberHandlers {
	return &ChamberHandlers{svc: svc}
}

// chamberRequest extracts the caller and the :id path parameter. It writes the
// error response itself and returns ok=false when either is missing.
func chamberRequest(c *gin.Context) (auth.Principal, uuid.UUID, bool) {
	p, ok := middleware.GetPrincipal(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return p, uuid.Nil, false
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		badRequest(c, "Invalid chamber ID")
		return p, uuid.Nil, false
	}
	return p, id, true
}

// GetChamber returns the chamber with its directory settings. The API key itself
// is never serialized; has_api_key reports whether one is stored.
// GET /api/v1/chambers/:id
func (h *ChamberHandlers) GetChamber(c *gin.Context) {
	p, id, ok := chamberRequest(c)
	if !ok {
		return
	}
	chamber, err := h.svc.GetChamber(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chamber)
}

// UpdateDirectorySettings stores the chamber's ChamberMaster credentials.
// PUT /api/v1/chambers/:id/directory
func (h *ChamberHandlers) UpdateDirectorySettings(c *gin.Context) {
	p, id, ok := chamberRequest(c)
	if !ok {
		return
	}

	var req models.UpdateDirectorySettingsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Invalid request body: "+err.Error())
		return
	}

	chamber, err := h.svc.UpdateChamberDirectorySettings(c.Request.Context(), p, id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, chamber)
}

// TriggerSync runs a member sync synchronously and returns its counters.
// POST /api/v1/chambers/:id/sync
func (h *ChamberHandlers) TriggerSync(c *gin.Context) {
	p, id, ok := chamberRequest(c)
	if !ok {
		return
	}

	result, err := h.svc.TriggerSync(c.Request.Context(), p, id)
	if err != nil {
		if result.RunID != uuid.Nil {
			c.Header("X-Sync-Run-ID", result.RunID.String())
		}
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message": "Member sync completed",
		"result":  result,
	})
}

// GetSyncStatus reports the last sync time and the latest run.
// GET /api/v1/chambers/:id/sync-status
func (h *ChamberHandlers) GetSyncStatus(c *gin.Context) {
	p, id, ok := chamberRequest(c)
	if !ok {
		return
	}
	status, err := h.svc.GetSyncStatus(c.Request.Context(), p, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, status)
}

// ListMembers pages through the chamber's synced members.
// GET /api/v1/chambers/:id/members?page=&limit=&status=&is_claimed=&search=
func (h *ChamberHandlers) ListMembers(c *gin.Context) {
	p, id, ok := chamberRequest(c)
	if !ok {
		return
	}

	in := services.ListMembersInput{
		Status: c.Query("status"),
		Search: c.Query("search"),
	}
	var err error
	if in.Page, err = intQuery(c, "page"); err != nil {
		badRequest(c, "page must be an integer")
		return
	}
	if in.Limit, err = intQuery(c, "limit"); err != nil {
		badRequest(c, "limit must be an integer")
		return
	}
	if raw := c.Query("is_claimed"); raw != "" {
		claimed, err := strconv.ParseBool(raw)
		if err != nil {
			badRequest(c, "is_claimed must be true or false")
			return
		}
		in.IsClaimed = &claimed
	}

	page, err := h.svc.ListMembers(c.Request.Context(), p, id, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"members": page.Members,
		"pagination": gin.H{
			"page":  page.Page,
			"limit": page.Limit,
			"total": page.Total,
		},
	})
}

// intQuery parses an optional integer query parameter; absent means 0.
func intQuery(c *gin.Context, key string) (int, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
