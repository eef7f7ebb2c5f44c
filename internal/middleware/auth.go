// Package middleware provides Gin HTTP middleware for request identity, metrics,
// authentication, role checks, rate limiting and security headers.
//
// Ordering is fixed in router.go:
//
//	Recovery → RequestID → Metrics → Logger → Security → CORS → Auth → RateLimit → RequireRole → Handler
//
// Rate limiting runs after Auth on the API group so authenticated callers are
// limited per user rather than per IP.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/GarretWalker/marketplace-management/internal/auth"
	"github.com/GarretWalker/marketplace-management/internal/db/models"
)

const (
	// PrincipalKey is the gin.Context key holding the caller's auth.Principal.
	PrincipalKey = "principal"
	// UserIDKey holds the caller's user id as a string.
	UserIDKey = "user_id"
)

// ProfileLookup loads the stored profile for a token subject.
type ProfileLookup interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Profile, error)
}

// AuthMiddleware verifies the bearer token and resolves the caller's profile into
// an auth.Principal. The profile is re-read on every request so role and merchant
// changes apply without re-issuing tokens.
func AuthMiddleware(profiles ProfileLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Missing authorization header",
			})
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization header must start with 'Bearer '",
			})
			return
		}

		token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Authorization token is empty",
			})
			return
		}

		claims, err := auth.ValidateJWT(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid or expired token",
			})
			return
		}

		userID, err := uuid.Parse(claims.UserID())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid token subject",
			})
			return
		}

		profile, err := profiles.GetByID(c.Request.Context(), userID)
		if err != nil {
			slog.ErrorContext(c.Request.Context(), "failed to load profile", "user_id", userID, "error", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to load user profile",
			})
			return
		}
		if profile == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User profile not found",
			})
			return
		}

		c.Set(PrincipalKey, auth.PrincipalFromProfile(profile))
		c.Set(UserIDKey, profile.ID.String())
		c.Next()
	}
}

// GetPrincipal returns the principal set by AuthMiddleware.
func GetPrincipal(c *gin.Context) (auth.Principal, bool) {
	v, exists := c.Get(PrincipalKey)
	if !exists {
		return auth.Principal{}, false
	}
	p, ok := v.(auth.Principal)
	return p, ok
}
