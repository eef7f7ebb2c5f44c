// rbac.go implements role checks against the principal resolved by AuthMiddleware.
// Roles are read from the profile on each request, never from token claims.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/GarretWalker/marketplace-management/internal/db/models"
)

// RequireRole aborts with 403 unless the caller holds one of roles. Chamber
// ownership checks happen in the services layer.
func RequireRole(roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		p, ok := GetPrincipal(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "User not authenticated",
			})
			return
		}

		if !p.HasRole(roles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Forbidden: Insufficient permissions",
				"code":  "FORBIDDEN",
			})
			return
		}

		c.Next()
	}
}
