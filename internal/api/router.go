// Package api wires the HTTP routes of the marketplace management backend.
//
// Every route under /api/v1 requires a bearer token. /health and /version are
// public so load balancers and deploy tooling can reach them without credentials.
// Chamber ownership is checked in the services layer; the router only guards roles.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/GarretWalker/marketplace-management/internal/config"
	"github.com/GarretWalker/marketplace-management/internal/db/models"
	"github.com/GarretWalker/marketplace-management/internal/middleware"
)

const healthPingTimeout = 2 * time.Second

// Deps are the services the handlers delegate to.
type Deps struct {
	Profiles middleware.ProfileLookup
	Chambers ChamberService
	Claims   ClaimWorkflow
	Version  string
}

// BackgroundServices holds resources started by NewRouter that must be stopped
// on shutdown, after the HTTP server has drained.
type BackgroundServices struct {
	rateLimiters []*middleware.RateLimiter
}

// Shutdown stops the router's background goroutines.
func (bg *BackgroundServices) Shutdown() {
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	slog.Info("router background services stopped")
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, db *sql.DB, deps Deps) (*gin.Engine, *BackgroundServices) {
	router := gin.New()
	bg := &BackgroundServices{}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware())
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig()))
	router.Use(CORSMiddleware(cfg))

	router.GET("/health", healthCheckHandler(db))
	router.GET("/version", versionHandler(deps.Version))

	chambers := NewChamberHandlers(deps.Chambers)
	claims := NewClaimHandlers(deps.Claims)

	apiV1 := router.Group("/api/v1")
	apiV1.Use(middleware.AuthMiddleware(deps.Profiles))
	if cfg.Security.RateLimiting.Enabled {
		limiter := middleware.NewRateLimiter(middleware.RateLimitConfigFrom(cfg.Security.RateLimiting))
		bg.rateLimiters = append(bg.rateLimiters, limiter)
		apiV1.Use(middleware.RateLimitMiddleware(limiter))
	}

	chamberGroup := apiV1.Group("/chambers")
	chamberGroup.Use(middleware.RequireRole(models.RoleChamberAdmin))
	{
		chamberGroup.GET("/:id", chambers.GetChamber)
		chamberGroup.PUT("/:id/directory", chambers.UpdateDirectorySettings)
		chamberGroup.POST("/:id/sync", chambers.TriggerSync)
		chamberGroup.GET("/:id/sync-status", chambers.GetSyncStatus)
		chamberGroup.GET("/:id/members", chambers.ListMembers)
	}

	adminOnly := middleware.RequireRole(models.RoleChamberAdmin)
	apiV1.POST("/claims", claims.CreateClaim)
	apiV1.GET("/claims", adminOnly, claims.ListClaims)
	apiV1.POST("/claims/:id/approve", adminOnly, claims.ApproveClaim)
	apiV1.POST("/claims/:id/deny", adminOnly, claims.DenyClaim)

	apiV1.GET("/notifications", claims.ListNotifications)

	return router, bg
}

func healthCheckHandler(db *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), healthPingTimeout)
		defer cancel()

		if err := db.PingContext(ctx); err != nil {
			slog.WarnContext(ctx, "health check failed", "error", err)
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

func versionHandler(version string) gin.HandlerFunc {
	if version == "" {
		version = "dev"
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     version,
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware emits one "http request" record per request through the
// process-wide slog handler, so the output format follows logging.format.
func LoggerMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		level := slog.LevelInfo
		if c.Writer.Status() >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		slog.LogAttrs(
			c.Request.Context(),
			level,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(middleware.RequestIDKey)),
			slog.String("user_id", c.GetString(middleware.UserIDKey)),
		)
	}
}

// CORSMiddleware answers CORS for the configured origins. "*" allows any origin.
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	allowAll := false
	allowed := make(map[string]bool, len(cfg.Security.CORS.AllowedOrigins))
	for _, o := range cfg.Security.CORS.AllowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if allowAll || (origin != "" && allowed[origin]) {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Credentials", "true")
			}
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-Request-ID")
			c.Header("Access-Control-Expose-Headers", "X-Request-ID, Retry-After, X-RateLimit-Remaining")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
