package api

import (
	"errors"
	"log/slog"
	"math"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GarretWalker/marketplace-management/internal/chambermaster"
	"github.com/GarretWalker/marketplace-management/internal/jobs"
	"github.com/GarretWalker/marketplace-management/internal/middleware"
	"github.com/GarretWalker/marketplace-management/internal/services"
)

var kindStatus = map[services.ErrorKind]int{
	services.KindValidation:  http.StatusBadRequest,
	services.KindNotFound:    http.StatusNotFound,
	services.KindForbidden:   http.StatusForbidden,
	services.KindConflict:    http.StatusConflict,
	services.KindRateLimited: http.StatusTooManyRequests,
}

// respondError writes the JSON error envelope for err. Precondition failures
// carry their code and message; directory failures are 502; anything else is
// logged and reported as a generic 500.
func respondError(c *gin.Context, err error) {
	var pe *services.PreconditionError
	if errors.As(err, &pe) {
		status, ok := kindStatus[pe.Kind]
		if !ok {
			status = http.StatusConflict
		}
		if pe.RetryAfter > 0 {
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(pe.RetryAfter.Seconds()))))
		}
		c.JSON(status, gin.H{"error": pe.Message, "code": pe.Code})
		return
	}

	if errors.Is(err, chambermaster.ErrRequestFailed) || errors.Is(err, jobs.ErrDirectoryUnavailable) {
		slog.WarnContext(c.Request.Context(), "member directory request failed",
			"path", c.FullPath(), "request_id", c.GetString(middleware.RequestIDKey), "error", err)
		c.JSON(http.StatusBadGateway, gin.H{
			"error": "Member directory is unavailable, try again later",
			"code":  "DIRECTORY_UNAVAILABLE",
		})
		return
	}

	slog.ErrorContext(c.Request.Context(), "request failed",
		"path", c.FullPath(), "request_id", c.GetString(middleware.RequestIDKey), "error", err)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

// badRequest answers 400 for malformed input the services never see.
func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": msg, "code": "VALIDATION_ERROR"})
}
