package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/comparteride/cride/internal/permissions"
	"github.com/comparteride/cride/pkg/errors"
	"github.com/comparteride/cride/pkg/metrics"
	"github.com/comparteride/cride/pkg/response"
)

// RequireOperation evaluates the predicate list registered for an operation
// before the handler runs. Route parameters supply the circle slug and member
// username when the operation needs them.
func RequireOperation(checker *permissions.Checker, operation string) gin.HandlerFunc {
	return func(c *gin.Context) {
		in := permissions.Input{
			UserID:       c.GetString(CtxUserIDKey),
			AuthUsername: c.GetString(CtxUsernameKey),
			CircleSlug:   c.Param("slug"),
			Username:     c.Param("username"),
		}

		if err := checker.Check(c.Request.Context(), operation, in); err != nil {
			appErr := errors.FromError(err)
			if appErr.StatusCode >= http.StatusInternalServerError {
				// Internal error while checking permissions
				metrics.PermissionChecks.WithLabelValues(operation, "error").Inc()
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"success": false, "error": gin.H{"code": errors.ErrInternalServer.Code, "message": "permission check failed"}})
				return
			}
			metrics.PermissionChecks.WithLabelValues(operation, "denied").Inc()
			response.Error(c, appErr)
			c.Abort()
			return
		}

		metrics.PermissionChecks.WithLabelValues(operation, "allowed").Inc()
		c.Next()
	}
}
