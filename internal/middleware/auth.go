package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/comparteride/cride/internal/auth"
	"github.com/comparteride/cride/pkg/errors"
	"github.com/comparteride/cride/pkg/response"
)

const (
	CtxUserIDKey   = "userID"
	CtxUsernameKey = "username"
)

// Auth resolves the opaque bearer token and loads the matching user into the
// request context.
func Auth(tokens *iauth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if len(authz) < 8 || !strings.EqualFold(authz[:7], "Bearer ") {
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		key := strings.TrimSpace(authz[7:])
		user, err := tokens.Resolve(c.Request.Context(), key)
		if err != nil {
			// Normalise all resolution failures to 401
			c.Header("WWW-Authenticate", "Bearer")
			response.Error(c, errors.ErrUnauthorized)
			c.Abort()
			return
		}

		// Propagate identity into request context
		c.Set(CtxUserIDKey, user.ID)
		c.Set(CtxUsernameKey, user.Username)

		c.Next()
	}
}
