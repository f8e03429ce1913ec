package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gin-gonic/gin"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/types"
)

// AdminAuthMiddleware guards the manual trigger endpoints with a shared
// secret bearer token. Comparison is constant time.
func AdminAuthMiddleware(apiSecret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiSecret == "" {
			c.AbortWithStatusJSON(403, ierr.NewErrorResponse(
				ierr.NewError("admin API is not configured").
					WithHint("Admin API secret is not set").
					Mark(ierr.ErrPermissionDenied)))
			return
		}

		header := c.GetHeader(types.HeaderAuthorization)
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(apiSecret)) != 1 {
			c.AbortWithStatusJSON(403, ierr.NewErrorResponse(
				ierr.NewError("invalid admin token").
					WithHint("Invalid or missing bearer token").
					Mark(ierr.ErrPermissionDenied)))
			return
		}

		c.Next()
	}
}
