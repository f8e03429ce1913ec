package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/reliabill/reliabill/internal/types"
)

// RequestIDMiddleware attaches a request id to the context of every request,
// honoring an inbound X-Request-ID when the caller supplies one.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestID := c.GetHeader(types.HeaderRequestID)
		if requestID == "" {
			requestID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_REQUEST)
		}

		ctx := types.SetRequestID(c.Request.Context(), requestID)
		c.Request = c.Request.WithContext(ctx)
		c.Header(types.HeaderRequestID, requestID)

		c.Next()
	}
}
