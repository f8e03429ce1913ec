package middleware

import (
	"github.com/gin-gonic/gin"

	ierr "github.com/reliabill/reliabill/internal/errors"
	"github.com/reliabill/reliabill/internal/logger"
)

// ErrorHandler converts errors attached via c.Error into the JSON error
// envelope, using the sentinel classification for the status code.
func ErrorHandler(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		status := ierr.HTTPStatus(err)
		if status >= 500 {
			log.Errorw("request failed",
				"path", c.Request.URL.Path,
				"error", err)
		}

		c.JSON(status, ierr.NewErrorResponse(err))
	}
}
