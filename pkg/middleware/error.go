package middleware

import (
	"errors"
	"net/http"

	"eventix/pkg/errutil"

	"github.com/gin-gonic/gin"
)

// Error renders any error attached to the gin context through the errutil
// taxonomy. Unknown errors surface as a generic internal failure.
func Error() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil {
			return
		}

		var be errutil.BaseError
		if errors.As(last.Err, &be) {
			c.JSON(be.Status().HTTPStatus(), be.JSON())
			return
		}

		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    errutil.StatusInternal,
				"message": "internal error",
			},
		})
	}
}
