package paymenthttp

import (
	"github.com/gin-gonic/gin"
	apperrors "github.com/vpio/server/internal/utils/errors"
)

// respondError writes the {error, message} body used by every endpoint.
func respondError(c *gin.Context, status int, title string, err error) {
	c.JSON(status, apperrors.ErrorResponse{
		Error:   title,
		Message: err.Error(),
	})
}
