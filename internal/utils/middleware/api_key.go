package middleware

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/vpio/server/internal/utils/errors"
)

const (
	// APIKeyHeader carries the caller's API key.
	APIKeyHeader = "X-API-Key"
	// APIKeyContextKey is the gin context key of an accepted key.
	APIKeyContextKey = "api_key"
)

// KeyValidator reports whether an API key is accepted.
type KeyValidator interface {
	IsValid(ctx context.Context, key string) bool
}

// APIKey returns a middleware that rejects requests without a valid API key.
func APIKey(keys KeyValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := c.GetHeader(APIKeyHeader)
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, apperrors.ErrorResponse{
				Error:   "API key required",
				Message: "Please provide an API key in the x-api-key header",
			})
			return
		}

		if !keys.IsValid(c.Request.Context(), key) {
			c.AbortWithStatusJSON(http.StatusForbidden, apperrors.ErrorResponse{
				Error:   "Invalid API key",
				Message: "The provided API key is not valid",
			})
			return
		}

		c.Set(APIKeyContextKey, key)
		c.Next()
	}
}
