package adminhttp

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	apperrors "github.com/vpio/server/internal/utils/errors"
)

// KeyRegistry manages the accepted API keys.
type KeyRegistry interface {
	List(ctx context.Context) []string
	Add(ctx context.Context, key string) error
	Remove(ctx context.Context, key string) error
}

// KeyHandler handles API key administration.
type KeyHandler struct {
	keys KeyRegistry
}

// NewKeyHandler creates a new key handler.
func NewKeyHandler(keys KeyRegistry) *KeyHandler {
	return &KeyHandler{keys: keys}
}

// RegisterRoutes registers admin routes.
func (h *KeyHandler) RegisterRoutes(r *gin.RouterGroup) {
	admin := r.Group("/admin")
	{
		admin.GET("/keys", h.ListKeys)
		admin.POST("/keys", h.AddKey)
		admin.DELETE("/keys/:key", h.RemoveKey)
	}
}

// ListKeys handles GET /admin/keys.
func (h *KeyHandler) ListKeys(c *gin.Context) {
	keys := h.keys.List(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"api_keys": keys,
		"count":    len(keys),
	})
}

type addKeyRequest struct {
	APIKey string `json:"api_key"`
}

// AddKey handles POST /admin/keys.
func (h *KeyHandler) AddKey(c *gin.Context) {
	var req addKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.APIKey == "" {
		c.JSON(http.StatusBadRequest, apperrors.ErrorResponse{
			Error:   "API key required",
			Message: "Please provide an api_key in the request body",
		})
		return
	}

	if err := h.keys.Add(c.Request.Context(), req.APIKey); err != nil {
		c.JSON(apperrors.GetStatusCode(err), apperrors.ErrorResponse{
			Error:   "Failed to add API key",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("API key '%s' added successfully", req.APIKey),
	})
}

// RemoveKey handles DELETE /admin/keys/:key.
func (h *KeyHandler) RemoveKey(c *gin.Context) {
	key := c.Param("key")
	if err := h.keys.Remove(c.Request.Context(), key); err != nil {
		c.JSON(apperrors.GetStatusCode(err), apperrors.ErrorResponse{
			Error:   "Failed to remove API key",
			Message: err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": fmt.Sprintf("API key '%s' removed successfully", key),
	})
}
