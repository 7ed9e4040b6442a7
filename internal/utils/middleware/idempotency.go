package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	apperrors "github.com/vpio/server/internal/utils/errors"
)

const (
	// IdempotencyKeyHeader is the header for idempotency key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader marks a response served from the idempotency cache.
	IdempotentReplayHeader = "Idempotent-Replayed"

	idempotencyKeyPrefix  = "idempotency:"
	defaultIdempotencyTTL = 24 * time.Hour
)

// ResponseCache is the key-value surface the idempotency middleware needs.
// The dual-tier store satisfies it.
type ResponseCache interface {
	Get(ctx context.Context, key string, dest any) bool
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
}

// IdempotencyConfig holds idempotency middleware configuration.
type IdempotencyConfig struct {
	// TTL is the time to live for cached responses.
	TTL time.Duration
}

// DefaultIdempotencyConfig returns the default idempotency configuration.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{TTL: defaultIdempotencyTTL}
}

type idempotencyResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	BodyHash    string `json:"body_hash"`
	Body        []byte `json:"body"`
}

type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Requests without the header pass through. A key reused with a different
// body, or while its first request is still running in this process, is
// rejected with 409.
func Idempotency(cache ResponseCache, cfg IdempotencyConfig) gin.HandlerFunc {
	if cfg.TTL <= 0 {
		cfg.TTL = defaultIdempotencyTTL
	}
	var inFlight sync.Map

	return func(c *gin.Context) {
		idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
		if cache == nil || idempotencyKey == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		rawBody, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, apperrors.ErrorResponse{
				Error:   "Invalid request body",
				Message: err.Error(),
			})
			return
		}
		c.Request.Body = io.NopCloser(bytes.NewReader(rawBody))
		bodyHash := hashBody(rawBody)

		cacheKey := generateIdempotencyKey(c, idempotencyKey)

		var cached idempotencyResponse
		if cache.Get(ctx, cacheKey, &cached) {
			if cached.BodyHash != bodyHash {
				c.AbortWithStatusJSON(http.StatusConflict, apperrors.ErrorResponse{
					Error:   "Idempotency key reused",
					Message: "This Idempotency-Key was already used with a different request body",
				})
				return
			}
			c.Header(IdempotentReplayHeader, "true")
			c.Data(cached.StatusCode, cached.ContentType, cached.Body)
			c.Abort()
			return
		}

		if _, busy := inFlight.LoadOrStore(cacheKey, struct{}{}); busy {
			c.AbortWithStatusJSON(http.StatusConflict, apperrors.ErrorResponse{
				Error:   "Request in progress",
				Message: "A request with this Idempotency-Key is already being processed",
			})
			return
		}
		defer inFlight.Delete(cacheKey)

		respWriter := &idempotencyResponseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = respWriter

		c.Next()

		// Server errors are not cached so the client can retry.
		status := c.Writer.Status()
		if status >= 200 && status < 500 {
			cache.Set(ctx, cacheKey, &idempotencyResponse{
				StatusCode:  status,
				ContentType: c.Writer.Header().Get("Content-Type"),
				BodyHash:    bodyHash,
				Body:        respWriter.body.Bytes(),
			}, cfg.TTL)
		}
	}
}

// generateIdempotencyKey scopes the cache entry to the caller's API key so
// one client can never replay another client's response.
func generateIdempotencyKey(c *gin.Context, idempotencyKey string) string {
	caller := c.GetString(APIKeyContextKey)
	if caller == "" {
		caller = c.GetHeader(APIKeyHeader)
	}
	hash := sha256.Sum256([]byte(caller + ":" + c.Request.Method + ":" + c.FullPath() + ":" + idempotencyKey))
	return idempotencyKeyPrefix + hex.EncodeToString(hash[:])
}

func hashBody(body []byte) string {
	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}
