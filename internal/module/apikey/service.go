// Package apikey keeps the set of API keys accepted by the HTTP API.
package apikey

import (
	"context"
	"net/http"
	"slices"
	"strings"

	apperrors "github.com/vpio/server/internal/utils/errors"
	"go.uber.org/zap"
)

// SetKey is the store key of the API key set.
const SetKey = "api_keys"

// DefaultKeys are seeded into an empty registry.
var DefaultKeys = []string{
	"vpio-test-key-1",
	"vpio-test-key-2",
	"vpio-test-key-3",
	"vpio-demo-key",
}

var (
	ErrEmptyKey    = apperrors.NewAppError("API_KEY_REQUIRED", "API key required", http.StatusBadRequest, apperrors.ErrBadRequest)
	ErrWriteFailed = apperrors.NewAppError("API_KEY_WRITE_FAILED", "Could not update API key store", http.StatusInternalServerError, apperrors.ErrInternal)
)

// Store is the subset of the dual-tier store holding the key set.
type Store interface {
	SetAdd(ctx context.Context, key string, members ...string) bool
	SetRemove(ctx context.Context, key string, members ...string) bool
	SetIsMember(ctx context.Context, key, member string) bool
	SetMembers(ctx context.Context, key string) []string
}

// Service validates and manages API keys.
type Service struct {
	store    Store
	defaults []string
	logger   *zap.Logger
}

// NewService creates an API key registry. A nil defaults uses DefaultKeys.
func NewService(store Store, defaults []string, logger *zap.Logger) *Service {
	if defaults == nil {
		defaults = DefaultKeys
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    store,
		defaults: slices.Clone(defaults),
		logger:   logger.Named("apikey"),
	}
}

// Seed adds the default keys when the set is empty.
func (s *Service) Seed(ctx context.Context) bool {
	if len(s.store.SetMembers(ctx, SetKey)) > 0 {
		return true
	}
	if !s.store.SetAdd(ctx, SetKey, s.defaults...) {
		s.logger.Warn("failed to seed default API keys")
		return false
	}
	s.logger.Info("default API keys initialized", zap.Int("count", len(s.defaults)))
	return true
}

// IsValid reports whether key is registered. An empty registry is seeded
// first; if the registry cannot be used the default keys are accepted.
func (s *Service) IsValid(ctx context.Context, key string) bool {
	if key == "" {
		return false
	}
	if s.store.SetIsMember(ctx, SetKey, key) {
		return true
	}
	if len(s.store.SetMembers(ctx, SetKey)) > 0 {
		return false
	}

	if !s.Seed(ctx) {
		s.logger.Warn("API key registry unavailable, checking default keys")
		return slices.Contains(s.defaults, key)
	}
	return s.store.SetIsMember(ctx, SetKey, key)
}

// Add registers key.
func (s *Service) Add(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return ErrEmptyKey
	}
	if !s.store.SetAdd(ctx, SetKey, key) {
		return ErrWriteFailed
	}
	s.logger.Info("API key added", zap.String("key", mask(key)))
	return nil
}

// Remove unregisters key. Removing an unknown key succeeds.
func (s *Service) Remove(ctx context.Context, key string) error {
	if key == "" {
		return ErrEmptyKey
	}
	if !s.store.SetRemove(ctx, SetKey, key) {
		return ErrWriteFailed
	}
	s.logger.Info("API key removed", zap.String("key", mask(key)))
	return nil
}

// List returns every registered key, sorted.
func (s *Service) List(ctx context.Context) []string {
	keys := slices.Clone(s.store.SetMembers(ctx, SetKey))
	if keys == nil {
		keys = []string{}
	}
	slices.Sort(keys)
	return keys
}

// mask keeps the first four characters of a key for log output.
func mask(key string) string {
	if len(key) <= 4 {
		return "****"
	}
	return key[:4] + "****"
}
