package outbound

import (
	"context"
	"errors"
	"time"
)

// ErrCacheMiss is returned by a KVBackendPort when a key does not exist.
var ErrCacheMiss = errors.New("cache miss")

// KVBackendPort defines the remote key-value backend behind the dual-tier store.
// Values are opaque bytes; a zero ttl means the key never expires.
type KVBackendPort interface {
	// Ping checks connectivity to the backend.
	Ping(ctx context.Context) error

	// Get retrieves a value. Returns ErrCacheMiss if the key is absent.
	Get(ctx context.Context, key string) ([]byte, error)

	// Set stores a value with an optional TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes a key.
	Delete(ctx context.Context, key string) error

	// Exists checks if a key exists.
	Exists(ctx context.Context, key string) (bool, error)

	// Keys lists keys matching a glob pattern where * is the only wildcard.
	Keys(ctx context.Context, pattern string) ([]string, error)

	// SAdd adds members to a set.
	SAdd(ctx context.Context, key string, members ...string) error

	// SRem removes members from a set.
	SRem(ctx context.Context, key string, members ...string) error

	// SIsMember checks set membership.
	SIsMember(ctx context.Context, key, member string) (bool, error)

	// SMembers lists the members of a set.
	SMembers(ctx context.Context, key string) ([]string, error)
}
