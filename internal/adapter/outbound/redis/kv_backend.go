package redis

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vpio/server/internal/port/outbound"
)

const scanBatchSize = 100

// kvBackendAdapter implements outbound.KVBackendPort.
type kvBackendAdapter struct {
	client redis.UniversalClient
}

// NewKVBackendAdapter creates a new remote tier adapter.
func NewKVBackendAdapter(client redis.UniversalClient) outbound.KVBackendPort {
	return &kvBackendAdapter{client: client}
}

func (a *kvBackendAdapter) Ping(ctx context.Context) error {
	return a.client.Ping(ctx).Err()
}

func (a *kvBackendAdapter) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := a.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, outbound.ErrCacheMiss
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (a *kvBackendAdapter) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl > 0 {
		return a.client.SetEx(ctx, key, value, ttl).Err()
	}
	return a.client.Set(ctx, key, value, 0).Err()
}

func (a *kvBackendAdapter) Delete(ctx context.Context, key string) error {
	return a.client.Del(ctx, key).Err()
}

func (a *kvBackendAdapter) Exists(ctx context.Context, key string) (bool, error) {
	n, err := a.client.Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (a *kvBackendAdapter) Keys(ctx context.Context, pattern string) ([]string, error) {
	match := escapePattern(pattern)
	seen := make(map[string]struct{})
	var keys []string

	var cursor uint64
	for {
		batch, nextCursor, err := a.client.Scan(ctx, cursor, match, scanBatchSize).Result()
		if err != nil {
			return nil, err
		}
		// SCAN may return a key more than once.
		for _, k := range batch {
			if _, ok := seen[k]; ok {
				continue
			}
			seen[k] = struct{}{}
			keys = append(keys, k)
		}
		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}
	return keys, nil
}

func (a *kvBackendAdapter) SAdd(ctx context.Context, key string, members ...string) error {
	return a.client.SAdd(ctx, key, toAny(members)...).Err()
}

func (a *kvBackendAdapter) SRem(ctx context.Context, key string, members ...string) error {
	return a.client.SRem(ctx, key, toAny(members)...).Err()
}

func (a *kvBackendAdapter) SIsMember(ctx context.Context, key, member string) (bool, error) {
	return a.client.SIsMember(ctx, key, member).Result()
}

func (a *kvBackendAdapter) SMembers(ctx context.Context, key string) ([]string, error) {
	return a.client.SMembers(ctx, key).Result()
}

// escapePattern quotes the Redis glob metacharacters other than '*'.
func escapePattern(pattern string) string {
	var b strings.Builder
	b.Grow(len(pattern))
	for _, r := range pattern {
		switch r {
		case '?', '[', ']', '\\', '^':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

func toAny(members []string) []any {
	out := make([]any, len(members))
	for i, m := range members {
		out[i] = m
	}
	return out
}

// Compile-time check
var _ outbound.KVBackendPort = (*kvBackendAdapter)(nil)
