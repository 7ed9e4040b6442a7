// Package kvstore implements a key-value store that serves every operation
// from a remote backend when one answered the startup probe, and from an
// in-process table otherwise. A failed remote call degrades only that call to
// the in-process table; the store never re-probes and never copies data back
// to the remote tier once it recovers.
package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"github.com/juju/clock"
	"go.uber.org/zap"

	"github.com/vpio/server/internal/port/outbound"
	apperrors "github.com/vpio/server/internal/utils/errors"
	"github.com/vpio/server/internal/utils/metrics"
)

const (
	tierRemote = "remote"
	tierMemory = "memory"
)

// Status describes which tier is serving traffic.
type Status struct {
	RemoteConfigured bool  `json:"remote_configured"`
	RemoteConnected  bool  `json:"remote_connected"`
	FallbackMode     bool  `json:"fallback_mode"`
	MemoryKeys       int   `json:"memory_keys"`
	DegradedWrites   int64 `json:"degraded_writes"`
	RemoteFailures   int64 `json:"remote_failures"`
}

// Store is the dual-tier key-value store. It is safe for concurrent use.
type Store struct {
	remote     outbound.KVBackendPort // nil in fallback mode
	configured bool
	memory     *memoryTier

	clock        clock.Clock
	logger       *zap.Logger
	metrics      *metrics.Metrics
	probeTimeout time.Duration
	opTimeout    time.Duration

	degradedWrites atomic.Int64
	remoteFailures atomic.Int64
}

// New creates a store and probes the backend once. A nil backend, or one that
// fails the probe, leaves the store in fallback mode for its whole lifetime.
func New(ctx context.Context, backend outbound.KVBackendPort, opts ...Option) *Store {
	s := &Store{
		configured:   backend != nil,
		memory:       newMemoryTier(),
		clock:        clock.WallClock,
		logger:       zap.NewNop(),
		probeTimeout: defaultProbeTimeout,
		opTimeout:    defaultOperationTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.Named("kvstore")

	if backend == nil {
		s.logger.Info("no remote backend configured, using memory tier")
		return s
	}

	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()
	if err := backend.Ping(probeCtx); err != nil {
		s.logger.Warn("remote backend probe failed, using memory tier", zap.Error(err))
		return s
	}

	s.remote = backend
	s.logger.Info("remote backend connected")
	return s
}

// Set stores value as JSON. A ttl <= 0 stores without expiry; positive ttls
// are rounded up to whole seconds. It reports whether the value landed in
// either tier.
func (s *Store) Set(ctx context.Context, key string, value any, ttl time.Duration) bool {
	data, err := json.Marshal(value)
	if err != nil {
		s.logger.Error("failed to encode value", zap.String("key", key), zap.Error(err))
		return false
	}
	ttl = normalizeTTL(ttl)

	if s.remote != nil {
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			return s.remote.Set(ctx, key, data, ttl)
		})
		if err == nil {
			// A successful remote write supersedes any degraded copy.
			s.memory.delete(key)
			s.metrics.RecordStoreOperation("set", tierRemote, true)
			return true
		}
		s.remoteFailed("set", key, err, true)
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = s.clock.Now().Add(ttl)
	}
	s.memory.set(key, data, expiresAt)
	s.metrics.RecordStoreOperation("set", tierMemory, true)
	return true
}

// Get decodes the value stored under key into dest. It returns false when the
// key is absent, expired, or holds a payload that does not decode into dest.
func (s *Store) Get(ctx context.Context, key string, dest any) bool {
	data, ok := s.getRaw(ctx, key)
	if !ok {
		return false
	}
	if err := json.Unmarshal(data, dest); err != nil {
		s.logger.Warn("malformed payload treated as miss", zap.Error(apperrors.MalformedPayload(key, err)))
		return false
	}
	return true
}

func (s *Store) getRaw(ctx context.Context, key string) ([]byte, bool) {
	if s.remote != nil {
		var data []byte
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			data, err = s.remote.Get(ctx, key)
			return err
		})
		switch {
		case err == nil:
			s.metrics.RecordStoreOperation("get", tierRemote, true)
			return data, true
		case errors.Is(err, outbound.ErrCacheMiss):
			s.metrics.RecordStoreOperation("get", tierRemote, false)
			return nil, false
		}
		s.remoteFailed("get", key, err, false)
	}

	data, ok := s.memory.get(key, s.clock.Now())
	s.metrics.RecordStoreOperation("get", tierMemory, ok)
	return data, ok
}

// Delete removes key. It reports whether the delete was carried out, not
// whether the key existed.
func (s *Store) Delete(ctx context.Context, key string) bool {
	if s.remote != nil {
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			return s.remote.Delete(ctx, key)
		})
		if err == nil {
			s.memory.delete(key)
			s.metrics.RecordStoreOperation("delete", tierRemote, true)
			return true
		}
		s.remoteFailed("delete", key, err, true)
	}

	s.memory.delete(key)
	s.metrics.RecordStoreOperation("delete", tierMemory, true)
	return true
}

// Exists reports whether key holds a live value.
func (s *Store) Exists(ctx context.Context, key string) bool {
	if s.remote != nil {
		var found bool
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			found, err = s.remote.Exists(ctx, key)
			return err
		})
		if err == nil {
			s.metrics.RecordStoreOperation("exists", tierRemote, found)
			return found
		}
		s.remoteFailed("exists", key, err, false)
	}

	found := s.memory.exists(key, s.clock.Now())
	s.metrics.RecordStoreOperation("exists", tierMemory, found)
	return found
}

// Keys lists live keys matching pattern, where '*' is the only wildcard.
// Ordering is unspecified.
func (s *Store) Keys(ctx context.Context, pattern string) []string {
	if s.remote != nil {
		var keys []string
		err := s.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			keys, err = s.remote.Keys(ctx, pattern)
			return err
		})
		if err == nil {
			s.metrics.RecordStoreOperation("keys", tierRemote, true)
			return keys
		}
		s.remoteFailed("keys", pattern, err, false)
	}

	keys := s.memory.keys(pattern, s.clock.Now())
	s.metrics.RecordStoreOperation("keys", tierMemory, true)
	return keys
}

// Sweep evicts expired entries from the memory tier. Reads already evict
// lazily, so a sweep only reclaims memory.
func (s *Store) Sweep(now time.Time) int {
	evicted := s.memory.sweep(now)
	s.metrics.RecordSweep(evicted)
	if evicted > 0 {
		s.logger.Debug("swept expired entries", zap.Int("evicted", evicted))
	}
	return evicted
}

// Status reports the serving mode and degradation counters.
func (s *Store) Status() Status {
	return Status{
		RemoteConfigured: s.configured,
		RemoteConnected:  s.remote != nil,
		FallbackMode:     s.remote == nil,
		MemoryKeys:       s.memory.len(),
		DegradedWrites:   s.degradedWrites.Load(),
		RemoteFailures:   s.remoteFailures.Load(),
	}
}

func (s *Store) withTimeout(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()
	return fn(ctx)
}

func (s *Store) remoteFailed(op, key string, err error, write bool) {
	s.remoteFailures.Add(1)
	if write {
		s.degradedWrites.Add(1)
	}
	s.metrics.RecordStoreFallback(op, write)
	s.logger.Warn("remote backend unavailable, falling back to memory tier",
		zap.String("operation", op),
		zap.String("key", key),
		zap.Bool("degraded_write", write),
		zap.Error(apperrors.BackendUnavailable(op, err)),
	)
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return 0
	}
	return ((ttl + time.Second - 1) / time.Second) * time.Second
}
