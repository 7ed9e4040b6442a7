package webhook

import (
	"context"
	"fmt"
	"time"
)

// DefaultKVKey is the dual-tier store key holding the collection.
const DefaultKVKey = "failed_webhooks"

// KVBackend is the subset of the dual-tier store used by KVQueueStore.
type KVBackend interface {
	Set(ctx context.Context, key string, value any, ttl time.Duration) bool
	Get(ctx context.Context, key string, dest any) bool
}

// KVQueueStore keeps the collection under one key of the dual-tier store.
// It is durable when the store has a remote tier.
type KVQueueStore struct {
	kv  KVBackend
	key string
}

// NewKVQueueStore creates a store writing to key, or DefaultKVKey if empty.
func NewKVQueueStore(kv KVBackend, key string) *KVQueueStore {
	if key == "" {
		key = DefaultKVKey
	}
	return &KVQueueStore{kv: kv, key: key}
}

func (s *KVQueueStore) Load(ctx context.Context) ([]*FailedWebhook, error) {
	var list []*FailedWebhook
	if !s.kv.Get(ctx, s.key, &list) {
		return nil, nil
	}
	return list, nil
}

func (s *KVQueueStore) Save(ctx context.Context, list []*FailedWebhook) error {
	if list == nil {
		list = []*FailedWebhook{}
	}
	if !s.kv.Set(ctx, s.key, list, 0) {
		return fmt.Errorf("%w: write key %q", ErrQueueStore, s.key)
	}
	return nil
}

var _ QueueStore = (*KVQueueStore)(nil)
