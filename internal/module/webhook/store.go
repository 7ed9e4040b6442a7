package webhook

import (
	"context"
	"sync"
)

// QueueStore persists the whole failed-webhook collection. The queue always
// loads and saves the full list, so implementations need no partial updates.
type QueueStore interface {
	Load(ctx context.Context) ([]*FailedWebhook, error)
	Save(ctx context.Context, list []*FailedWebhook) error
}

// VolatileQueueStore keeps the collection in process memory. Its contents are
// lost on restart.
type VolatileQueueStore struct {
	mu   sync.Mutex
	list []FailedWebhook
}

// NewVolatileQueueStore creates an empty in-memory store.
func NewVolatileQueueStore() *VolatileQueueStore {
	return &VolatileQueueStore{}
}

// Load returns copies so callers cannot mutate stored entries.
func (s *VolatileQueueStore) Load(_ context.Context) ([]*FailedWebhook, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*FailedWebhook, len(s.list))
	for i := range s.list {
		w := s.list[i]
		out[i] = &w
	}
	return out, nil
}

func (s *VolatileQueueStore) Save(_ context.Context, list []*FailedWebhook) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.list = make([]FailedWebhook, len(list))
	for i, w := range list {
		s.list[i] = *w
	}
	return nil
}

var _ QueueStore = (*VolatileQueueStore)(nil)
