package kvstore

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/vpio/server/internal/port/outbound"
)

var errConnRefused = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")

// fakeBackend is an in-memory KVBackendPort whose availability can be toggled.
type fakeBackend struct {
	mu      sync.Mutex
	down    bool
	pingErr error
	data    map[string][]byte
	ttls    map[string]time.Duration
	sets    map[string][]string
	calls   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		data: make(map[string][]byte),
		ttls: make(map[string]time.Duration),
		sets: make(map[string][]string),
	}
}

func (f *fakeBackend) setDown(down bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.down = down
}

func (f *fakeBackend) begin() error {
	f.calls++
	if f.down {
		return errConnRefused
	}
	return nil
}

func (f *fakeBackend) Ping(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pingErr != nil {
		return f.pingErr
	}
	return f.begin()
}

func (f *fakeBackend) Get(_ context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return nil, err
	}
	v, ok := f.data[key]
	if !ok {
		return nil, outbound.ErrCacheMiss
	}
	return v, nil
}

func (f *fakeBackend) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return err
	}
	f.data[key] = value
	f.ttls[key] = ttl
	return nil
}

func (f *fakeBackend) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return err
	}
	delete(f.data, key)
	delete(f.sets, key)
	return nil
}

func (f *fakeBackend) Exists(_ context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return false, err
	}
	_, ok := f.data[key]
	return ok, nil
}

func (f *fakeBackend) Keys(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return nil, err
	}
	re := compileGlob(pattern)
	var out []string
	for k := range f.data {
		if re.MatchString(k) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeBackend) SAdd(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return err
	}
	for _, m := range members {
		if !slices.Contains(f.sets[key], m) {
			f.sets[key] = append(f.sets[key], m)
		}
	}
	return nil
}

func (f *fakeBackend) SRem(_ context.Context, key string, members ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return err
	}
	f.sets[key] = slices.DeleteFunc(f.sets[key], func(s string) bool {
		return slices.Contains(members, s)
	})
	return nil
}

func (f *fakeBackend) SIsMember(_ context.Context, key, member string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return false, err
	}
	return slices.Contains(f.sets[key], member), nil
}

func (f *fakeBackend) SMembers(_ context.Context, key string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.begin(); err != nil {
		return nil, err
	}
	return slices.Clone(f.sets[key]), nil
}

var _ outbound.KVBackendPort = (*fakeBackend)(nil)
