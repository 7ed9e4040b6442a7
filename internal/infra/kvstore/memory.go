package kvstore

import (
	"encoding/json"
	"slices"
	"sync"
	"time"
)

// entry is one slot of the in-process tier. A zero expiresAt means no TTL.
type entry struct {
	value     []byte
	expiresAt time.Time
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// memoryTier is the fallback table. Expiry lives on the entry itself, so
// there is no second map to keep in sync.
type memoryTier struct {
	mu      sync.Mutex
	entries map[string]*entry
}

func newMemoryTier() *memoryTier {
	return &memoryTier{entries: make(map[string]*entry)}
}

func (m *memoryTier) set(key string, value []byte, expiresAt time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = &entry{value: value, expiresAt: expiresAt}
}

// get returns the live value for key, evicting it first if it has expired.
func (m *memoryTier) get(key string, now time.Time) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.lookup(key, now)
	if !ok {
		return nil, false
	}
	return e.value, true
}

func (m *memoryTier) delete(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.entries[key]
	delete(m.entries, key)
	return ok
}

func (m *memoryTier) exists(key string, now time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.lookup(key, now)
	return ok
}

func (m *memoryTier) keys(pattern string, now time.Time) []string {
	re := compileGlob(pattern)

	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			continue
		}
		if re.MatchString(k) {
			out = append(out, k)
		}
	}
	return out
}

// sweep removes every expired entry and returns how many were evicted.
func (m *memoryTier) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
			evicted++
		}
	}
	return evicted
}

func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Sets are held as a JSON array of strings under the set's key, the same
// encoding a plain Get of that key would decode.

func (m *memoryTier) setAdd(key string, members []string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, expiresAt, err := m.members(key, now)
	if err != nil {
		return err
	}
	for _, member := range members {
		if !slices.Contains(current, member) {
			current = append(current, member)
		}
	}
	return m.store(key, current, expiresAt)
}

func (m *memoryTier) setRemove(key string, members []string, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	current, expiresAt, err := m.members(key, now)
	if err != nil {
		return err
	}
	current = slices.DeleteFunc(current, func(s string) bool {
		return slices.Contains(members, s)
	})
	return m.store(key, current, expiresAt)
}

func (m *memoryTier) setMembers(key string, now time.Time) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	current, _, err := m.members(key, now)
	return current, err
}

// lookup must be called with mu held.
func (m *memoryTier) lookup(key string, now time.Time) (*entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if e.expired(now) {
		delete(m.entries, key)
		return nil, false
	}
	return e, true
}

// members must be called with mu held.
func (m *memoryTier) members(key string, now time.Time) ([]string, time.Time, error) {
	e, ok := m.lookup(key, now)
	if !ok {
		return nil, time.Time{}, nil
	}
	var out []string
	if err := json.Unmarshal(e.value, &out); err != nil {
		return nil, time.Time{}, err
	}
	return out, e.expiresAt, nil
}

// store must be called with mu held.
func (m *memoryTier) store(key string, members []string, expiresAt time.Time) error {
	if members == nil {
		members = []string{}
	}
	data, err := json.Marshal(members)
	if err != nil {
		return err
	}
	m.entries[key] = &entry{value: data, expiresAt: expiresAt}
	return nil
}
