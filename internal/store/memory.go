package store

import (
	"context"
	"sync"
	"time"
)

type entry struct {
	value   []byte
	expires time.Time
}

func (e entry) live(now time.Time) bool {
	return e.expires.IsZero() || now.Before(e.expires)
}

// Memory is an in-process Store with lazy expiry.
type Memory struct {
	mu   sync.RWMutex
	data map[string]entry

	// Now is the clock used for expiry. Tests replace it.
	Now func() time.Time
}

var (
	_ Store   = (*Memory)(nil)
	_ Batcher = (*Memory)(nil)
)

func NewMemory() *Memory {
	return &Memory{data: make(map[string]entry), Now: time.Now}
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.Now().Add(ttl)
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[key]
	if !ok || !e.live(m.Now()) {
		return nil, ErrNotFound
	}
	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, nil
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set(key, value, ttl)
	return nil
}

func (m *Memory) set(key string, value []byte, ttl time.Duration) {
	v := make([]byte, len(value))
	copy(v, value)
	m.data[key] = entry{value: v, expires: m.expiry(ttl)}
}

func (m *Memory) Remove(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func (m *Memory) Extend(_ context.Context, key string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extend(key, ttl)
	return nil
}

func (m *Memory) extend(key string, ttl time.Duration) {
	e, ok := m.data[key]
	if !ok || !e.live(m.Now()) {
		return
	}
	e.expires = m.expiry(ttl)
	m.data[key] = e
}

func (m *Memory) Apply(_ context.Context, ops []Op) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, op := range ops {
		switch {
		case op.Delete:
			delete(m.data, op.Key)
		case op.Extend:
			m.extend(op.Key, op.TTL)
		default:
			m.set(op.Key, op.Value, op.TTL)
		}
	}
	return nil
}

// Len counts live keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	now := m.Now()
	n := 0
	for _, e := range m.data {
		if e.live(now) {
			n++
		}
	}
	return n
}
