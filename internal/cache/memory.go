package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memEntry struct {
	data    []byte
	expires time.Time
}

// Memory is an in-process Store on an expirable LRU. maxTTL caps every entry.
type Memory struct {
	lru *expirable.LRU[string, memEntry]
	now func() time.Time

	mu  sync.Mutex
	gen uint64
}

func NewMemory(size int, maxTTL time.Duration) *Memory {
	return &Memory{lru: expirable.NewLRU[string, memEntry](size, nil, maxTTL), now: time.Now}
}

func (m *Memory) Get(_ context.Context, key string, dest any) (bool, error) {
	e, ok := m.lru.Get(key)
	if !ok {
		return false, nil
	}
	if !e.expires.IsZero() && !m.now().Before(e.expires) {
		m.lru.Remove(key)
		return false, nil
	}
	return true, decode(e.data, dest)
}

func (m *Memory) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	e, err := m.entry(value, ttl)
	if err != nil {
		return err
	}
	m.lru.Add(key, e)
	return nil
}

func (m *Memory) Generation(context.Context) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gen, nil
}

func (m *Memory) SetIfGeneration(_ context.Context, gen uint64, key string, value any, ttl time.Duration) error {
	e, err := m.entry(value, ttl)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.gen == gen {
		m.lru.Add(key, e)
	}
	return nil
}

func (m *Memory) entry(value any, ttl time.Duration) (memEntry, error) {
	b, err := encode(value)
	if err != nil {
		return memEntry{}, err
	}
	e := memEntry{data: b}
	if ttl > 0 {
		e.expires = m.now().Add(ttl)
	}
	return e, nil
}

func (m *Memory) Invalidate(_ context.Context, paths ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gen++
	for _, key := range m.lru.Keys() {
		for _, p := range paths {
			if Under(key, p) {
				m.lru.Remove(key)
				break
			}
		}
	}
	return nil
}

var _ Store = (*Memory)(nil)
