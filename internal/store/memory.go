package store

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process KV for development and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	data       map[string]memEntry
	sessionTTL time.Duration
	now        func() time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory(sessionTTL time.Duration) *MemoryStore {
	return &MemoryStore{
		data:       make(map[string]memEntry),
		sessionTTL: sessionTTL,
		now:        time.Now,
	}
}

func memKey(scope Scope, namespace, key string) string {
	return scope.String() + "\x00" + namespace + "\x00" + key
}

// Get returns a live value.
func (m *MemoryStore) Get(_ context.Context, scope Scope, namespace, key string) (string, bool, error) {
	if err := validScope(scope); err != nil {
		return "", false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.data[memKey(scope, namespace, key)]
	if !ok || (!e.expiresAt.IsZero() && !m.now().Before(e.expiresAt)) {
		return "", false, nil
	}
	return e.value, true, nil
}

// Set stores value.
func (m *MemoryStore) Set(_ context.Context, scope Scope, namespace, key, value string) error {
	if err := validScope(scope); err != nil {
		return err
	}
	e := memEntry{value: value}
	if scope == ScopeSession && m.sessionTTL > 0 {
		e.expiresAt = m.now().Add(m.sessionTTL)
	}
	m.mu.Lock()
	m.data[memKey(scope, namespace, key)] = e
	m.mu.Unlock()
	return nil
}

// Remove deletes key.
func (m *MemoryStore) Remove(_ context.Context, scope Scope, namespace, key string) error {
	if err := validScope(scope); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.data, memKey(scope, namespace, key))
	m.mu.Unlock()
	return nil
}

// DeleteExpired purges expired entries.
func (m *MemoryStore) DeleteExpired(_ context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, e := range m.data {
		if !e.expiresAt.IsZero() && !now.Before(e.expiresAt) {
			delete(m.data, k)
			n++
		}
	}
	return n, nil
}

// Ping always succeeds.
func (m *MemoryStore) Ping(context.Context) error { return nil }

// Close is a no-op.
func (m *MemoryStore) Close() error { return nil }
