package session

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/unigo-labs/unigo-chat/internal/store"
	"github.com/unigo-labs/unigo-chat/internal/transcript"
	"github.com/unigo-labs/unigo-chat/internal/upstream"
)

// Key identifies a browser tab on a device.
type Key struct {
	Device string
	Tab    string
}

// String returns the tab's session-scope namespace.
func (k Key) String() string { return k.Device + ":" + k.Tab }

// Manager keeps one controller per tab and runs at most one operation per
// tab at a time.
type Manager struct {
	kv      store.KV
	api     upstream.API
	loader  *Loader
	opts    Options
	journal transcript.Logger
	logger  *slog.Logger
	now     func() time.Time

	mu   sync.Mutex
	tabs map[Key]*tab
}

type tab struct {
	mu   sync.Mutex
	ctrl *Controller

	stateMu  sync.Mutex
	active   Skipper
	lastUsed time.Time
}

// NewManager creates a manager backed by kv.
func NewManager(kv store.KV, api upstream.API, opts Options, journal transcript.Logger, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if journal == nil {
		journal = transcript.Noop{}
	}
	return &Manager{
		kv:      kv,
		api:     api,
		loader:  NewLoader(api, logger),
		opts:    opts,
		journal: journal,
		logger:  logger,
		now:     time.Now,
		tabs:    make(map[Key]*tab),
	}
}

// Bootstrap handles a page load: the session is rebuilt through the loader
// and rendered into view.
func (m *Manager) Bootstrap(ctx context.Context, key Key, view View) Snapshot {
	t := m.acquire(key, view)
	defer m.release(t)

	b := m.bucket(key)
	sess, auth := m.loader.Load(ctx, b)
	t.ctrl = newController(key, m.api, b, sess, auth, m.opts, m.journal, m.logger)
	m.logger.Info("Tab session loaded",
		"tab", key.String(),
		"authenticated", auth.IsAuthenticated,
		"messages", len(sess.ChatHistory),
	)
	t.ctrl.Start(ctx, view)
	return t.ctrl.Snapshot(ctx)
}

// Do runs op on the tab's controller, rehydrating it from storage when the
// tab is not live. A reveal still running for the tab is fast-forwarded first.
func (m *Manager) Do(ctx context.Context, key Key, view View, op func(*Controller) error) error {
	t := m.acquire(key, view)
	defer m.release(t)

	if t.ctrl == nil {
		b := m.bucket(key)
		sess, auth := m.loader.Rehydrate(ctx, b)
		t.ctrl = newController(key, m.api, b, sess, auth, m.opts, m.journal, m.logger)
		m.logger.Info("Tab session rehydrated", "tab", key.String(), "messages", len(sess.ChatHistory))
	}
	return op(t.ctrl)
}

// Evict drops the live controller of a tab. Persisted state is kept.
func (m *Manager) Evict(key Key) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.tabs, key)
}

// EvictIdle drops controllers unused for longer than ttl and returns how
// many were dropped. Tabs with an operation in flight are skipped.
func (m *Manager) EvictIdle(ttl time.Duration) int {
	cutoff := m.now().Add(-ttl)

	m.mu.Lock()
	defer m.mu.Unlock()

	evicted := 0
	for key, t := range m.tabs {
		if !t.mu.TryLock() {
			continue
		}
		t.stateMu.Lock()
		idle := t.lastUsed.Before(cutoff)
		t.stateMu.Unlock()
		if idle {
			delete(m.tabs, key)
			evicted++
		}
		t.mu.Unlock()
	}
	return evicted
}

// Len returns the number of live tabs.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tabs)
}

func (m *Manager) bucket(key Key) *store.Bucket {
	return store.NewBucket(m.kv, key.String(), key.Device, m.logger)
}

func (m *Manager) lookup(key Key) *tab {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tabs[key]
	if !ok {
		t = &tab{lastUsed: m.now()}
		m.tabs[key] = t
	}
	return t
}

// acquire skips the reveal of the operation in flight, then takes the tab
// lock and registers view as the active one.
func (m *Manager) acquire(key Key, view View) *tab {
	var t *tab
	for {
		t = m.lookup(key)

		t.stateMu.Lock()
		if t.active != nil {
			t.active.Skip()
		}
		t.stateMu.Unlock()

		t.mu.Lock()
		if m.current(key, t) {
			break
		}
		// Evicted while waiting for the lock.
		t.mu.Unlock()
	}

	t.stateMu.Lock()
	t.active, _ = view.(Skipper)
	t.lastUsed = m.now()
	t.stateMu.Unlock()
	return t
}

func (m *Manager) current(key Key, t *tab) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tabs[key] == t
}

func (m *Manager) release(t *tab) {
	t.stateMu.Lock()
	t.active = nil
	t.lastUsed = m.now()
	t.stateMu.Unlock()
	t.mu.Unlock()
}
