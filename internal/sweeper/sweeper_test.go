package sweeper

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/unigo-labs/unigo-chat/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeEvicter struct {
	calls atomic.Int32
	n     int
	ttl   time.Duration
}

func (f *fakeEvicter) EvictIdle(ttl time.Duration) int {
	f.calls.Add(1)
	f.ttl = ttl
	return f.n
}

type failingExpirer struct {
	store.KV
}

func (failingExpirer) DeleteExpired(context.Context, time.Time) (int64, error) {
	return 0, errors.New("database is locked")
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestSweepPurgesExpiredValues(t *testing.T) {
	ctx := context.Background()
	kv := store.NewMemory(time.Minute)
	require.NoError(t, kv.Set(ctx, store.ScopeSession, "dev:tab", "chat_history", "[]"))
	require.NoError(t, kv.Set(ctx, store.ScopeDurable, "dev", "character", "rabbit"))

	tabs := &fakeEvicter{n: 2}
	s := New(kv, tabs, time.Minute, time.Hour, quietLogger())
	s.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	expired, evicted := s.Sweep(ctx)
	assert.Equal(t, int64(1), expired)
	assert.Equal(t, 2, evicted)
	assert.Equal(t, time.Minute, tabs.ttl)

	_, found, err := kv.Get(ctx, store.ScopeDurable, "dev", "character")
	require.NoError(t, err)
	assert.True(t, found)
}

func TestSweepSurvivesExpirerError(t *testing.T) {
	tabs := &fakeEvicter{n: 1}
	s := New(failingExpirer{store.NewMemory(time.Minute)}, tabs, time.Minute, time.Hour, quietLogger())

	expired, evicted := s.Sweep(context.Background())
	assert.Zero(t, expired)
	assert.Equal(t, 1, evicted)
}

func TestStartRunsUntilCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	tabs := &fakeEvicter{}
	s := New(store.NewMemory(time.Minute), tabs, time.Minute, 5*time.Millisecond, quietLogger())

	var sweeps atomic.Int32
	s.OnSweep(func(int64, int) { sweeps.Add(1) })
	s.Start(ctx)

	assert.Eventually(t, func() bool { return sweeps.Load() >= 2 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-s.Done():
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
	assert.GreaterOrEqual(t, tabs.calls.Load(), int32(2))
}
