// Package sweeper purges expired session state in the background.
package sweeper

import (
	"context"
	"log/slog"
	"time"

	"github.com/unigo-labs/unigo-chat/internal/store"
)

// DefaultInterval is how often a sweep runs.
const DefaultInterval = 5 * time.Minute

// Evicter drops in-memory tab controllers idle for longer than ttl.
type Evicter interface {
	EvictIdle(ttl time.Duration) int
}

// SweepCallback is called after each sweep with the number of expired
// storage rows and evicted tabs.
type SweepCallback func(expired int64, evicted int)

// Sweeper periodically deletes expired session-scope values and evicts
// idle tabs.
type Sweeper struct {
	kv       store.KV
	tabs     Evicter
	ttl      time.Duration
	interval time.Duration
	onSweep  SweepCallback
	now      func() time.Time
	logger   *slog.Logger
	done     chan struct{}
}

// New creates a sweeper. A zero interval selects DefaultInterval.
func New(kv store.KV, tabs Evicter, ttl, interval time.Duration, logger *slog.Logger) *Sweeper {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sweeper{
		kv:       kv,
		tabs:     tabs,
		ttl:      ttl,
		interval: interval,
		now:      time.Now,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// OnSweep registers fn to run after every sweep.
func (s *Sweeper) OnSweep(fn SweepCallback) {
	s.onSweep = fn
}

// Start runs the sweep loop until ctx is cancelled.
func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer close(s.done)
		defer ticker.Stop()
		s.logger.Info("Session sweeper started", "interval", s.interval, "ttl", s.ttl)

		for {
			select {
			case <-ticker.C:
				s.Sweep(ctx)
			case <-ctx.Done():
				s.logger.Info("Session sweeper shutting down", "reason", ctx.Err())
				return
			}
		}
	}()
}

// Done is closed once the loop started by Start has exited.
func (s *Sweeper) Done() <-chan struct{} {
	return s.done
}

// Sweep runs one pass.
func (s *Sweeper) Sweep(ctx context.Context) (expired int64, evicted int) {
	if exp, ok := s.kv.(store.Expirer); ok {
		n, err := exp.DeleteExpired(ctx, s.now())
		if err != nil {
			s.logger.Error("Session sweeper failed to delete expired values", "error", err)
		} else {
			expired = n
		}
	}
	if s.tabs != nil {
		evicted = s.tabs.EvictIdle(s.ttl)
	}

	if expired > 0 || evicted > 0 {
		s.logger.Info("Session sweep completed", "expired", expired, "evicted", evicted)
	}
	if s.onSweep != nil {
		s.onSweep(expired, evicted)
	}
	return expired, evicted
}
