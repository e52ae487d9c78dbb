// Package reveal replays an already-received reply character by character.
package reveal

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Per-character speeds used by the chat widget.
const (
	PromptSpeed   = 15 * time.Millisecond
	ReplySpeed    = 15 * time.Millisecond
	GreetingSpeed = 20 * time.Millisecond
	ErrorSpeed    = 20 * time.Millisecond
)

// Sink receives each newly visible chunk of text.
type Sink func(delta string) error

// Pacer reveals text on a time basis: after elapsed time e, max(1, e/speed)
// runes are visible, so a stalled writer catches up instead of falling behind.
// A Pacer belongs to one operation and runs one reveal at a time.
type Pacer struct {
	mu       sync.Mutex
	skipped  atomic.Bool
	skip     chan struct{}
	skipOnce sync.Once
	enabled  bool
	now      func() time.Time
}

// NewPacer creates a pacer. A disabled pacer writes every text in one chunk.
func NewPacer(enabled bool) *Pacer {
	return &Pacer{
		skip:    make(chan struct{}),
		enabled: enabled,
		now:     time.Now,
	}
}

// Skip fast-forwards the reveal in flight and every later reveal on this
// pacer. A skip issued before any reveal starts still applies.
func (p *Pacer) Skip() {
	p.skipOnce.Do(func() {
		p.skipped.Store(true)
		close(p.skip)
	})
}

// Skipped reports whether Skip has been called.
func (p *Pacer) Skipped() bool { return p.skipped.Load() }

// Reveal writes text to sink at speed per rune. Skip or ctx cancellation
// flushes the remainder in one chunk; the full text is always written unless
// sink fails.
func (p *Pacer) Reveal(ctx context.Context, text string, speed time.Duration, sink Sink) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}
	if !p.enabled || speed <= 0 || p.skipped.Load() {
		return sink(text)
	}

	start := p.now()
	shown := 0
	ticker := time.NewTicker(speed)
	defer ticker.Stop()

	for {
		visible := int(p.now().Sub(start) / speed)
		if visible < 1 {
			visible = 1
		}
		if visible > len(runes) {
			visible = len(runes)
		}
		if visible > shown {
			if err := sink(string(runes[shown:visible])); err != nil {
				return err
			}
			shown = visible
		}
		if shown == len(runes) {
			return nil
		}

		select {
		case <-ticker.C:
		case <-p.skip:
			return sink(string(runes[shown:]))
		case <-ctx.Done():
			return sink(string(runes[shown:]))
		}
	}
}
