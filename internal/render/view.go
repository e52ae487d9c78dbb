package render

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/unigo-labs/unigo-chat/internal/domain"
	"github.com/unigo-labs/unigo-chat/internal/panel"
	"github.com/unigo-labs/unigo-chat/internal/reveal"
)

// StreamView renders session updates as frames on a FrameWriter.
// After the first write error the view goes quiet; the session operation
// still runs to completion.
type StreamView struct {
	mu     sync.Mutex
	w      FrameWriter
	pacer  *reveal.Pacer
	logger *slog.Logger
	ctx    context.Context
	seq    int
	err    error
}

// NewStreamView creates a view writing to w. ctx bounds frame writes.
func NewStreamView(ctx context.Context, w FrameWriter, pacer *reveal.Pacer, logger *slog.Logger) *StreamView {
	if logger == nil {
		logger = slog.Default()
	}
	if pacer == nil {
		pacer = reveal.NewPacer(false)
	}
	return &StreamView{w: w, pacer: pacer, logger: logger, ctx: ctx}
}

// Err returns the first write error, if any.
func (v *StreamView) Err() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.err
}

// Skip fast-forwards the reveal in flight and any later one on this view.
func (v *StreamView) Skip() { v.pacer.Skip() }

// Emit writes f unless an earlier write failed.
func (v *StreamView) Emit(f Frame) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.emitLocked(f)
}

func (v *StreamView) emitLocked(f Frame) {
	if v.err != nil {
		return
	}
	if err := v.w.WriteFrame(v.ctx, f); err != nil {
		v.err = err
		v.logger.Debug("frame write failed", "type", f.Type, "error", err)
	}
}

// AppendUser renders the user's message.
func (v *StreamView) AppendUser(text string) {
	v.Emit(Frame{Type: FrameUser, Role: domain.RoleUser, Text: text, HTML: string(panel.FormatBubble(text))})
}

// RevealAssistant opens an assistant bubble and reveals text into it.
func (v *StreamView) RevealAssistant(ctx context.Context, text string, speed time.Duration, transient bool) {
	v.mu.Lock()
	v.seq++
	id := v.seq
	v.emitLocked(Frame{Type: FrameMessage, ID: id, Role: domain.RoleAssistant, Transient: transient})
	v.mu.Unlock()

	err := v.pacer.Reveal(ctx, text, speed, func(delta string) error {
		v.Emit(Frame{Type: FrameReveal, ID: id, Delta: delta})
		return v.Err()
	})
	if err != nil {
		// Sink errors come from the client going away; the text still
		// lands in history, only the animation is cut short.
		v.logger.Debug("reveal aborted", "error", err)
	}
	v.Emit(Frame{Type: FrameReveal, ID: id, Final: true, Text: text, HTML: string(panel.FormatBubble(text))})
}

// ShowLoading shows the loading indicator and returns a func hiding it.
func (v *StreamView) ShowLoading() func() {
	on, off := true, false
	v.Emit(Frame{Type: FrameLoading, Visible: &on})
	var once sync.Once
	return func() {
		once.Do(func() { v.Emit(Frame{Type: FrameLoading, Visible: &off}) })
	}
}

// SetPanel replaces the side panel HTML.
func (v *StreamView) SetPanel(html string) {
	v.Emit(Frame{Type: FramePanel, HTML: html})
}

// SetPlaceholder updates the input hint.
func (v *StreamView) SetPlaceholder(text string) {
	v.Emit(Frame{Type: FramePlaceholder, Text: text})
}

// SetAvatar updates the assistant avatar image URL.
func (v *StreamView) SetAvatar(url string) {
	v.Emit(Frame{Type: FrameAvatar, Text: url})
}

// ReplaceThread re-renders the whole conversation.
func (v *StreamView) ReplaceThread(history domain.ChatHistory) {
	v.Emit(Frame{Type: FrameThread, Messages: Bubbles(history)})
}

// Bubbles renders history as bubbles.
func Bubbles(history domain.ChatHistory) []Bubble {
	out := make([]Bubble, 0, len(history))
	for _, m := range history {
		out = append(out, Bubble{Role: m.Role, Text: m.Content, HTML: string(panel.FormatBubble(m.Content))})
	}
	return out
}
