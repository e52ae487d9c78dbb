// Package render turns session view calls into wire frames for the browser.
package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// FrameType identifies a frame on the wire.
type FrameType string

// Frame types.
const (
	FrameUser        FrameType = "user"
	FrameMessage     FrameType = "message"
	FrameReveal      FrameType = "reveal"
	FrameLoading     FrameType = "loading"
	FramePanel       FrameType = "panel"
	FramePlaceholder FrameType = "placeholder"
	FrameAvatar      FrameType = "avatar"
	FrameThread      FrameType = "thread"
	FrameError       FrameType = "error"
	FrameDone        FrameType = "done"
	FramePong        FrameType = "pong"
)

// Bubble is one rendered chat message.
type Bubble struct {
	Role string `json:"role"`
	Text string `json:"text"`
	HTML string `json:"html"`
}

// Frame is a single server-to-browser update.
//
// An assistant reveal is a "message" frame opening bubble ID, any number of
// "reveal" frames carrying Delta, and a closing "reveal" frame with Final set
// and the formatted HTML.
type Frame struct {
	Type      FrameType `json:"type"`
	ID        int       `json:"id,omitempty"`
	Role      string    `json:"role,omitempty"`
	Text      string    `json:"text,omitempty"`
	Delta     string    `json:"delta,omitempty"`
	HTML      string    `json:"html,omitempty"`
	Transient bool      `json:"transient,omitempty"`
	Final     bool      `json:"final,omitempty"`
	Visible   *bool     `json:"visible,omitempty"`
	Messages  []Bubble  `json:"messages,omitempty"`
	Error     string    `json:"error,omitempty"`
	Data      any       `json:"data,omitempty"`
}

// FrameWriter delivers frames to one client.
type FrameWriter interface {
	WriteFrame(ctx context.Context, f Frame) error
}

// ErrStreamingUnsupported is returned when the response cannot be flushed.
var ErrStreamingUnsupported = errors.New("streaming not supported")

// SSEWriter writes frames as server-sent events.
type SSEWriter struct {
	mu      sync.Mutex
	w       io.Writer
	flusher http.Flusher
	eventID int64
}

// NewSSEWriter sets the event-stream headers on w and returns a writer for it.
func NewSSEWriter(w http.ResponseWriter) (*SSEWriter, error) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return nil, ErrStreamingUnsupported
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	return &SSEWriter{w: w, flusher: flusher}, nil
}

// WriteFrame implements FrameWriter.
func (s *SSEWriter) WriteFrame(_ context.Context, f Frame) error {
	data, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("marshal frame: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.eventID++
	if _, err := fmt.Fprintf(s.w, "id: %d\nevent: %s\ndata: %s\n\n", s.eventID, f.Type, data); err != nil {
		return err
	}
	s.flusher.Flush()
	return nil
}
