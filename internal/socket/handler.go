package socket

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/unigo-labs/unigo-chat/internal/identity"
	"github.com/unigo-labs/unigo-chat/internal/render"
	"github.com/unigo-labs/unigo-chat/internal/reveal"
	"github.com/unigo-labs/unigo-chat/internal/session"
)

const (
	writeTimeout = 10 * time.Second
	opQueueSize  = 16
)

// Client frame types.
const (
	clientBootstrap = "bootstrap"
	clientSubmit    = "submit"
	clientReset     = "reset"
	clientPing      = "ping"
)

type clientFrame struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// Handler upgrades GET /ws/widget and runs widget operations from client
// frames, streaming render frames back.
type Handler struct {
	sessions       *session.Manager
	registry       *Registry
	allowedOrigins []string
	revealEnabled  bool
	isDev          bool
	logger         *slog.Logger
}

// NewHandler creates a WebSocket handler.
func NewHandler(sessions *session.Manager, registry *Registry, allowedOrigins []string, revealEnabled, isDev bool, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		sessions:       sessions,
		registry:       registry,
		allowedOrigins: allowedOrigins,
		revealEnabled:  revealEnabled,
		isDev:          isDev,
		logger:         logger,
	}
}

// wsWriter adapts a websocket connection to render.FrameWriter.
type wsWriter struct {
	conn *websocket.Conn
}

func (w *wsWriter) WriteFrame(ctx context.Context, f render.Frame) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, w.conn, f)
}

// conn is one client connection. Operations run in order on a single
// worker; a new operation fast-forwards the reveal of the running one.
type conn struct {
	h      *Handler
	ws     *websocket.Conn
	writer *wsWriter
	ops    chan clientFrame

	mu      sync.Mutex
	key     session.Key
	current *render.StreamView
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	key := session.Key{
		Device: identity.DeviceIDFromContext(r.Context()),
		Tab:    identity.TabIDFromContext(r.Context()),
	}
	h.logger.Info("WebSocket connection request", "tab", key.String(), "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		h.logger.Error("Failed to accept WebSocket", "error", err, "tab", key.String())
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			h.logger.Debug("Failed to close websocket", "error", closeErr)
		}
	}()

	c := &conn{
		h:      h,
		ws:     ws,
		writer: &wsWriter{conn: ws},
		ops:    make(chan clientFrame, opQueueSize),
		key:    key,
	}
	if key.Tab != "" {
		h.registry.Register(key, ws)
	}
	defer func() { h.registry.Unregister(c.tabKey(), ws) }()

	// Credentials forwarded by middleware live on the request context;
	// the worker keeps them but not the request's cancellation.
	opCtx := context.WithoutCancel(r.Context())

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.work(opCtx)
	}()

	c.readLoop(r.Context())
	close(c.ops)
	c.skip()
	wg.Wait()
	h.logger.Info("Widget socket closed", "tab", c.tabKey().String())
}

func (h *Handler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range h.allowedOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	h.logger.Warn("WebSocket origin rejected", "origin", origin)
	return false
}

func (c *conn) readLoop(ctx context.Context) {
	for {
		var msg clientFrame
		if err := wsjson.Read(ctx, c.ws, &msg); err != nil {
			if websocket.CloseStatus(err) != -1 || errors.Is(err, context.Canceled) {
				c.h.logger.Debug("WebSocket closed by client", "tab", c.tabKey().String())
			} else {
				c.h.logger.Warn("WebSocket read error", "error", err)
			}
			return
		}

		switch msg.Type {
		case clientPing:
			if err := c.writer.WriteFrame(ctx, render.Frame{Type: render.FramePong}); err != nil {
				c.h.logger.Debug("Failed to send pong", "error", err)
			}
		case clientBootstrap, clientSubmit, clientReset:
			c.skip()
			select {
			case c.ops <- msg:
			default:
				_ = c.writer.WriteFrame(ctx, render.Frame{Type: render.FrameError, Error: "too many pending operations"})
			}
		default:
			_ = c.writer.WriteFrame(ctx, render.Frame{Type: render.FrameError, Error: "unknown frame type"})
		}
	}
}

func (c *conn) work(ctx context.Context) {
	for msg := range c.ops {
		c.run(ctx, msg)
	}
}

func (c *conn) run(ctx context.Context, msg clientFrame) {
	if msg.Type != clientBootstrap && c.tabKey().Tab == "" {
		_ = c.writer.WriteFrame(ctx, render.Frame{Type: render.FrameError, Error: "bootstrap first"})
		return
	}
	if msg.Type == clientBootstrap {
		c.ensureTab()
	}

	key := c.tabKey()
	view := render.NewStreamView(ctx, c.writer, reveal.NewPacer(c.h.revealEnabled), c.h.logger)
	c.mu.Lock()
	c.current = view
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.current = nil
		c.mu.Unlock()
	}()

	var snap session.Snapshot
	var err error
	switch msg.Type {
	case clientBootstrap:
		snap = c.h.sessions.Bootstrap(ctx, key, view)
	case clientSubmit:
		err = c.h.sessions.Do(ctx, key, view, func(ctrl *session.Controller) error {
			ctrl.Submit(ctx, msg.Text, view)
			snap = ctrl.Snapshot(ctx)
			return nil
		})
	case clientReset:
		err = c.h.sessions.Do(ctx, key, view, func(ctrl *session.Controller) error {
			ctrl.Reset(ctx, view)
			snap = ctrl.Snapshot(ctx)
			return nil
		})
	}
	if err != nil {
		c.h.logger.Error("Widget operation failed", "op", msg.Type, "error", err)
		view.Emit(render.Frame{Type: render.FrameError, Error: "operation failed"})
		return
	}
	view.Emit(render.Frame{Type: render.FrameDone, Data: snap})
}

func (c *conn) ensureTab() {
	c.mu.Lock()
	if c.key.Tab != "" {
		c.mu.Unlock()
		return
	}
	c.key.Tab = identity.NewTabID()
	key := c.key
	c.mu.Unlock()
	c.h.registry.Register(key, c.ws)
}

func (c *conn) tabKey() session.Key {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.key
}

func (c *conn) skip() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current != nil {
		c.current.Skip()
	}
}
