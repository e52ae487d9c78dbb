// Package socket serves the chat widget over a WebSocket.
package socket

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"

	"github.com/unigo-labs/unigo-chat/internal/session"
)

// Registry tracks the live socket of each tab. A tab reconnecting (for
// example after a reload) replaces its stale socket.
type Registry struct {
	mu     sync.RWMutex
	active map[session.Key]*websocket.Conn
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{active: make(map[session.Key]*websocket.Conn)}
}

// Active returns the live connection of key, if any.
func (r *Registry) Active(key session.Key) *websocket.Conn {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.active[key]
}

// Register records conn for key, closing any previous connection.
func (r *Registry) Register(key session.Key, conn *websocket.Conn) {
	r.mu.Lock()
	existing := r.active[key]
	r.active[key] = conn
	r.mu.Unlock()
	slog.Info("Widget socket registered", "tab", key.String())

	// The close handshake waits on the stale peer, so it must not hold up
	// the new connection.
	if existing != nil && existing != conn {
		go func() {
			_ = existing.Close(websocket.StatusNormalClosure, "session replaced")
		}()
	}
}

// Unregister removes conn if it is still the one registered for key.
func (r *Registry) Unregister(key session.Key, conn *websocket.Conn) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if current, ok := r.active[key]; ok && current == conn {
		delete(r.active, key)
		slog.Info("Widget socket unregistered", "tab", key.String())
	}
}

// Len returns the number of live sockets.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.active)
}

// CloseAll closes every live socket, e.g. on shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(r.active))
	for key, conn := range r.active {
		conns = append(conns, conn)
		delete(r.active, key)
	}
	r.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close(websocket.StatusGoingAway, "server shutting down")
	}
}
