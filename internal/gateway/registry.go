// Package gateway exposes the chat over HTTP: a WebSocket endpoint for
// interactive clients, a webhook endpoint for bot platforms, and the
// operational surface (health, metrics, stats).
package gateway

import (
	"log/slog"
	"sync"

	"github.com/coder/websocket"
)

// Registry tracks active WebSocket connections per anonymous identity. One
// identity may hold several connections (multiple tabs); replies fan out to
// all of them.
type Registry struct {
	mu     sync.RWMutex
	active map[string]map[*websocket.Conn]struct{}
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		active: make(map[string]map[*websocket.Conn]struct{}),
	}
}

// Register adds a connection for an identity.
func (reg *Registry) Register(identity string, conn *websocket.Conn) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if _, exists := reg.active[identity]; !exists {
		reg.active[identity] = make(map[*websocket.Conn]struct{})
	}
	reg.active[identity][conn] = struct{}{}
	slog.Info("Chat connection registered", "identity", identity, "connections", len(reg.active[identity]))
}

// Unregister removes a connection for an identity.
func (reg *Registry) Unregister(identity string, conn *websocket.Conn) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	conns, ok := reg.active[identity]
	if !ok {
		return
	}
	if _, exists := conns[conn]; !exists {
		return
	}
	delete(conns, conn)
	if len(conns) == 0 {
		delete(reg.active, identity)
	}
	slog.Info("Chat connection unregistered", "identity", identity)
}

// Conns returns a snapshot of the connections for an identity.
func (reg *Registry) Conns(identity string) []*websocket.Conn {
	reg.mu.RLock()
	defer reg.mu.RUnlock()

	conns := make([]*websocket.Conn, 0, len(reg.active[identity]))
	for c := range reg.active[identity] {
		conns = append(conns, c)
	}
	return conns
}

// CloseAll forcefully closes every connection for an identity.
func (reg *Registry) CloseAll(identity string) {
	reg.mu.Lock()
	defer reg.mu.Unlock()

	conns, ok := reg.active[identity]
	if !ok {
		return
	}
	for c := range conns {
		_ = c.Close(websocket.StatusNormalClosure, "session closed")
	}
	delete(reg.active, identity)
	slog.Info("Chat connections closed", "identity", identity)
}

// Len returns the number of identities with at least one live connection.
func (reg *Registry) Len() int {
	reg.mu.RLock()
	defer reg.mu.RUnlock()
	return len(reg.active)
}
