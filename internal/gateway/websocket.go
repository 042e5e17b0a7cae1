package gateway

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/coder/websocket"

	"natalbot/internal/flow"
	"natalbot/internal/identity"
)

// ChatHandler serves the interactive WebSocket chat endpoint.
type ChatHandler struct {
	engine        *flow.Engine
	reg           *Registry
	mbox          *Mailbox
	allowedOrigin string
	isDev         bool
}

// NewChatHandler creates a WebSocket chat handler.
func NewChatHandler(engine *flow.Engine, reg *Registry, mbox *Mailbox, allowedOrigin string, isDev bool) *ChatHandler {
	return &ChatHandler{
		engine:        engine,
		reg:           reg,
		mbox:          mbox,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id := identity.FromContext(r.Context())
	if id == "" {
		http.Error(w, "missing identity", http.StatusUnauthorized)
		return
	}
	slog.Info("WebSocket connection request", "identity", id, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "identity", id)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "chat ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "identity", id)
		}
	}()

	h.reg.Register(id, ws)
	defer h.reg.Unregister(id, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// Replies that arrived while the user was disconnected are flushed first.
	for _, reply := range h.mbox.Drain(id) {
		if err := h.writeJSON(ctx, ws, outboundFromReply(reply)); err != nil {
			slog.Debug("Failed to flush queued reply", "error", err, "identity", id)
			break
		}
	}

	h.readLoop(ctx, ws, id)
	slog.Info("Chat connection ended", "identity", id)
}

func (h *ChatHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *ChatHandler) readLoop(ctx context.Context, ws *websocket.Conn, id string) {
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "identity", id)
			} else {
				slog.Warn("WebSocket read error", "error", err, "identity", id)
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			// Bare text frames are accepted as plain messages.
			msg = inboundMessage{Type: "message", Text: string(message)}
		}

		switch msg.Type {
		case "ping":
			if err := h.writeJSON(ctx, ws, outboundMessage{Type: "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err, "identity", id)
			}
		case "message":
			replies, err := h.engine.HandleEvent(ctx, flow.Event{Identity: id, Text: msg.Text})
			if err != nil {
				slog.Error("Event handling failed", "error", err, "identity", id)
			}
			for _, reply := range replies {
				if err := h.writeJSON(ctx, ws, outboundFromReply(reply)); err != nil {
					slog.Debug("Failed to send reply", "error", err, "identity", id)
					return
				}
			}
		default:
			slog.Debug("Ignoring unknown message type", "type", msg.Type, "identity", id)
		}
	}
}

func (h *ChatHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v outboundMessage) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
