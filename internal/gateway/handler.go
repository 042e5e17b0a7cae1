package gateway

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"natalbot/internal/flow"
	"natalbot/internal/session"
	"natalbot/internal/store"
)

const maxEventBodyBytes = 64 << 10

// Handler serves the JSON API: the bot-platform webhook, pending-reply
// pickup, health, and anonymous usage statistics.
type Handler struct {
	engine   *flow.Engine
	sessions *session.Store
	usage    store.Repository
	mbox     *Mailbox
}

// NewHandler creates the JSON API handler.
func NewHandler(engine *flow.Engine, sessions *session.Store, usage store.Repository, mbox *Mailbox) *Handler {
	return &Handler{
		engine:   engine,
		sessions: sessions,
		usage:    usage,
		mbox:     mbox,
	}
}

// RegisterRoutes mounts the JSON API on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/api/health", h.Health)
	r.Post("/api/events", h.PostEvent)
	r.Get("/api/replies", h.Replies)
	r.Get("/api/stats", h.Stats)
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, map[string]string{"error": message})
}

// Health reports service liveness and the number of active conversations.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "ok"
	code := http.StatusOK
	if err := h.usage.Ping(r.Context()); err != nil {
		slog.Warn("Statistics database unreachable", "error", err)
		status = "degraded"
	}
	JSON(w, code, map[string]interface{}{
		"status":          status,
		"active_sessions": h.sessions.Len(),
	})
}

type eventRequest struct {
	Identity string `json:"identity"`
	Text     string `json:"text"`
}

// PostEvent is the bot-platform webhook: one inbound message in, the
// synchronous replies out. Identities are opaque platform tokens. Replies
// that arrived asynchronously since the last call (charts, expiry notices)
// are piggybacked onto the response; /api/replies picks up anything that
// completes later.
func (h *Handler) PostEvent(w http.ResponseWriter, r *http.Request) {
	var req eventRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxEventBodyBytes))
	if err := dec.Decode(&req); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Identity == "" || len(req.Identity) > 128 {
		Error(w, http.StatusBadRequest, "invalid identity")
		return
	}

	replies, err := h.engine.HandleEvent(r.Context(), flow.Event{Identity: req.Identity, Text: req.Text})
	if err != nil && len(replies) == 0 {
		Error(w, http.StatusInternalServerError, "failed to handle event")
		return
	}

	h.writeReplies(w, append(h.mbox.Drain(req.Identity), replies...))
}

// Replies hands out queued asynchronous replies for an identity. Webhook
// clients poll this after a generation acknowledgment.
func (h *Handler) Replies(w http.ResponseWriter, r *http.Request) {
	identity := r.URL.Query().Get("identity")
	if identity == "" || len(identity) > 128 {
		Error(w, http.StatusBadRequest, "invalid identity")
		return
	}

	h.writeReplies(w, h.mbox.Drain(identity))
}

// writeReplies encodes the replies and scrubs any chart bytes afterwards;
// once handed to the transport the server keeps no copy.
func (h *Handler) writeReplies(w http.ResponseWriter, replies []flow.Reply) {
	out := make([]outboundMessage, 0, len(replies))
	for _, reply := range replies {
		out = append(out, outboundFromReply(reply))
	}
	JSON(w, http.StatusOK, map[string]interface{}{"replies": out})

	for _, reply := range replies {
		scrubReply(reply)
	}
}

// statKinds are the event kinds exposed by the stats endpoint.
var statKinds = []string{
	store.EventConversationStarted,
	store.EventChartGenerated,
	store.EventGenerationFailed,
	store.EventSessionCancelled,
	store.EventSessionExpired,
	store.EventRetriesExhausted,
}

// Stats aggregates anonymous usage counts over a trailing window.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	hours := 24
	if v := r.URL.Query().Get("hours"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 24*365 {
			Error(w, http.StatusBadRequest, "invalid hours parameter")
			return
		}
		hours = n
	}

	since := time.Now().Add(-time.Duration(hours) * time.Hour)
	counts := make(map[string]int64, len(statKinds))
	for _, kind := range statKinds {
		n, err := h.usage.CountSince(r.Context(), kind, since)
		if err != nil {
			slog.Error("Failed to aggregate usage events", "kind", kind, "error", err)
			Error(w, http.StatusInternalServerError, "failed to aggregate statistics")
			return
		}
		counts[kind] = n
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"window_hours": hours,
		"counts":       counts,
	})
}
