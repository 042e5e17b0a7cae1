package gateway

import (
	"log/slog"
	"sync"
	"time"

	"natalbot/internal/chart"
	"natalbot/internal/flow"
)

const (
	// mailboxTTL bounds how long an undelivered reply may wait for pickup.
	// After that the chart bytes are scrubbed, matching the session's own
	// privacy guarantee.
	mailboxTTL = 5 * time.Minute

	// maxPendingReplies caps the queue per identity; the oldest entries are
	// scrubbed and dropped first.
	maxPendingReplies = 16
)

type pendingReply struct {
	reply    flow.Reply
	deadline time.Time
}

// Mailbox buffers replies for identities without a live connection, so
// webhook-driven conversations can pick up asynchronous results (charts,
// expiry notices). Entries are scrubbed and dropped after mailboxTTL.
type Mailbox struct {
	mu      sync.Mutex
	pending map[string][]pendingReply
	ttl     time.Duration
	now     func() time.Time
}

// NewMailbox creates an empty mailbox.
func NewMailbox() *Mailbox {
	return &Mailbox{
		pending: make(map[string][]pendingReply),
		ttl:     mailboxTTL,
		now:     time.Now,
	}
}

// Put queues replies for later pickup by the identity.
func (m *Mailbox) Put(identity string, replies ...flow.Reply) {
	if len(replies) == 0 {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	m.expireLocked(identity, now)

	deadline := now.Add(m.ttl)
	queue := m.pending[identity]
	for _, r := range replies {
		queue = append(queue, pendingReply{reply: r, deadline: deadline})
	}
	for len(queue) > maxPendingReplies {
		scrubReply(queue[0].reply)
		queue = queue[1:]
	}
	m.pending[identity] = queue
	slog.Info("Replies queued for pickup", "identity", identity, "pending", len(queue))
}

// Drain returns and removes every non-expired pending reply for the
// identity. The caller owns the returned replies and is responsible for
// scrubbing image bytes after delivery.
func (m *Mailbox) Drain(identity string) []flow.Reply {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.expireLocked(identity, m.now())

	queue := m.pending[identity]
	if len(queue) == 0 {
		return nil
	}
	delete(m.pending, identity)

	out := make([]flow.Reply, 0, len(queue))
	for _, p := range queue {
		out = append(out, p.reply)
	}
	return out
}

// expireLocked scrubs and drops entries past their deadline. Caller holds mu.
func (m *Mailbox) expireLocked(identity string, now time.Time) {
	queue := m.pending[identity]
	kept := queue[:0]
	for _, p := range queue {
		if now.After(p.deadline) {
			scrubReply(p.reply)
			continue
		}
		kept = append(kept, p)
	}
	if len(kept) == 0 {
		delete(m.pending, identity)
		return
	}
	m.pending[identity] = kept
}

func scrubReply(r flow.Reply) {
	chart.Scrub(r.Image)
}
