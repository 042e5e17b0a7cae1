package gateway

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/coder/websocket"

	"natalbot/internal/flow"
)

// outboundMessage is the wire shape of a server-to-client chat message.
// Image bytes are base64-encoded by the JSON marshaller.
type outboundMessage struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Image     []byte `json:"image,omitempty"`
	ImageName string `json:"image_name,omitempty"`
	Caption   string `json:"caption,omitempty"`
}

// inboundMessage is the wire shape of a client-to-server chat message.
type inboundMessage struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

func outboundFromReply(r flow.Reply) outboundMessage {
	if r.Image != nil {
		return outboundMessage{
			Type:      "chart",
			Image:     r.Image,
			ImageName: r.ImageName,
			Caption:   r.Caption,
		}
	}
	return outboundMessage{Type: "message", Text: r.Text}
}

// WSReplier delivers asynchronous replies over the live WebSocket
// connections of an identity. Identities without a connection (webhook
// clients) get their replies queued in the mailbox for pickup via the JSON
// API instead.
type WSReplier struct {
	reg  *Registry
	mbox *Mailbox
}

// NewWSReplier creates a replier backed by the connection registry with the
// mailbox as the offline fallback.
func NewWSReplier(reg *Registry, mbox *Mailbox) *WSReplier {
	return &WSReplier{reg: reg, mbox: mbox}
}

// Deliver sends the replies to every live connection of the identity, or
// queues them for pickup when none exists.
func (wr *WSReplier) Deliver(ctx context.Context, identity string, replies ...flow.Reply) error {
	conns := wr.reg.Conns(identity)
	if len(conns) == 0 {
		wr.mbox.Put(identity, replies...)
		return nil
	}

	for _, reply := range replies {
		data, err := json.Marshal(outboundFromReply(reply))
		if err != nil {
			return err
		}
		for _, conn := range conns {
			if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
				slog.Debug("WebSocket write failed", "identity", identity, "error", err)
			}
		}
	}
	return nil
}
