package whatsapp

import (
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/types"
	"go.mau.fi/whatsmeow/types/events"

	"github.com/brainybot/brainy/pkg/brainy/channels"
)

// handleEvent is the whatsmeow event dispatcher.
func (t *Transport) handleEvent(rawEvt interface{}) {
	switch evt := rawEvt.(type) {
	case *events.Message:
		t.handleMessageEvt(evt)

	case *events.Connected:
		t.connected.Store(true)
		self := t.SelfID()
		t.logger.Info("connected", "self", self)
		t.emitEvent(channels.Event{Type: channels.EventConnected, SelfID: self})

	case *events.Disconnected:
		t.connected.Store(false)
		t.logger.Warn("disconnected")
		t.emitEvent(channels.Event{Type: channels.EventDisconnected, Reason: "connection_lost"})

	case *events.StreamReplaced:
		t.connected.Store(false)
		t.logger.Warn("stream replaced by another session")
		t.emitEvent(channels.Event{Type: channels.EventDisconnected, Reason: "stream_replaced"})

	case *events.LoggedOut:
		t.connected.Store(false)
		t.logger.Warn("logged out remotely", "reason", evt.Reason)
		t.emitEvent(channels.Event{Type: channels.EventDisconnected, Reason: "logged_out"})

	case *events.TemporaryBan:
		t.connected.Store(false)
		t.logger.Error("temporary ban", "code", evt.Code, "expire", evt.Expire)
		t.emitEvent(channels.Event{Type: channels.EventDisconnected, Reason: "banned"})

	case *events.PairSuccess:
		t.logger.Info("device paired", "jid", evt.ID)

	case *events.QRScannedWithoutMultidevice:
		t.logger.Warn("QR scanned but multidevice not enabled on the phone")
	}
}

// handleMessageEvt converts a WhatsApp message event to an inbound message.
// Messages from the linked account itself are NOT skipped: when the owner
// runs the assistant on their own number, commands arrive as self-sent
// messages. Reply loops are prevented upstream by the bot reply prefixes.
func (t *Transport) handleMessageEvt(evt *events.Message) {
	// Skip status broadcasts.
	if evt.Info.Chat.Server == "broadcast" {
		return
	}

	body := extractText(evt.Message)
	if body == "" {
		return
	}

	msg := &channels.InboundMessage{
		ID:         string(evt.Info.ID),
		SenderID:   t.resolveSender(evt.Info.Sender),
		SenderName: evt.Info.PushName,
		Body:       body,
		IsGroup:    evt.Info.IsGroup,
		Timestamp:  evt.Info.Timestamp,
	}

	t.emitMessage(msg)
}

// resolveSender normalizes a sender JID to the phone address format used for
// access control. WhatsApp may deliver senders in LID (Linked Identity)
// format, which maps back to a phone JID via the session store.
func (t *Transport) resolveSender(sender types.JID) string {
	if sender.Server == "lid" {
		t.mu.Lock()
		client := t.client
		ctx := t.ctx
		t.mu.Unlock()
		if client != nil && client.Store != nil {
			if altJID, err := client.Store.GetAltJID(ctx, sender); err == nil && !altJID.IsEmpty() {
				return altJID.ToNonAD().String()
			}
		}
	}
	return sender.ToNonAD().String()
}

// extractText pulls the text content from a WhatsApp message, or "" for
// non-text messages.
func extractText(waMsg *waE2E.Message) string {
	if waMsg == nil {
		return ""
	}
	if waMsg.Conversation != nil {
		return waMsg.GetConversation()
	}
	if ext := waMsg.ExtendedTextMessage; ext != nil {
		return ext.GetText()
	}
	return ""
}
