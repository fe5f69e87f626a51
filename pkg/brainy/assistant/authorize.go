package assistant

import (
	"fmt"
	"strings"
	"sync/atomic"

	"github.com/brainybot/brainy/pkg/brainy/channels"
)

// Mode selects which sender identity is allowed to command the assistant.
type Mode string

const (
	// ModeDualIdentity authorizes a pre-configured counterparty number,
	// distinct from the bot's own.
	ModeDualIdentity Mode = "two-number"

	// ModeSingleIdentity authorizes the bot's own number: the user messages
	// themselves and the assistant picks up the self-chat.
	ModeSingleIdentity Mode = "single-number"
)

// ParseMode validates a mode wire string.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeDualIdentity, ModeSingleIdentity:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("invalid mode %q", s)
	}
}

// ModeHolder is the process-wide authorization mode: read by every inbound
// message evaluation, switched only by the settings endpoint. A switch takes
// effect on the next message evaluated; messages already dispatched keep the
// mode they were admitted under.
type ModeHolder struct {
	v atomic.Value // Mode
}

// NewModeHolder creates a holder with the given initial mode.
func NewModeHolder(initial Mode) *ModeHolder {
	h := &ModeHolder{}
	h.v.Store(initial)
	return h
}

// Get returns the current mode.
func (h *ModeHolder) Get() Mode {
	return h.v.Load().(Mode)
}

// Set switches the mode.
func (h *ModeHolder) Set(m Mode) {
	h.v.Store(m)
}

// botReplyPrefixes mark the assistant's own outbound messages. Inbound
// messages starting with one of these are echoes of our own replies (the
// single-number mode receives them in the self-chat) and must never be
// processed as commands.
var botReplyPrefixes = []string{
	"✅",
	"🧠",
	"🤖",
	"*Good Morning! ☀️*",
}

// isAuthorized decides whether the sender may invoke the assistant.
// Group chats are always rejected. Under two-number mode only the configured
// identity passes; under single-number mode only the bot's own identity.
func isAuthorized(msg *channels.InboundMessage, mode Mode, selfID, configuredID string) bool {
	if msg.IsGroup {
		return false
	}

	switch mode {
	case ModeDualIdentity:
		return configuredID != "" && msg.SenderID == configuredID
	case ModeSingleIdentity:
		return selfID != "" && msg.SenderID == selfID
	default:
		return false
	}
}

// isBotEcho reports whether a message body is empty or starts with one of the
// assistant's own reply prefixes. Rejected regardless of sender.
func isBotEcho(body string) bool {
	if body == "" {
		return true
	}
	for _, prefix := range botReplyPrefixes {
		if strings.HasPrefix(body, prefix) {
			return true
		}
	}
	return false
}
