package assistant

import (
	"testing"

	"github.com/brainybot/brainy/pkg/brainy/channels"
)

func TestParseMode(t *testing.T) {
	if m, err := ParseMode("two-number"); err != nil || m != ModeDualIdentity {
		t.Errorf("ParseMode(two-number) = %v, %v", m, err)
	}
	if m, err := ParseMode("single-number"); err != nil || m != ModeSingleIdentity {
		t.Errorf("ParseMode(single-number) = %v, %v", m, err)
	}
	if _, err := ParseMode("both-numbers"); err == nil {
		t.Error("expected error for invalid mode")
	}
	if _, err := ParseMode(""); err == nil {
		t.Error("expected error for empty mode")
	}
}

func TestIsAuthorized(t *testing.T) {
	const (
		self       = "1111@s.whatsapp.net"
		configured = "2222@s.whatsapp.net"
		stranger   = "3333@s.whatsapp.net"
	)

	msg := func(sender string, group bool) *channels.InboundMessage {
		return &channels.InboundMessage{SenderID: sender, IsGroup: group, Body: "hello"}
	}

	tests := []struct {
		name string
		msg  *channels.InboundMessage
		mode Mode
		want bool
	}{
		{"dual configured sender", msg(configured, false), ModeDualIdentity, true},
		{"dual self sender rejected", msg(self, false), ModeDualIdentity, false},
		{"dual stranger rejected", msg(stranger, false), ModeDualIdentity, false},
		{"single self sender", msg(self, false), ModeSingleIdentity, true},
		{"single configured rejected", msg(configured, false), ModeSingleIdentity, false},
		{"single stranger rejected", msg(stranger, false), ModeSingleIdentity, false},
		{"group always rejected", msg(configured, true), ModeDualIdentity, false},
		{"group rejected in single mode", msg(self, true), ModeSingleIdentity, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isAuthorized(tt.msg, tt.mode, self, configured); got != tt.want {
				t.Errorf("isAuthorized = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestIsAuthorizedEmptyIdentities(t *testing.T) {
	m := &channels.InboundMessage{SenderID: "", Body: "hi"}

	// An unset configured identity must not accidentally match an empty
	// sender. Same for a missing self identity.
	if isAuthorized(m, ModeDualIdentity, "self", "") {
		t.Error("empty configured identity must never authorize")
	}
	if isAuthorized(m, ModeSingleIdentity, "", "configured") {
		t.Error("empty self identity must never authorize")
	}
}

func TestIsBotEcho(t *testing.T) {
	tests := []struct {
		body string
		want bool
	}{
		{"✅ Note saved.", true},
		{"🧠 The answer is 42.", true},
		{"🤖 Hello!", true},
		{"*Good Morning! ☀️* Here is your daily digest:*", true},
		{"", true},
		{"note: buy milk", false},
		{"what is due tomorrow?", false},
		{"Good Morning everyone", false},
	}

	for _, tt := range tests {
		if got := isBotEcho(tt.body); got != tt.want {
			t.Errorf("isBotEcho(%q) = %v, want %v", tt.body, got, tt.want)
		}
	}
}

func TestModeHolderSwitch(t *testing.T) {
	h := NewModeHolder(ModeDualIdentity)
	if h.Get() != ModeDualIdentity {
		t.Fatalf("initial mode = %v", h.Get())
	}

	h.Set(ModeSingleIdentity)
	if h.Get() != ModeSingleIdentity {
		t.Errorf("after switch, mode = %v", h.Get())
	}
}
