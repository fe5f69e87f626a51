// Package whatsapp implements the messaging transport over whatsmeow, a
// native Go WhatsApp Web API library. Sessions persist in SQLite; first login
// runs the QR pairing flow, streaming pairing codes to the core (for the web
// UI) and optionally rendering them in the terminal.
package whatsapp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	qrterminal "github.com/mdp/qrterminal/v3"
	"go.mau.fi/whatsmeow"
	"go.mau.fi/whatsmeow/proto/waE2E"
	"go.mau.fi/whatsmeow/store"
	"go.mau.fi/whatsmeow/store/sqlstore"
	"go.mau.fi/whatsmeow/types"
	waLog "go.mau.fi/whatsmeow/util/log"
	"google.golang.org/protobuf/proto"

	"github.com/brainybot/brainy/pkg/brainy/channels"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for the session store.
)

// Config holds WhatsApp transport configuration.
type Config struct {
	// SessionDir is the directory for session persistence (SQLite).
	// Ignored if DatabasePath is set.
	SessionDir string `yaml:"session_dir"`

	// DatabasePath is the SQLite file for session storage. If empty,
	// defaults to {SessionDir}/whatsapp.db.
	DatabasePath string `yaml:"database_path"`

	// PrintQR also renders pairing codes in the terminal.
	PrintQR bool `yaml:"print_qr"`

	// SendTimeout bounds a single outbound send.
	SendTimeout time.Duration `yaml:"send_timeout"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		SessionDir:  "./data/whatsapp",
		PrintQR:     true,
		SendTimeout: 30 * time.Second,
	}
}

// Transport implements channels.Transport over whatsmeow.
type Transport struct {
	cfg    Config
	logger *slog.Logger

	// mu guards client/container across Initialize/Destroy cycles.
	mu        sync.Mutex
	client    *whatsmeow.Client
	container *sqlstore.Container

	connected atomic.Bool

	// events and messages are created once and survive restarts, so the
	// core's loops keep their subscriptions across Destroy/Initialize.
	events   chan channels.Event
	messages chan *channels.InboundMessage

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a WhatsApp transport.
func New(cfg Config, logger *slog.Logger) *Transport {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SendTimeout == 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	return &Transport{
		cfg:      cfg,
		logger:   logger.With("component", "whatsapp"),
		events:   make(chan channels.Event, 16),
		messages: make(chan *channels.InboundMessage, 256),
	}
}

// Events returns the lifecycle event stream.
func (t *Transport) Events() <-chan channels.Event { return t.events }

// Messages returns the inbound message stream.
func (t *Transport) Messages() <-chan *channels.InboundMessage { return t.messages }

// SelfID returns the linked account's address without the device part,
// or "" if not linked.
func (t *Transport) SelfID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.client != nil && t.client.Store.ID != nil {
		return t.client.Store.ID.ToNonAD().String()
	}
	return ""
}

// IsConnected reports whether the transport connection is up.
func (t *Transport) IsConnected() bool { return t.connected.Load() }

// Initialize opens the session store and connects. With no existing session
// the QR pairing flow runs in the background; pairing codes arrive as events.
func (t *Transport) Initialize(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.client != nil {
		return fmt.Errorf("transport already initialized")
	}

	t.ctx, t.cancel = context.WithCancel(ctx)

	dbPath := t.cfg.DatabasePath
	if dbPath == "" {
		if err := os.MkdirAll(t.cfg.SessionDir, 0o755); err != nil {
			return fmt.Errorf("creating session dir: %w", err)
		}
		dbPath = filepath.Join(t.cfg.SessionDir, "whatsapp.db")
	}

	container, err := sqlstore.New(t.ctx, "sqlite3",
		fmt.Sprintf("file:%s?_foreign_keys=1&_journal_mode=WAL", dbPath),
		waLog.Noop)
	if err != nil {
		return fmt.Errorf("creating session store: %w", err)
	}
	t.container = container

	device, err := t.getDevice(t.ctx, container)
	if err != nil {
		return fmt.Errorf("getting device: %w", err)
	}

	// Device name shown in the WhatsApp linked devices list.
	store.SetOSInfo("Brainy", [3]uint32{1, 0, 0})

	t.client = whatsmeow.NewClient(device, waLog.Noop)
	t.client.AddEventHandler(t.handleEvent)
	t.client.EnableAutoReconnect = true
	t.client.InitialAutoReconnect = true

	if t.client.Store.ID == nil {
		// First login: consume QR codes before connecting.
		qrChan, err := t.client.GetQRChannel(t.ctx)
		if err != nil {
			return fmt.Errorf("getting QR channel: %w", err)
		}
		go t.consumeQR(t.ctx, qrChan)
		t.logger.Info("no existing session, QR pairing required")
	}

	if err := t.client.Connect(); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	t.logger.Info("transport initialized", "db", dbPath)
	return nil
}

// Destroy tears down the connection and closes the session store without
// logging out. Initialize can be called again afterwards.
func (t *Transport) Destroy() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.connected.Store(false)
	if t.cancel != nil {
		t.cancel()
	}
	if t.client != nil {
		t.client.Disconnect()
		t.client = nil
	}
	if t.container != nil {
		if err := t.container.Close(); err != nil {
			t.container = nil
			return fmt.Errorf("closing session store: %w", err)
		}
		t.container = nil
	}

	t.logger.Info("transport destroyed")
	return nil
}

// Logout unlinks the device and clears the stored session.
func (t *Transport) Logout(ctx context.Context) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil {
		return fmt.Errorf("transport not initialized")
	}

	t.connected.Store(false)

	logoutCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := client.Logout(logoutCtx); err != nil {
		t.logger.Warn("logout error, forcing cleanup", "error", err)
		client.Disconnect()
		if client.Store != nil {
			if delErr := client.Store.Delete(logoutCtx); delErr != nil {
				t.logger.Warn("failed to delete session store", "error", delErr)
			}
		}
	}

	t.logger.Info("logged out, session cleared")
	return nil
}

// Send delivers a text message to the recipient address.
func (t *Transport) Send(ctx context.Context, to string, text string) error {
	t.mu.Lock()
	client := t.client
	t.mu.Unlock()

	if client == nil || !t.connected.Load() {
		return channels.ErrTransportDisconnected
	}

	jid, err := ParseUserJID(to)
	if err != nil {
		return fmt.Errorf("invalid recipient %q: %w", to, err)
	}

	sendCtx, cancel := context.WithTimeout(ctx, t.cfg.SendTimeout)
	defer cancel()

	_, err = client.SendMessage(sendCtx, jid, &waE2E.Message{
		Conversation: proto.String(text),
	})
	if err != nil {
		return fmt.Errorf("sending message: %w", err)
	}
	return nil
}

// getDevice retrieves the existing device or creates a new one.
func (t *Transport) getDevice(ctx context.Context, container *sqlstore.Container) (*store.Device, error) {
	devices, err := container.GetAllDevices(ctx)
	if err != nil {
		return nil, err
	}
	if len(devices) > 0 {
		return devices[0], nil
	}
	return container.NewDevice(), nil
}

// consumeQR processes the QR pairing stream, forwarding codes as events.
func (t *Transport) consumeQR(ctx context.Context, qrChan <-chan whatsmeow.QRChannelItem) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-qrChan:
			if !ok {
				return
			}

			switch evt.Event {
			case whatsmeow.QRChannelEventCode:
				t.logger.Info("pairing code ready, scan with WhatsApp")
				if t.cfg.PrintQR {
					qrterminal.GenerateHalfBlock(evt.Code, qrterminal.L, os.Stdout)
				}
				t.emitEvent(channels.Event{Type: channels.EventPairingCode, PairingCode: evt.Code})

			case whatsmeow.QRChannelSuccess.Event:
				t.logger.Info("pairing successful")
				// The Connected lifecycle event follows from whatsmeow.

			default:
				if evt.Error != nil {
					t.logger.Error("pairing failed", "event", evt.Event, "error", evt.Error)
					t.emitEvent(channels.Event{Type: channels.EventDisconnected, Reason: "pairing_error"})
				} else if evt.Event == "timeout" {
					t.logger.Warn("pairing code expired")
					t.emitEvent(channels.Event{Type: channels.EventDisconnected, Reason: "qr_timeout"})
				}
			}
		}
	}
}

// emitEvent forwards a lifecycle event without blocking the whatsmeow
// callback goroutine.
func (t *Transport) emitEvent(evt channels.Event) {
	select {
	case t.events <- evt:
	default:
		t.logger.Warn("event channel full, dropping event", "type", evt.Type)
	}
}

// emitMessage forwards an inbound message without blocking.
func (t *Transport) emitMessage(msg *channels.InboundMessage) {
	select {
	case t.messages <- msg:
	default:
		t.logger.Warn("message channel full, dropping message", "from", msg.SenderID)
	}
}

// ParseUserJID converts a recipient address to a whatsmeow JID.
// Accepts "5511999999999", "+5511999999999", or a full JID like
// "5511999999999@s.whatsapp.net".
func ParseUserJID(raw string) (types.JID, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return types.JID{}, fmt.Errorf("empty JID")
	}

	if strings.Contains(raw, "@") {
		return types.ParseJID(raw)
	}

	digits := strings.Map(func(r rune) rune {
		if r >= '0' && r <= '9' {
			return r
		}
		return -1
	}, raw)
	if len(digits) < 10 {
		return types.JID{}, fmt.Errorf("phone number too short: %s", raw)
	}

	return types.NewJID(digits, types.DefaultUserServer), nil
}

// UserID normalizes a configured phone number to the transport address format
// used for sender comparison.
func UserID(raw string) (string, error) {
	jid, err := ParseUserJID(raw)
	if err != nil {
		return "", err
	}
	return jid.ToNonAD().String(), nil
}
