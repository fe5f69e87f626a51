// Package channels defines the transport capability consumed by the Brainy
// assistant core. The concrete WhatsApp implementation lives in the whatsapp
// subpackage; the core only sees this interface plus a small set of lifecycle
// events, which keeps the session and routing logic testable with fakes.
package channels

import (
	"context"
	"errors"
	"time"
)

// ErrTransportDisconnected is returned by Send when no connection is up.
var ErrTransportDisconnected = errors.New("transport is disconnected")

// EventType identifies a transport lifecycle event.
type EventType string

const (
	// EventPairingCode carries a fresh pairing code to scan.
	EventPairingCode EventType = "pairing_code"

	// EventConnected fires once the transport is linked and online.
	EventConnected EventType = "connected"

	// EventDisconnected fires on logout, ban, or connection loss.
	EventDisconnected EventType = "disconnected"
)

// Event is a transport lifecycle event. Exactly one of the payload fields is
// meaningful, selected by Type.
type Event struct {
	Type EventType

	// PairingCode is the raw code to render as a QR (EventPairingCode).
	PairingCode string

	// SelfID is the transport address of the linked account (EventConnected).
	SelfID string

	// Reason describes why the connection ended (EventDisconnected).
	Reason string
}

// InboundMessage represents a message received from the transport.
type InboundMessage struct {
	// ID is the message identifier in the source transport.
	ID string

	// SenderID is the sender's transport address.
	SenderID string

	// SenderName is the sender display name, if available.
	SenderName string

	// Body is the text content.
	Body string

	// IsGroup indicates a group chat message.
	IsGroup bool

	// Timestamp is when the message was sent.
	Timestamp time.Time
}

// Transport is the messaging capability the core orchestrates. Lifecycle
// events and inbound messages are delivered on separate Go channels so the
// session state machine and the message router can run independently.
type Transport interface {
	// Initialize creates the underlying connection. When no session exists
	// the pairing flow starts and pairing codes arrive via Events.
	Initialize(ctx context.Context) error

	// Destroy tears down the connection without logging out. The session
	// remains linked and Initialize can be called again.
	Destroy() error

	// Logout unlinks the device and clears the stored session.
	Logout(ctx context.Context) error

	// Send delivers a text message to the recipient address.
	Send(ctx context.Context, to string, text string) error

	// Events returns the lifecycle event stream.
	Events() <-chan Event

	// Messages returns the inbound message stream.
	Messages() <-chan *InboundMessage

	// SelfID returns the linked account's own address, or "" if not linked.
	SelfID() string
}
