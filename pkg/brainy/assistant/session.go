// Package assistant implements the Brainy orchestration core: the transport
// session state machine, authorization policy, intent classification, the
// message router, and the daily digest.
package assistant

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"

	"github.com/brainybot/brainy/pkg/brainy/channels"
)

// ErrNotConnected is returned by Disconnect when no connection is up.
var ErrNotConnected = errors.New("session is not connected")

// Status is the transport pairing/connection lifecycle state.
// The wire strings are what the web UI status endpoint reports.
type Status string

const (
	StatusInitializing    Status = "initializing"
	StatusAwaitingPairing Status = "unscanned"
	StatusConnected       Status = "connected"
	StatusDisconnected    Status = "disconnected"
)

// sessionState groups the fields read together by status pollers. The whole
// struct is swapped atomically, so a reader never observes a status from one
// transition paired with the pairing code of another.
type sessionState struct {
	status      Status
	pairingCode string
	selfID      string
}

// Session tracks the transport pairing/connection lifecycle. It is created
// once at startup and only ever transitioned, never destroyed. Mutations come
// exclusively from transport lifecycle events (single writer); Current and
// SelfID are safe to poll from any number of goroutines.
type Session struct {
	transport channels.Transport
	logger    *slog.Logger

	state atomic.Value // sessionState

	// onConnected runs once per successful connection (memory collection
	// setup, digest arming). Installed by the assistant.
	onConnected func(selfID string)

	// restartGuard prevents overlapping restart attempts.
	restartGuard atomic.Bool
}

// NewSession creates a session in the Initializing state.
func NewSession(transport channels.Transport, onConnected func(selfID string), logger *slog.Logger) *Session {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		transport:   transport,
		logger:      logger.With("component", "session"),
		onConnected: onConnected,
	}
	s.state.Store(sessionState{status: StatusInitializing})
	return s
}

func (s *Session) current() sessionState {
	return s.state.Load().(sessionState)
}

// Current returns the status and the pairing code ("" unless awaiting
// pairing). Read-only and side-effect free.
func (s *Session) Current() (Status, string) {
	st := s.current()
	return st.status, st.pairingCode
}

// SelfID returns the linked account's own address, or "" when not connected.
func (s *Session) SelfID() string {
	return s.current().selfID
}

// OnPairingCode records a fresh pairing code and enters AwaitingPairing.
// Ignored while connected: a live session has no pairing to do.
func (s *Session) OnPairingCode(code string) {
	if s.current().status == StatusConnected {
		s.logger.Warn("pairing code received while connected, ignoring")
		return
	}
	s.state.Store(sessionState{status: StatusAwaitingPairing, pairingCode: code})
	s.logger.Info("pairing code received, waiting for scan")
}

// OnConnected enters the Connected state, clearing the pairing code and
// recording the linked identity. Runs the one-time connection setup hook.
func (s *Session) OnConnected(selfID string) {
	s.state.Store(sessionState{status: StatusConnected, selfID: selfID})
	s.logger.Info("session connected", "self", selfID)

	if s.onConnected != nil {
		s.onConnected(selfID)
	}
}

// OnDisconnected enters the Disconnected state, clearing both the pairing
// code and the identity.
func (s *Session) OnDisconnected(reason string) {
	s.state.Store(sessionState{status: StatusDisconnected})
	s.logger.Warn("session disconnected", "reason", reason)
}

// Disconnect requests a transport logout. Valid only while connected.
func (s *Session) Disconnect(ctx context.Context) error {
	if s.current().status != StatusConnected {
		return ErrNotConnected
	}

	if err := s.transport.Logout(ctx); err != nil {
		return err
	}

	// The transport also reports a disconnected event, but the transition
	// here makes the new status visible to callers immediately.
	s.state.Store(sessionState{status: StatusDisconnected})
	s.logger.Info("session logged out")
	return nil
}

// Restart destroys and re-initializes the transport connection. The status
// resets to Initializing immediately (optimistic); the reconnect completes
// asynchronously, independent of the caller. In-flight message handlers are
// not waited for; their replies are attempted best-effort against whatever
// connection exists when they finish.
func (s *Session) Restart(ctx context.Context) {
	if !s.restartGuard.CompareAndSwap(false, true) {
		s.logger.Warn("restart already in progress, ignoring")
		return
	}

	s.state.Store(sessionState{status: StatusInitializing})
	s.logger.Info("restart initiated")

	go func() {
		defer s.restartGuard.Store(false)

		if err := s.transport.Destroy(); err != nil {
			s.logger.Warn("transport destroy failed, re-initializing anyway", "error", err)
		}
		if err := s.transport.Initialize(ctx); err != nil {
			s.logger.Error("transport re-initialization failed", "error", err)
			s.state.Store(sessionState{status: StatusDisconnected})
			return
		}
		s.logger.Info("transport re-initialized")
	}()
}
