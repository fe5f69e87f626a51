package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/brainybot/brainy/pkg/brainy/channels"
	"github.com/brainybot/brainy/pkg/brainy/llm"
	"github.com/brainybot/brainy/pkg/brainy/scheduler"
	"github.com/brainybot/brainy/pkg/brainy/webui"
)

// digestJobID identifies the recurring daily briefing in the scheduler.
const digestJobID = "daily-digest"

// webChatInstructionFmt is the web chat persona; %s is the assistant name.
const webChatInstructionFmt = "You are a helpful personal assistant for a college student. Your name is %s. Keep responses concise and helpful. You help with reminders, notes, and answering questions based on stored memories."

// Deps are the assistant's external collaborators, constructed by the caller
// so tests can substitute fakes.
type Deps struct {
	Transport channels.Transport
	Completer Completer
	Memory    MemoryStore
	Scheduler *scheduler.Scheduler

	// AuthorizedID is the configured counterparty identity for two-number
	// mode, normalized to a transport address.
	AuthorizedID string
}

// Assistant wires the session state machine, message router, memory store
// and digest scheduler together and drives them from the transport's event
// and message streams.
type Assistant struct {
	cfg    *Config
	deps   Deps
	logger *slog.Logger

	session *Session
	mode    *ModeHolder
	router  *Router

	// fatal receives at most one unrecoverable startup error (memory
	// collection init outside ephemeral deployments).
	fatal chan error

	runCtx context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates an assistant. Start must be called to begin processing.
func New(cfg *Config, deps Deps, logger *slog.Logger) (*Assistant, error) {
	if logger == nil {
		logger = slog.Default()
	}

	mode, err := ParseMode(cfg.Mode)
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if mode == ModeDualIdentity && deps.AuthorizedID == "" {
		if !cfg.Ephemeral {
			return nil, fmt.Errorf("invalid config: two-number mode requires an authorized number, run: brainy setup")
		}
		logger.Warn("two-number mode with no authorized number, no sender will be authorized")
	}

	a := &Assistant{
		cfg:    cfg,
		deps:   deps,
		logger: logger.With("component", "assistant"),
		mode:   NewModeHolder(mode),
		fatal:  make(chan error, 1),
	}

	a.session = NewSession(deps.Transport, a.onConnected, logger)

	tasks := cfg.Digest.Tasks
	if len(tasks) == 0 {
		tasks = defaultDigestTasks
	}

	a.router = NewRouter(RouterConfig{
		Session:      a.session,
		Mode:         a.mode,
		Completer:    deps.Completer,
		Memory:       deps.Memory,
		Sender:       deps.Transport,
		ConfiguredID: deps.AuthorizedID,
		TopK:         cfg.Memory.TopK,
		DigestTasks:  tasks,
	}, logger)

	return a, nil
}

// Start connects the transport and begins processing events and messages.
func (a *Assistant) Start(ctx context.Context) error {
	a.runCtx, a.cancel = context.WithCancel(ctx)

	a.wg.Add(2)
	go a.eventLoop()
	go a.messageLoop()

	if err := a.deps.Transport.Initialize(a.runCtx); err != nil {
		a.cancel()
		return fmt.Errorf("initializing transport: %w", err)
	}

	a.deps.Scheduler.Start()
	a.logger.Info("assistant started", "mode", a.mode.Get())
	return nil
}

// Stop shuts the assistant down, waiting for the processing loops up to the
// context deadline. In-flight message handlers finish on their own.
func (a *Assistant) Stop(ctx context.Context) {
	a.deps.Scheduler.Stop()

	if a.cancel != nil {
		a.cancel()
	}
	if err := a.deps.Transport.Destroy(); err != nil {
		a.logger.Warn("transport teardown failed", "error", err)
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.logger.Warn("shutdown timed out waiting for processing loops")
	}

	a.logger.Info("assistant stopped")
}

// Fatal reports unrecoverable errors that should terminate the process.
func (a *Assistant) Fatal() <-chan error { return a.fatal }

// Session exposes the session state machine.
func (a *Assistant) Session() *Session { return a.session }

// eventLoop applies transport lifecycle events to the session, one at a
// time. Single dispatch keeps session transitions serialized.
func (a *Assistant) eventLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.runCtx.Done():
			return
		case evt, ok := <-a.deps.Transport.Events():
			if !ok {
				return
			}
			switch evt.Type {
			case channels.EventPairingCode:
				a.session.OnPairingCode(evt.PairingCode)
			case channels.EventConnected:
				a.session.OnConnected(evt.SelfID)
			case channels.EventDisconnected:
				a.session.OnDisconnected(evt.Reason)
			}
		}
	}
}

// messageLoop fans inbound messages out to the router. Each message gets its
// own goroutine so one slow completion never stalls the stream.
func (a *Assistant) messageLoop() {
	defer a.wg.Done()
	for {
		select {
		case <-a.runCtx.Done():
			return
		case msg, ok := <-a.deps.Transport.Messages():
			if !ok {
				return
			}
			go a.router.HandleInbound(a.runCtx, msg)
		}
	}
}

// onConnected runs once per successful connection: it prepares the memory
// collection and arms the daily digest job.
func (a *Assistant) onConnected(selfID string) {
	ctx, cancel := context.WithTimeout(a.runCtx, 30*time.Second)
	defer cancel()

	if err := a.deps.Memory.EnsureCollection(ctx, a.cfg.Memory.Collection); err != nil {
		if a.cfg.Ephemeral {
			a.logger.Warn("memory collection init failed, continuing without durable memory", "error", err)
		} else {
			select {
			case a.fatal <- fmt.Errorf("initializing memory collection: %w", err):
			default:
			}
			return
		}
	}

	a.armDigest()
	a.logger.Debug("connection setup complete", "self", selfID)
}

// armDigest registers the daily digest job. Reconnects after the first
// connection find the job already present and leave it alone.
func (a *Assistant) armDigest() {
	if a.deps.Scheduler.Has(digestJobID) {
		return
	}

	err := a.deps.Scheduler.Add(digestJobID, a.cfg.Digest.Schedule, func(ctx context.Context) error {
		recipient := a.digestRecipient()
		if recipient == "" {
			return fmt.Errorf("no digest recipient available")
		}
		return a.router.SendDigest(ctx, recipient)
	})
	if err != nil {
		a.logger.Error("failed to arm digest job", "schedule", a.cfg.Digest.Schedule, "error", err)
		return
	}

	a.logger.Info("daily digest armed",
		"schedule", a.cfg.Digest.Schedule,
		"timezone", a.deps.Scheduler.Location().String())
}

// digestRecipient resolves the digest target at fire time, so a mode switch
// between firings takes effect without rescheduling.
func (a *Assistant) digestRecipient() string {
	if a.mode.Get() == ModeDualIdentity {
		return a.deps.AuthorizedID
	}
	return a.session.SelfID()
}

// ── Web UI surface (implements webui.AssistantAPI) ──

// WebChat runs one web conversation turn against the completion service.
// Web chat is independent of the messaging link and works while disconnected.
func (a *Assistant) WebChat(ctx context.Context, message string, history []webui.ChatTurn) (string, error) {
	turns := make([]llm.Turn, 0, len(history))
	for _, h := range history {
		role := "model"
		if h.Role == "user" {
			role = "user"
		}
		turns = append(turns, llm.Turn{Role: role, Text: h.Text})
	}

	return a.deps.Completer.Complete(ctx, llm.Request{
		System:  fmt.Sprintf(webChatInstructionFmt, a.cfg.Name),
		Prompt:  message,
		History: turns,
	})
}

// MessagingStatus reports the session status and pending pairing code.
func (a *Assistant) MessagingStatus() (string, string) {
	status, code := a.session.Current()
	return string(status), code
}

// DisconnectMessaging unlinks the messaging session.
func (a *Assistant) DisconnectMessaging(ctx context.Context) error {
	return a.session.Disconnect(ctx)
}

// Mode returns the current operating mode.
func (a *Assistant) Mode() string { return string(a.mode.Get()) }

// SetMode switches the operating mode. Takes effect for the next message;
// in-flight handlers keep the mode they started with.
func (a *Assistant) SetMode(mode string) error {
	m, err := ParseMode(mode)
	if err != nil {
		return err
	}
	a.mode.Set(m)
	a.logger.Info("operation mode switched", "mode", m)
	return nil
}

// Restart tears down and re-establishes the messaging connection
// asynchronously. Safe to call before Start; the web UI comes up first and
// may trigger a restart while the transport is still initializing.
func (a *Assistant) Restart() {
	ctx := a.runCtx
	if ctx == nil {
		ctx = context.Background()
	}
	a.session.Restart(ctx)
}
