package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/brainybot/brainy/pkg/brainy/channels"
	"github.com/brainybot/brainy/pkg/brainy/llm"
)

// MemoryStore is the semantic memory capability consumed by the core.
// Save returns the new record id; Query degrades to an empty result on any
// failure rather than surfacing an error.
type MemoryStore interface {
	EnsureCollection(ctx context.Context, name string) error
	Save(ctx context.Context, text, source string) (string, error)
	Query(ctx context.Context, text string, topK int) []string
}

// Sender delivers outbound text messages.
type Sender interface {
	Send(ctx context.Context, to string, text string) error
}

// Reply texts and prompt fragments. The prefixes double as the bot-echo
// markers in authorize.go, so changing one means changing the other.
const (
	replyNoteSaved = "✅ Note saved."

	answerPrefix  = "🧠 "
	genericPrefix = "🤖 "

	replyApology = "Sorry, I encountered an error. Please try again."

	contextSeparator = "\n---\n"

	genericInstruction = "You are a friendly and helpful personal assistant. Keep your responses concise."

	memorySourceTag = "whatsapp"
)

// Router is the central control loop: for each inbound message it applies the
// authorization policy, classifies intent, dispatches to the matching handler
// and sends the reply back to the original sender. Each message is handled as
// an independent unit of work; handlers may overlap in time.
type Router struct {
	session    *Session
	mode       *ModeHolder
	classifier *Classifier
	completer  Completer
	memory     MemoryStore
	sender     Sender
	logger     *slog.Logger

	// configuredID is the counterparty identity authorized in two-number
	// mode, already normalized to a transport address.
	configuredID string

	// topK is how many memories a question retrieves.
	topK int

	// digestTasks is the static task list blended into every digest.
	digestTasks []string
}

// RouterConfig carries the router's collaborators and settings.
type RouterConfig struct {
	Session      *Session
	Mode         *ModeHolder
	Completer    Completer
	Memory       MemoryStore
	Sender       Sender
	ConfiguredID string
	TopK         int
	DigestTasks  []string
}

// NewRouter creates the message router.
func NewRouter(cfg RouterConfig, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	topK := cfg.TopK
	if topK <= 0 {
		topK = 3
	}
	return &Router{
		session:      cfg.Session,
		mode:         cfg.Mode,
		classifier:   NewClassifier(cfg.Completer, logger),
		completer:    cfg.Completer,
		memory:       cfg.Memory,
		sender:       cfg.Sender,
		logger:       logger.With("component", "router"),
		configuredID: cfg.ConfiguredID,
		topK:         topK,
		digestTasks:  cfg.DigestTasks,
	}
}

// HandleInbound processes one inbound message end to end. Run it in its own
// goroutine: it blocks on external calls but holds no locks, so concurrent
// messages never contend.
func (r *Router) HandleInbound(ctx context.Context, msg *channels.InboundMessage) {
	if msg.IsGroup {
		return
	}

	mode := r.mode.Get()
	if !isAuthorized(msg, mode, r.session.SelfID(), r.configuredID) {
		r.logger.Debug("unauthorized message ignored", "from", msg.SenderID, "mode", mode)
		return
	}

	if isBotEcho(msg.Body) {
		return
	}

	logger := r.logger.With("from", msg.SenderID)
	logger.Info("authorized message received", "mode", mode, "preview", preview(msg.Body))

	intent := r.classifier.Classify(ctx, msg.Body)
	logger.Info("intent recognized", "type", intent.Type)

	// Reply always targets the original sender, so the same dispatch serves
	// both authorization modes.
	recipient := msg.SenderID

	switch intent.Type {
	case IntentNote:
		r.handleNote(ctx, recipient, intent.Content)
	case IntentQuestion:
		r.handleQuestion(ctx, recipient, intent.Content)
	case IntentDigest:
		if err := r.SendDigest(ctx, recipient); err != nil {
			logger.Error("on-demand digest failed", "error", err)
		}
	default:
		r.handleGeneric(ctx, recipient, intent.Content)
	}
}

// handleNote persists the note and acknowledges. A failed write is logged
// and not retried; the store fault is never surfaced to the user.
func (r *Router) handleNote(ctx context.Context, recipient, content string) {
	if _, err := r.memory.Save(ctx, content, memorySourceTag); err != nil {
		r.logger.Error("failed to save note", "error", err)
	}
	r.send(ctx, recipient, replyNoteSaved)
}

// handleQuestion answers from memory context, falling back to a context-free
// completion when nothing relevant is stored.
func (r *Router) handleQuestion(ctx context.Context, recipient, question string) {
	answer, err := r.answerQuestion(ctx, question)
	if err != nil {
		r.logger.Error("question answering failed", "error", err)
		r.send(ctx, recipient, answerPrefix+replyApology)
		return
	}
	r.send(ctx, recipient, answerPrefix+answer)
}

// answerQuestion retrieves the topK most relevant memories and builds an
// answer prompt around them. With no matches (or an unavailable store) it
// goes straight to a context-free generic completion.
func (r *Router) answerQuestion(ctx context.Context, question string) (string, error) {
	matches := r.memory.Query(ctx, question, r.topK)
	if len(matches) == 0 {
		r.logger.Info("no relevant memories, answering without context")
		return r.completeGeneric(ctx, "Answer this question: "+question)
	}

	prompt := fmt.Sprintf(`Based on the following context from my memory, please answer my question. If the context does not seem relevant to the question, answer the question based on your general knowledge but do not mention the context.

Context:
---
%s
---

Question: %s`, strings.Join(matches, contextSeparator), question)

	return r.completer.Complete(ctx, llm.Request{Prompt: prompt})
}

// handleGeneric replies as a friendly assistant. A completion fault becomes
// a single apology reply.
func (r *Router) handleGeneric(ctx context.Context, recipient, content string) {
	reply, err := r.completeGeneric(ctx, content)
	if err != nil {
		r.logger.Error("generic completion failed", "error", err)
		r.send(ctx, recipient, genericPrefix+replyApology)
		return
	}
	r.send(ctx, recipient, genericPrefix+reply)
}

// completeGeneric runs the friendly-assistant completion on the richer chat
// model.
func (r *Router) completeGeneric(ctx context.Context, input string) (string, error) {
	req := llm.Request{Prompt: input, System: genericInstruction}
	if cm, ok := r.completer.(interface{ ChatModel() string }); ok {
		req.Model = cm.ChatModel()
	}
	return r.completer.Complete(ctx, req)
}

// send delivers a reply best-effort: a transport fault is logged, never
// propagated (the connection state is owned by the session).
func (r *Router) send(ctx context.Context, recipient, text string) {
	if err := r.sender.Send(ctx, recipient, text); err != nil {
		r.logger.Error("failed to send reply", "to", recipient, "error", err)
	}
}

func preview(s string) string {
	const maxLen = 50
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
