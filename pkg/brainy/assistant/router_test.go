package assistant

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/brainybot/brainy/pkg/brainy/channels"
	"github.com/brainybot/brainy/pkg/brainy/llm"
)

const (
	testSelfID       = "1111@s.whatsapp.net"
	testConfiguredID = "2222@s.whatsapp.net"
)

// fakeTransport satisfies channels.Transport for session construction. The
// router never touches the transport directly.
type fakeTransport struct {
	events   chan channels.Event
	messages chan *channels.InboundMessage
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		events:   make(chan channels.Event, 8),
		messages: make(chan *channels.InboundMessage, 8),
	}
}

func (f *fakeTransport) Initialize(context.Context) error            { return nil }
func (f *fakeTransport) Destroy() error                              { return nil }
func (f *fakeTransport) Logout(context.Context) error                { return nil }
func (f *fakeTransport) Send(_ context.Context, _, _ string) error   { return nil }
func (f *fakeTransport) Events() <-chan channels.Event               { return f.events }
func (f *fakeTransport) Messages() <-chan *channels.InboundMessage   { return f.messages }
func (f *fakeTransport) SelfID() string                              { return testSelfID }

// fakeCompleter scripts completion behavior per call.
type fakeCompleter struct {
	mu sync.Mutex

	// intent is the JSON returned by CompleteStructured.
	intent string

	// structuredErr fails classification when set.
	structuredErr error

	// reply is returned by Complete; completeErr overrides it.
	reply       string
	completeErr error

	requests []llm.Request
}

func (f *fakeCompleter) Complete(_ context.Context, req llm.Request) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.completeErr != nil {
		return "", f.completeErr
	}
	return f.reply, nil
}

func (f *fakeCompleter) CompleteStructured(_ context.Context, _ llm.Request, _ *llm.Schema) (json.RawMessage, error) {
	if f.structuredErr != nil {
		return nil, f.structuredErr
	}
	return json.RawMessage(f.intent), nil
}

func (f *fakeCompleter) ChatModel() string { return "chat-model" }

func (f *fakeCompleter) completeRequests() []llm.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.Request(nil), f.requests...)
}

// fakeMemory records saves and serves scripted query results.
type fakeMemory struct {
	mu      sync.Mutex
	saved   []string
	results []string
	saveErr error
}

func (f *fakeMemory) EnsureCollection(context.Context, string) error { return nil }

func (f *fakeMemory) Save(_ context.Context, text, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.saveErr != nil {
		return "", f.saveErr
	}
	f.saved = append(f.saved, text)
	return fmt.Sprintf("doc_%d", len(f.saved)), nil
}

func (f *fakeMemory) Query(_ context.Context, _ string, _ int) []string {
	return f.results
}

// fakeSender records outbound messages.
type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

type sentMessage struct {
	to   string
	text string
}

func (f *fakeSender) Send(_ context.Context, to, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{to: to, text: text})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

func intentJSON(typ, content string) string {
	b, _ := json.Marshal(map[string]string{"type": typ, "content": content})
	return string(b)
}

type routerFixture struct {
	router    *Router
	completer *fakeCompleter
	memory    *fakeMemory
	sender    *fakeSender
	mode      *ModeHolder
}

func newRouterFixture(t *testing.T, mode Mode) *routerFixture {
	t.Helper()

	completer := &fakeCompleter{reply: "ok"}
	memory := &fakeMemory{}
	sender := &fakeSender{}
	holder := NewModeHolder(mode)

	session := NewSession(newFakeTransport(), nil, nil)
	session.OnConnected(testSelfID)

	router := NewRouter(RouterConfig{
		Session:      session,
		Mode:         holder,
		Completer:    completer,
		Memory:       memory,
		Sender:       sender,
		ConfiguredID: testConfiguredID,
		TopK:         3,
	}, nil)

	return &routerFixture{
		router:    router,
		completer: completer,
		memory:    memory,
		sender:    sender,
		mode:      holder,
	}
}

func inbound(sender, body string) *channels.InboundMessage {
	return &channels.InboundMessage{ID: "m1", SenderID: sender, Body: body}
}

func TestRouterNoteRoundTrip(t *testing.T) {
	fx := newRouterFixture(t, ModeDualIdentity)
	fx.completer.intent = intentJSON("note", "buy milk tomorrow")

	fx.router.HandleInbound(context.Background(), inbound(testConfiguredID, "note: buy milk tomorrow"))

	if len(fx.memory.saved) != 1 || fx.memory.saved[0] != "buy milk tomorrow" {
		t.Fatalf("saved = %v, want the note content", fx.memory.saved)
	}
	sent := fx.sender.messages()
	if len(sent) != 1 || sent[0].text != "✅ Note saved." {
		t.Fatalf("sent = %v, want note ack", sent)
	}
	if sent[0].to != testConfiguredID {
		t.Errorf("reply went to %s, want the original sender", sent[0].to)
	}
}

func TestRouterNoteAckEvenWhenSaveFails(t *testing.T) {
	fx := newRouterFixture(t, ModeDualIdentity)
	fx.completer.intent = intentJSON("note", "buy milk")
	fx.memory.saveErr = errors.New("disk full")

	fx.router.HandleInbound(context.Background(), inbound(testConfiguredID, "note: buy milk"))

	sent := fx.sender.messages()
	if len(sent) != 1 || sent[0].text != "✅ Note saved." {
		t.Fatalf("sent = %v, ack must be sent regardless of store fault", sent)
	}
}

func TestRouterQuestionWithContext(t *testing.T) {
	fx := newRouterFixture(t, ModeDualIdentity)
	fx.completer.intent = intentJSON("question", "when is the assignment due?")
	fx.completer.reply = "It is due at 5 PM."
	fx.memory.results = []string{"Calculus assignment due at 5 PM.", "Library opens at 9."}

	fx.router.HandleInbound(context.Background(), inbound(testConfiguredID, "when is the assignment due?"))

	sent := fx.sender.messages()
	if len(sent) != 1 || sent[0].text != "🧠 It is due at 5 PM." {
		t.Fatalf("sent = %v, want prefixed answer", sent)
	}

	reqs := fx.completer.completeRequests()
	if len(reqs) != 1 {
		t.Fatalf("completion calls = %d, want 1", len(reqs))
	}
	if !strings.Contains(reqs[0].Prompt, "Calculus assignment due at 5 PM.") {
		t.Error("answer prompt should embed the retrieved memories")
	}
	if !strings.Contains(reqs[0].Prompt, "\n---\n") {
		t.Error("memories should be joined with the separator")
	}
}

func TestRouterQuestionNoMatchFallsBack(t *testing.T) {
	fx := newRouterFixture(t, ModeDualIdentity)
	fx.completer.intent = intentJSON("question", "what is the capital of France?")
	fx.completer.reply = "Paris."

	fx.router.HandleInbound(context.Background(), inbound(testConfiguredID, "what is the capital of France?"))

	reqs := fx.completer.completeRequests()
	if len(reqs) != 1 {
		t.Fatalf("completion calls = %d, want 1", len(reqs))
	}
	if !strings.HasPrefix(reqs[0].Prompt, "Answer this question: ") {
		t.Errorf("prompt = %q, want the context-free fallback", reqs[0].Prompt)
	}
	// The fallback goes through the generic path on the chat model.
	if reqs[0].Model != "chat-model" {
		t.Errorf("fallback model = %q, want the chat model", reqs[0].Model)
	}

	sent := fx.sender.messages()
	if len(sent) != 1 || sent[0].text != "🧠 Paris." {
		t.Fatalf("sent = %v", sent)
	}
}

func TestRouterQuestionFailureApologizes(t *testing.T) {
	fx := newRouterFixture(t, ModeDualIdentity)
	fx.completer.intent = intentJSON("question", "why?")
	fx.completer.completeErr = errors.New("api down")
	fx.memory.results = []string{"something"}

	fx.router.HandleInbound(context.Background(), inbound(testConfiguredID, "why?"))

	sent := fx.sender.messages()
	if len(sent) != 1 || sent[0].text != "🧠 Sorry, I encountered an error. Please try again." {
		t.Fatalf("sent = %v, want apology", sent)
	}
}

func TestRouterGenericReply(t *testing.T) {
	fx := newRouterFixture(t, ModeDualIdentity)
	fx.completer.intent = intentJSON("unknown", "hey there")
	fx.completer.reply = "Hello! How can I help?"

	fx.router.HandleInbound(context.Background(), inbound(testConfiguredID, "hey there"))

	sent := fx.sender.messages()
	if len(sent) != 1 || sent[0].text != "🤖 Hello! How can I help?" {
		t.Fatalf("sent = %v", sent)
	}

	reqs := fx.completer.completeRequests()
	if reqs[0].Model != "chat-model" {
		t.Errorf("generic reply model = %q, want the chat model", reqs[0].Model)
	}
	if reqs[0].System == "" {
		t.Error("generic reply should carry the friendly-assistant instruction")
	}
}

func TestRouterDigestRequest(t *testing.T) {
	fx := newRouterFixture(t, ModeDualIdentity)
	fx.completer.intent = intentJSON("digest_request", "give me my digest")
	fx.completer.reply = "Here is your day."

	fx.router.HandleInbound(context.Background(), inbound(testConfiguredID, "give me my digest"))

	sent := fx.sender.messages()
	if len(sent) != 1 {
		t.Fatalf("sent = %v, want one digest message", sent)
	}
	if !strings.HasPrefix(sent[0].text, "*Good Morning! ☀️ Here is your daily digest:*\n\n") {
		t.Errorf("digest = %q, want the banner prefix", sent[0].text)
	}
	if sent[0].to != testConfiguredID {
		t.Errorf("digest went to %s, want the requester", sent[0].to)
	}
}

func TestRouterIgnoresGroups(t *testing.T) {
	fx := newRouterFixture(t, ModeDualIdentity)
	fx.completer.intent = intentJSON("note", "should never run")

	msg := inbound(testConfiguredID, "note: group note")
	msg.IsGroup = true
	fx.router.HandleInbound(context.Background(), msg)

	if len(fx.sender.messages()) != 0 || len(fx.memory.saved) != 0 {
		t.Error("group message must produce no dispatch and no reply")
	}
}

func TestRouterIgnoresUnauthorized(t *testing.T) {
	fx := newRouterFixture(t, ModeDualIdentity)
	fx.completer.intent = intentJSON("note", "should never run")

	fx.router.HandleInbound(context.Background(), inbound("9999@s.whatsapp.net", "note: hi"))

	if len(fx.sender.messages()) != 0 {
		t.Error("unauthorized sender must get no reply")
	}
	if len(fx.memory.saved) != 0 {
		t.Error("unauthorized sender must cause no memory write")
	}
}

func TestRouterIgnoresBotEcho(t *testing.T) {
	fx := newRouterFixture(t, ModeSingleIdentity)

	fx.router.HandleInbound(context.Background(), inbound(testSelfID, "✅ Note saved."))
	fx.router.HandleInbound(context.Background(), inbound(testSelfID, "🧠 The answer."))

	if len(fx.sender.messages()) != 0 {
		t.Error("echoed bot replies must not loop back in")
	}
}

func TestRouterModeSwitchChangesAuthorization(t *testing.T) {
	fx := newRouterFixture(t, ModeDualIdentity)
	fx.completer.intent = intentJSON("unknown", "hi")
	fx.completer.reply = "hello"

	// Self messages are rejected under two-number mode.
	fx.router.HandleInbound(context.Background(), inbound(testSelfID, "hi"))
	if len(fx.sender.messages()) != 0 {
		t.Fatal("self message should be rejected in two-number mode")
	}

	fx.mode.Set(ModeSingleIdentity)

	// The same sender passes after the switch.
	fx.router.HandleInbound(context.Background(), inbound(testSelfID, "hi"))
	if len(fx.sender.messages()) != 1 {
		t.Fatal("self message should pass after switching to single-number mode")
	}

	// And the previously authorized counterparty no longer does.
	fx.router.HandleInbound(context.Background(), inbound(testConfiguredID, "hi"))
	if len(fx.sender.messages()) != 1 {
		t.Error("configured counterparty should be rejected in single-number mode")
	}
}
