package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/brainybot/brainy/pkg/brainy/llm"
)

// IntentType classifies the purpose of an inbound message.
type IntentType string

const (
	IntentNote     IntentType = "note"
	IntentQuestion IntentType = "question"
	IntentDigest   IntentType = "digest_request"
	IntentGeneric  IntentType = "unknown"
)

// Intent is the classified purpose of a message plus the relevant content
// (the text after the note prefix, or the full input). Derived per message,
// never persisted.
type Intent struct {
	Type    IntentType `json:"type"`
	Content string     `json:"content"`
}

// Completer is the completion capability consumed by the core.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (string, error)
	CompleteStructured(ctx context.Context, req llm.Request, schema *llm.Schema) (json.RawMessage, error)
}

// intentInstruction teaches the model the classification rules. The keyword
// heuristics live here, inside the instructions: the model stays the primary
// classifier and applies them.
const intentInstruction = `You are an intent recognition system. You must classify the user's input into one of four types: 'note', 'question', 'digest_request', or 'unknown'.
- If the input starts with 'note:', 'save:', or 'remember:', the type is 'note'. The content is everything after the prefix.
- If the input asks a question (starts with who, what, where, when, why, how, or ends with a '?'), the type is 'question'. The content is the full input.
- If the input mentions 'digest', 'summary', or 'plan for today', the type is 'digest_request'. The content is the full input.
- Otherwise, the type is 'unknown'. The content is the full input.`

// intentSchema constrains the structured result to {type, content}.
var intentSchema = llm.ObjectSchema(map[string]*llm.Schema{
	"type":    llm.StringSchema(),
	"content": llm.StringSchema(),
})

// Classifier turns free text into a typed intent via the completion service.
type Classifier struct {
	completer Completer
	logger    *slog.Logger
}

// NewClassifier creates an intent classifier.
func NewClassifier(completer Completer, logger *slog.Logger) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		completer: completer,
		logger:    logger.With("component", "intent"),
	}
}

// Classify returns the intent for the given text. Classification failure is
// a recoverable degradation, never an error: a failed or unparseable
// completion yields a Generic intent carrying the full text.
func (c *Classifier) Classify(ctx context.Context, text string) Intent {
	prompt := fmt.Sprintf(`Analyze the following user input and determine the intent. The user input is: %q. Your response must be a JSON object.`, text)

	raw, err := c.completer.CompleteStructured(ctx, llm.Request{
		Prompt: prompt,
		System: intentInstruction,
	}, intentSchema)
	if err != nil {
		c.logger.Warn("intent classification failed, treating as generic", "error", err)
		return Intent{Type: IntentGeneric, Content: text}
	}

	var intent Intent
	if err := json.Unmarshal(raw, &intent); err != nil {
		c.logger.Warn("unparseable intent result, treating as generic", "error", err)
		return Intent{Type: IntentGeneric, Content: text}
	}

	switch intent.Type {
	case IntentNote, IntentQuestion, IntentDigest, IntentGeneric:
	default:
		intent.Type = IntentGeneric
	}
	if intent.Content == "" {
		intent.Content = text
	}
	return intent
}
