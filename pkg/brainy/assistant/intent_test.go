package assistant

import (
	"context"
	"errors"
	"testing"
)

func TestClassifyMapsTypes(t *testing.T) {
	tests := []struct {
		name    string
		intent  string
		want    IntentType
		content string
	}{
		{"note", intentJSON("note", "buy milk"), IntentNote, "buy milk"},
		{"question", intentJSON("question", "when is it due?"), IntentQuestion, "when is it due?"},
		{"digest", intentJSON("digest_request", "plan for today"), IntentDigest, "plan for today"},
		{"unknown", intentJSON("unknown", "hey"), IntentGeneric, "hey"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			completer := &fakeCompleter{intent: tt.intent}
			c := NewClassifier(completer, nil)

			got := c.Classify(context.Background(), "input")
			if got.Type != tt.want {
				t.Errorf("type = %v, want %v", got.Type, tt.want)
			}
			if got.Content != tt.content {
				t.Errorf("content = %q, want %q", got.Content, tt.content)
			}
		})
	}
}

func TestClassifyStable(t *testing.T) {
	completer := &fakeCompleter{intent: intentJSON("note", "buy milk")}
	c := NewClassifier(completer, nil)

	first := c.Classify(context.Background(), "note: buy milk")
	second := c.Classify(context.Background(), "note: buy milk")
	if first.Type != second.Type || first.Content != second.Content {
		t.Errorf("classification not stable: %+v vs %+v", first, second)
	}
}

func TestClassifyFailureFallsBackToGeneric(t *testing.T) {
	completer := &fakeCompleter{structuredErr: errors.New("api down")}
	c := NewClassifier(completer, nil)

	got := c.Classify(context.Background(), "hello world")
	if got.Type != IntentGeneric {
		t.Errorf("type = %v, want generic", got.Type)
	}
	if got.Content != "hello world" {
		t.Errorf("content = %q, want the full input", got.Content)
	}
}

func TestClassifyUnparseableFallsBackToGeneric(t *testing.T) {
	completer := &fakeCompleter{intent: "not json at all"}
	c := NewClassifier(completer, nil)

	got := c.Classify(context.Background(), "hello")
	if got.Type != IntentGeneric || got.Content != "hello" {
		t.Errorf("got %+v, want generic with full input", got)
	}
}

func TestClassifyInventedTypeBecomesGeneric(t *testing.T) {
	completer := &fakeCompleter{intent: intentJSON("reminder", "call mom")}
	c := NewClassifier(completer, nil)

	got := c.Classify(context.Background(), "call mom")
	if got.Type != IntentGeneric {
		t.Errorf("type = %v, a model-invented type must degrade to generic", got.Type)
	}
}

func TestClassifyEmptyContentUsesInput(t *testing.T) {
	completer := &fakeCompleter{intent: intentJSON("note", "")}
	c := NewClassifier(completer, nil)

	got := c.Classify(context.Background(), "note: the whole thing")
	if got.Content != "note: the whole thing" {
		t.Errorf("content = %q, want the original input", got.Content)
	}
}
