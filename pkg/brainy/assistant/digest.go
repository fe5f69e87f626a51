package assistant

import (
	"context"
	"fmt"
	"strings"

	"github.com/brainybot/brainy/pkg/brainy/llm"
)

// digestBanner prefixes every digest message. It is also one of the bot-echo
// prefixes, so scheduled digests in the self-chat never loop back in.
const digestBanner = "*Good Morning! ☀️ Here is your daily digest:*"

// digestMemoryPrompt retrieves one memory to blend into the briefing.
const digestMemoryPrompt = "Pull an interesting memory from my notes."

// defaultDigestTasks is the static task list used until task tracking is a
// real data source.
var defaultDigestTasks = []string{
	"- Calculus assignment due at 5 PM.",
	"- Call the library at noon.",
	"- Physics study group at 7 PM.",
}

// SendDigest composes the daily briefing and delivers it to the recipient.
// Used by the scheduled firing (recipient resolved from the authorization
// mode) and by on-demand digest requests (recipient is the requester).
// Failures are returned for logging only; nothing retries until the next
// firing or request.
func (r *Router) SendDigest(ctx context.Context, recipient string) error {
	tasks := r.digestTasks
	if len(tasks) == 0 {
		tasks = defaultDigestTasks
	}

	briefingPrompt := fmt.Sprintf(
		"Create a friendly and motivating morning briefing for a college student. Include the following tasks: %s. Also, retrieve one interesting memory from the past that might be inspiring or relevant today.",
		strings.Join(tasks, " "))

	// One retrieved memory, via the same answering routine questions use.
	memoryAnswer, err := r.answerQuestion(ctx, digestMemoryPrompt)
	if err != nil {
		return fmt.Errorf("retrieving digest memory: %w", err)
	}

	fullPrompt := fmt.Sprintf("%s\n\nHere is a past memory to include: %q", briefingPrompt, memoryAnswer)

	briefing, err := r.completer.Complete(ctx, llm.Request{Prompt: fullPrompt})
	if err != nil {
		return fmt.Errorf("composing digest: %w", err)
	}

	message := digestBanner + "\n\n" + briefing
	if err := r.sender.Send(ctx, recipient, message); err != nil {
		return fmt.Errorf("delivering digest: %w", err)
	}

	r.logger.Info("digest delivered", "to", recipient)
	return nil
}
