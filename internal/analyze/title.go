package analyze

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/MrWong99/dictaflow/internal/parse"
	"github.com/MrWong99/dictaflow/pkg/provider/llm"
)

const (
	defaultTaskExcerptWords = 200
	defaultNoteExcerptWords = 500

	// titleFallbackWords is how many leading words form the title when the
	// LLM is unavailable.
	titleFallbackWords = 8
)

const titleSystemPrompt = "You title voice-memo entries. Reply with the title only, no quotes, no trailing punctuation."

// generateTitle produces a 4-8 word title for a record. Long records are
// titled from an excerpt so the body is never sent in full. Title
// generation alone never fails a record: any LLM error falls back to
// first-words truncation.
func (a *Analyzer) generateTitle(ctx context.Context, content string, category parse.Category, preserved bool) (string, bool) {
	input := content
	if preserved {
		input = excerpt(content, a.excerptWordsFor(category))
	}

	var style string
	switch category {
	case parse.CategoryTask:
		style = "verb-object-context describing the action"
	default:
		style = "the topic or insight"
	}
	prompt := fmt.Sprintf("Produce a 4-8 word title (%s) for this entry:\n\n%s", style, input)

	resp, err := a.completeWithRetry(ctx, "title", llm.Request{
		SystemPrompt: titleSystemPrompt,
		Prompt:       prompt,
		MaxTokens:    a.maxTokens,
	})
	if err != nil {
		slog.Warn("title generation failed, using first-words fallback", "error", err)
		return excerpt(content, titleFallbackWords), false
	}

	title := strings.TrimSpace(resp.Content)
	title = strings.Trim(title, `"'`)
	title = strings.TrimSpace(title)
	if title == "" {
		return excerpt(content, titleFallbackWords), false
	}
	return title, true
}

func (a *Analyzer) excerptWordsFor(category parse.Category) int {
	if category == parse.CategoryTask {
		return a.taskExcerptWords
	}
	return a.noteExcerptWords
}

// excerpt returns the first n words of text.
func excerpt(text string, n int) string {
	fields := strings.Fields(text)
	if len(fields) > n {
		fields = fields[:n]
	}
	return strings.Join(fields, " ")
}
