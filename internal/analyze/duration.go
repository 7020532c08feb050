package analyze

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/MrWong99/dictaflow/pkg/provider/llm"
)

const durationSystemPrompt = "You estimate task effort. Reply with a single JSON object, nothing else."

// estimateDuration issues one LLM call classifying a task's effort. Any
// failure returns the safe default of MEDIUM, 20 minutes, due end-of-week.
func (a *Analyzer) estimateDuration(ctx context.Context, content string) TaskDetails {
	now := a.now()
	eow := nextFriday(now)
	eom := endOfMonth(now)
	fallback := TaskDetails{
		Duration:         DurationMedium,
		EstimatedMinutes: 20,
		DueDate:          eow,
		Reasoning:        "default estimate",
	}

	prompt := fmt.Sprintf(`Today is %s. End of week is %s (next Friday). End of month is %s.
Classify this task:
- QUICK: at most 2 minutes, due today
- MEDIUM: 15-30 minutes, due end of week
- LONG: hours or days, due end of month

Task: %s

Reply as JSON: {"duration_category": "...", "estimated_minutes": N, "due_date": "YYYY-MM-DD", "reasoning": "..."}`,
		now.Format("2006-01-02"), eow.Format("2006-01-02"), eom.Format("2006-01-02"), content)

	resp, err := a.completeWithRetry(ctx, "duration", llm.Request{
		SystemPrompt: durationSystemPrompt,
		Prompt:       prompt,
		MaxTokens:    a.maxTokens,
	})
	if err != nil {
		slog.Warn("duration estimation failed, using default", "error", err)
		return fallback
	}

	var parsed struct {
		DurationCategory string `json:"duration_category"`
		EstimatedMinutes int    `json:"estimated_minutes"`
		DueDate          string `json:"due_date"`
		Reasoning        string `json:"reasoning"`
	}
	raw := extractJSONObject(resp.Content)
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		slog.Warn("duration response is not valid JSON, using default", "error", err)
		return fallback
	}

	details := fallback
	switch DurationCategory(strings.ToUpper(parsed.DurationCategory)) {
	case DurationQuick:
		details.Duration = DurationQuick
		details.DueDate = now
	case DurationMedium:
		details.Duration = DurationMedium
		details.DueDate = eow
	case DurationLong:
		details.Duration = DurationLong
		details.DueDate = eom
	default:
		return fallback
	}
	if parsed.EstimatedMinutes > 0 {
		details.EstimatedMinutes = parsed.EstimatedMinutes
	}
	if due, err := time.Parse("2006-01-02", parsed.DueDate); err == nil {
		details.DueDate = due
	}
	if parsed.Reasoning != "" {
		details.Reasoning = parsed.Reasoning
	}
	return details
}

// extractJSONObject trims any prose around the first top-level JSON object.
func extractJSONObject(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return s
	}
	return s[start : end+1]
}

// nextFriday returns the upcoming Friday, or today when it already is one.
func nextFriday(now time.Time) time.Time {
	days := (int(time.Friday) - int(now.Weekday()) + 7) % 7
	return now.AddDate(0, 0, days)
}

// endOfMonth returns the last day of the current month.
func endOfMonth(now time.Time) time.Time {
	firstOfNext := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location()).AddDate(0, 1, 0)
	return firstOfNext.AddDate(0, 0, -1)
}
