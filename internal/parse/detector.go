// Package parse classifies transcripts into tasks and notes and prepares
// their text for enrichment.
package parse

import (
	"regexp"
	"strings"
	"sync"
)

// Category is the kind of entry a transcript becomes.
type Category string

const (
	CategoryTask Category = "task"
	CategoryNote Category = "note"
)

// Decision is the outcome of category detection.
type Decision struct {
	Category     Category
	Confidence   float64
	ManualReview bool

	// Tier records which detection tier fired, for logs. 0 is explicit
	// end-metadata, 6 is the default.
	Tier int
}

// endMetadataLines is how many trailing lines are scanned for an explicit
// category marker.
const endMetadataLines = 20

var (
	noteWordRe = regexp.MustCompile(`(?i)\bnote\b`)
	taskWordRe = regexp.MustCompile(`(?i)\btask\b`)
)

// Detector classifies transcript text. The zero value is unusable; use
// NewDetector for the built-in vocabulary.
type Detector struct {
	TaskKeywords     []string
	NoteKeywords     []string
	Imperatives      []string
	NoteIndicators   []string
	IntentPhrases    []string
	CalendarKeywords []string

	compileOnce  sync.Once
	imperativeRe *regexp.Regexp
}

// NewDetector returns a Detector with the built-in vocabulary.
func NewDetector() *Detector {
	return &Detector{
		TaskKeywords: []string{
			"todo", "to-do", "action item", "follow up", "followup",
			"don't forget to", "make sure to", "remember to",
		},
		NoteKeywords: []string{
			"journal", "reflection", "thought", "observation", "idea",
		},
		Imperatives: []string{
			"fix", "buy", "call", "schedule", "email", "send", "book",
			"order", "pay", "cancel", "renew", "pick", "clean", "update",
			"check", "write", "review", "submit", "finish",
		},
		NoteIndicators: []string{
			"i noticed", "i realized", "i was thinking", "was thinking",
			"it occurred to me", "i feel like", "interesting that",
		},
		IntentPhrases: []string{
			"i want to", "i need to", "i have to", "i should",
			"we need to", "we should",
		},
		CalendarKeywords: []string{
			"appointment", "meeting", "on monday", "on tuesday",
			"on wednesday", "on thursday", "on friday", "next week",
			"tomorrow at",
		},
	}
}

// Detect runs the tiers in order; the first hit wins. Passive or ambiguous
// content defaults to a note needing manual review.
func (d *Detector) Detect(text string) Decision {
	lower := strings.ToLower(text)

	// Tier 0: explicit marker in the trailing lines. A standalone "note"
	// outranks "task" when both appear.
	if tail := lastLines(text, endMetadataLines); tail != "" {
		if noteWordRe.MatchString(tail) {
			return Decision{Category: CategoryNote, Confidence: 1.0, Tier: 0}
		}
		if taskWordRe.MatchString(tail) {
			return Decision{Category: CategoryTask, Confidence: 1.0, Tier: 0}
		}
	}

	// Tier 1: explicit keywords anywhere.
	if containsAny(lower, d.TaskKeywords) {
		return Decision{Category: CategoryTask, Confidence: 0.9, Tier: 1}
	}
	if containsAny(lower, d.NoteKeywords) {
		return Decision{Category: CategoryNote, Confidence: 0.9, Tier: 1}
	}

	// Tier 2: imperative verbs, first word preferred, full text as
	// fallback.
	if d.hasImperative(lower) {
		return Decision{Category: CategoryTask, Confidence: 0.8, Tier: 2}
	}

	// Tier 3: reflective note indicators.
	if containsAny(lower, d.NoteIndicators) {
		return Decision{Category: CategoryNote, Confidence: 0.75, Tier: 3}
	}

	// Tier 4: task intent phrases.
	if containsAny(lower, d.IntentPhrases) {
		return Decision{Category: CategoryTask, Confidence: 0.75, Tier: 4}
	}

	// Tier 5: scheduling vocabulary. Soft signal only.
	if containsAny(lower, d.CalendarKeywords) {
		return Decision{Category: CategoryTask, Confidence: 0.7, ManualReview: true, Tier: 5}
	}

	return Decision{Category: CategoryNote, Confidence: 0.5, ManualReview: true, Tier: 6}
}

func (d *Detector) hasImperative(lower string) bool {
	fields := strings.Fields(lower)
	if len(fields) > 0 {
		first := strings.Trim(fields[0], ",.!?")
		for _, verb := range d.Imperatives {
			if first == verb {
				return true
			}
		}
	}
	d.compileOnce.Do(func() {
		if len(d.Imperatives) == 0 {
			return
		}
		quoted := make([]string, len(d.Imperatives))
		for i, verb := range d.Imperatives {
			quoted[i] = regexp.QuoteMeta(verb)
		}
		d.imperativeRe = regexp.MustCompile(`\b(` + strings.Join(quoted, "|") + `)\b`)
	})
	return d.imperativeRe != nil && d.imperativeRe.MatchString(lower)
}

func containsAny(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}

// lastLines returns the final n non-empty lines of text joined by newlines.
func lastLines(text string, n int) string {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		if strings.TrimSpace(line) != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n")
}
