package parse

import (
	"regexp"
	"strings"
)

var (
	multiSpaceRe  = regexp.MustCompile(`\s+`)
	sentenceEndRe = regexp.MustCompile(`([.!?]) +`)
)

// metaCommentary lists recorder framing phrases that say how the message was
// made instead of what it asks for. Stripped from task bodies.
var metaCommentary = []*regexp.Regexp{
	regexp.MustCompile(`(?i)i recorded (a|this) message (asking you )?to\s*`),
	regexp.MustCompile(`(?i)i('m| am) recording this (message )?(to say|to remind you|because)\s*`),
	regexp.MustCompile(`(?i)this is a (voice )?(recording|memo|message) (about|to say)\s*`),
	regexp.MustCompile(`(?i)just a quick (voice )?(note|memo) to say\s*`),
}

// FormatNote lightly normalizes note text: whitespace runs collapse to a
// single space and sentence-ending punctuation starts a new line. Note
// bodies are never rewritten beyond this.
func FormatNote(text string) string {
	out := multiSpaceRe.ReplaceAllString(strings.TrimSpace(text), " ")
	out = sentenceEndRe.ReplaceAllString(out, "$1\n")
	return out
}

// FormatTask strips meta-commentary from task text and reports how many
// framing patterns were removed; callers lower their confidence per hit.
func FormatTask(text string) (string, int) {
	out := strings.TrimSpace(text)
	hits := 0
	for _, re := range metaCommentary {
		if re.MatchString(out) {
			out = re.ReplaceAllString(out, "")
			hits++
		}
	}
	out = multiSpaceRe.ReplaceAllString(strings.TrimSpace(out), " ")
	return out, hits
}

// TrimPreserved normalizes preserved content for byte comparison against the
// transcript file: only a trailing period and surrounding whitespace go.
func TrimPreserved(text string) string {
	out := strings.TrimSpace(text)
	out = strings.TrimSuffix(out, ".")
	return strings.TrimRight(out, " \t\n")
}

// WordCount counts whitespace-delimited words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}

// TooShort reports whether a transcript is below the minimum viable size
// and must be routed to failed-transcripts instead of analysis.
func TooShort(text string, minChars, minWords int) bool {
	trimmed := strings.TrimSpace(text)
	return len(trimmed) < minChars || WordCount(trimmed) < minWords
}
