package catalog

import (
	"strings"
)

// ManualReviewProject is the sentinel project name emitted when no candidate
// phrase matched with usable confidence.
const ManualReviewProject = "Manual Review Required"

// acceptConfidence is the confidence at which extraction stops scanning and
// accepts a window outright.
const acceptConfidence = 0.95

// maxWindowWords bounds candidate phrase length.
const maxWindowWords = 5

// scanDepthWords bounds how far back from the category marker windows are
// tried.
const scanDepthWords = 8

// ignoredKeywords are structural words that can never name a project on
// their own.
var ignoredKeywords = map[string]struct{}{
	"task": {}, "note": {}, "project": {},
	"tasks": {}, "notes": {}, "projects": {},
}

// ExtractProject locates the spoken project name in transcript text. The
// convention puts the project immediately before the final category marker,
// so extraction walks word windows backwards from that point, longest first.
//
// Returns a ManualReviewProject match with confidence 0 when nothing
// plausible is found.
func (m *Matcher) ExtractProject(text string, keyword string) FuzzyMatch {
	words := prefixBeforeLastKeyword(text, keyword)
	if len(words) == 0 {
		return FuzzyMatch{ProjectName: ManualReviewProject, Type: MatchNone, Source: text}
	}
	if len(words) > scanDepthWords {
		words = words[len(words)-scanDepthWords:]
	}

	best := FuzzyMatch{ProjectName: ManualReviewProject, Type: MatchNone}
	for size := maxWindowWords; size >= 1; size-- {
		if size > len(words) {
			continue
		}
		for end := len(words); end >= size; end-- {
			window := words[end-size : end]
			if allIgnored(window) {
				continue
			}
			match := m.Match(strings.Join(window, " "))
			if match.Confidence >= acceptConfidence {
				return match
			}
			if match.Confidence > best.Confidence {
				best = match
			}
		}
	}
	if best.Confidence == 0 {
		return FuzzyMatch{ProjectName: ManualReviewProject, Type: MatchNone, Source: text}
	}
	// A sub-threshold best guess is still the most useful answer, but the
	// record built on it must be flagged for a human.
	best.NeedsReview = true
	return best
}

// prefixBeforeLastKeyword returns the normalized words preceding the last
// occurrence of keyword. When the keyword never appears, the whole text is
// the prefix.
func prefixBeforeLastKeyword(text, keyword string) []string {
	fields := strings.Fields(text)
	norm := make([]string, len(fields))
	for i, f := range fields {
		norm[i] = normalizeWord(f)
	}
	last := -1
	for i, w := range norm {
		if w == keyword {
			last = i
		}
	}
	if last == -1 {
		return norm
	}
	return norm[:last]
}

func allIgnored(window []string) bool {
	for _, w := range window {
		if _, ok := ignoredKeywords[w]; !ok {
			return false
		}
	}
	return true
}
