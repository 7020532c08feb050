package catalog

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// MatchType labels how a fuzzy match was found.
type MatchType string

const (
	MatchExactName    MatchType = "exact_name"
	MatchExactAlias   MatchType = "exact_alias"
	MatchPartialName  MatchType = "partial_name"
	MatchPartialAlias MatchType = "partial_alias"
	MatchFuzzy        MatchType = "fuzzy"
	MatchNone         MatchType = "none"
)

// FuzzyMatch is one ranked candidate produced by the matcher.
type FuzzyMatch struct {
	ProjectName string
	Confidence  float64
	Type        MatchType

	// NeedsReview marks a match accepted below the extraction confidence
	// threshold; the record it lands on should be flagged for a human.
	NeedsReview bool

	// Source is the candidate phrase that produced the match.
	Source string
}

const (
	// partialOverlapFloor is the minimum fraction of candidate words that
	// must appear in the target for a partial match.
	partialOverlapFloor = 0.7

	// fuzzyRatioThreshold is the minimum character-level similarity for a
	// level-5 match.
	fuzzyRatioThreshold = 0.6

	// fuzzyWeight scales character-level similarity into confidence.
	fuzzyWeight = 0.70

	// phoneticFloor is the minimum Jaro-Winkler score a phonetically
	// overlapping candidate must reach.
	phoneticFloor = 0.70
)

// Matcher resolves candidate phrases against a catalog. Read-only after
// construction, safe for concurrent use.
type Matcher struct {
	catalog *Catalog
}

// NewMatcher builds a matcher over the given catalog.
func NewMatcher(c *Catalog) *Matcher {
	return &Matcher{catalog: c}
}

// ProjectID returns the store ID for an exact project name, or "" when the
// project is unknown or came from the built-in fallback list.
func (m *Matcher) ProjectID(name string) string {
	if m.catalog == nil {
		return ""
	}
	if p, ok := m.catalog.Projects[name]; ok {
		return p.ID
	}
	return ""
}

// Match runs the level cascade and returns the highest-confidence match.
// An exact name hit short-circuits at confidence 1.0.
func (m *Matcher) Match(candidate string) FuzzyMatch {
	norm := normalizePhrase(candidate)
	if norm == "" || m.catalog.Empty() {
		return FuzzyMatch{Type: MatchNone, Source: candidate}
	}

	// Level 1: case-insensitive exact name.
	for name := range m.catalog.Projects {
		if normalizePhrase(name) == norm {
			return FuzzyMatch{ProjectName: name, Confidence: 1.0, Type: MatchExactName, Source: candidate}
		}
	}

	best := FuzzyMatch{Type: MatchNone, Source: candidate}

	// Level 2: case-insensitive exact alias.
	if name, ok := m.catalog.Aliases[norm]; ok {
		best = FuzzyMatch{ProjectName: name, Confidence: 0.95, Type: MatchExactAlias, Source: candidate}
	}

	candWords := strings.Fields(norm)

	// Levels 3 and 4: partial word overlap against names, then aliases.
	for name := range m.catalog.Projects {
		if overlap := wordOverlap(candWords, strings.Fields(normalizePhrase(name))); overlap >= partialOverlapFloor {
			conf := scaleOverlap(overlap, 0.80, 0.90)
			if conf > best.Confidence {
				best = FuzzyMatch{ProjectName: name, Confidence: conf, Type: MatchPartialName, Source: candidate}
			}
		}
	}
	for alias, name := range m.catalog.Aliases {
		if overlap := wordOverlap(candWords, strings.Fields(alias)); overlap >= partialOverlapFloor {
			conf := scaleOverlap(overlap, 0.75, 0.85)
			if conf > best.Confidence {
				best = FuzzyMatch{ProjectName: name, Confidence: conf, Type: MatchPartialAlias, Source: candidate}
			}
		}
	}

	// Level 5: character-level similarity, with a phonetic assist for
	// speech-mangled names ("life add min" vs "Life Admin").
	for name := range m.catalog.Projects {
		target := normalizePhrase(name)
		score := lcsRatio(norm, target)
		if phoneticOverlap(norm, target) {
			if jw := matchr.JaroWinkler(norm, target, false); jw >= phoneticFloor && jw > score {
				score = jw
			}
		}
		if score >= fuzzyRatioThreshold {
			conf := score * fuzzyWeight
			if conf > best.Confidence {
				best = FuzzyMatch{ProjectName: name, Confidence: conf, Type: MatchFuzzy, Source: candidate}
			}
		}
	}

	return best
}

// wordOverlap returns the fraction of candidate words found in the target.
// Tokens of three or more characters also match as substrings, so "admin"
// matches "administration".
func wordOverlap(candidate, target []string) float64 {
	if len(candidate) == 0 {
		return 0
	}
	matched := 0
	for _, cw := range candidate {
		for _, tw := range target {
			if cw == tw {
				matched++
				break
			}
			if len(cw) >= 3 && (strings.Contains(tw, cw) || strings.Contains(cw, tw)) {
				matched++
				break
			}
		}
	}
	return float64(matched) / float64(len(candidate))
}

// scaleOverlap maps an overlap fraction in [floor, 1] onto [lo, hi].
func scaleOverlap(overlap, lo, hi float64) float64 {
	if overlap >= 1 {
		return hi
	}
	return lo + (overlap-partialOverlapFloor)/(1-partialOverlapFloor)*(hi-lo)
}

// lcsRatio computes longest-common-subsequence length over the longer
// string's length.
func lcsRatio(a, b string) float64 {
	if a == "" || b == "" {
		return 0
	}
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for i := 1; i <= len(ra); i++ {
		for j := 1; j <= len(rb); j++ {
			if ra[i-1] == rb[j-1] {
				cur[j] = prev[j-1] + 1
			} else if prev[j] >= cur[j-1] {
				cur[j] = prev[j]
			} else {
				cur[j] = cur[j-1]
			}
		}
		prev, cur = cur, prev
	}
	longer := len(ra)
	if len(rb) > longer {
		longer = len(rb)
	}
	return float64(prev[len(rb)]) / float64(longer)
}

// phoneticOverlap reports whether any word of a shares a Double Metaphone
// code with any word of b.
func phoneticOverlap(a, b string) bool {
	codes := make(map[string]struct{})
	for _, w := range strings.Fields(a) {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			codes[p] = struct{}{}
		}
		if s != "" {
			codes[s] = struct{}{}
		}
	}
	for _, w := range strings.Fields(b) {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			if _, ok := codes[p]; ok {
				return true
			}
		}
		if s != "" {
			if _, ok := codes[s]; ok {
				return true
			}
		}
	}
	return false
}
