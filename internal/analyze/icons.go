package analyze

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// IconSelector maps keywords to page icons. Patterns are compiled once at
// construction; lookup tries content, then title, then a simplified project
// name, taking the longest matching keyword.
type IconSelector struct {
	patterns []iconPattern
	fallback string
}

type iconPattern struct {
	keyword string
	icon    string
	re      *regexp.Regexp
}

// defaultIconMap is used when no mapping file is configured.
var defaultIconMap = map[string]string{
	"email":       "✉️",
	"call":        "📞",
	"phone":       "📞",
	"buy":         "🛒",
	"groceries":   "🛒",
	"fix":         "🔧",
	"repair":      "🔧",
	"plumber":     "🔧",
	"electrician": "⚡",
	"garden":      "🌱",
	"health":      "🩺",
	"doctor":      "🩺",
	"book":        "📚",
	"money":       "💰",
	"pay":         "💰",
	"clean":       "🧹",
	"car":         "🚗",
	"travel":      "✈️",
	"idea":        "💡",
}

// NewIconSelector loads a keyword-to-emoji mapping from the given JSON file.
// An empty path uses the built-in mapping. The fallback icon is returned
// when nothing matches.
func NewIconSelector(mapFile, fallback string) (*IconSelector, error) {
	mapping := defaultIconMap
	if mapFile != "" {
		data, err := os.ReadFile(mapFile)
		if err != nil {
			return nil, fmt.Errorf("analyze: read icon map %q: %w", mapFile, err)
		}
		mapping = map[string]string{}
		if err := json.Unmarshal(data, &mapping); err != nil {
			return nil, fmt.Errorf("analyze: parse icon map %q: %w", mapFile, err)
		}
	}

	s := &IconSelector{fallback: fallback}
	for keyword, icon := range mapping {
		s.patterns = append(s.patterns, iconPattern{
			keyword: keyword,
			icon:    icon,
			re:      regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(keyword) + `\b`),
		})
	}
	// Longest keyword first, name as tiebreak for determinism.
	sort.Slice(s.patterns, func(i, j int) bool {
		if len(s.patterns[i].keyword) != len(s.patterns[j].keyword) {
			return len(s.patterns[i].keyword) > len(s.patterns[j].keyword)
		}
		return s.patterns[i].keyword < s.patterns[j].keyword
	})
	return s, nil
}

// Select picks the icon for a record: content first, then title, then the
// simplified project name.
func (s *IconSelector) Select(content, title, project string) string {
	for _, text := range []string{content, title, simplifyProject(project)} {
		if text == "" {
			continue
		}
		for _, p := range s.patterns {
			if p.re.MatchString(text) {
				return p.icon
			}
		}
	}
	return s.fallback
}

// projectAffixes are structural words stripped from project names before
// icon lookup.
var projectAffixes = []string{"hq", "project", "projects", "area", "zone"}

func simplifyProject(project string) string {
	fields := strings.Fields(strings.ToLower(project))
	var kept []string
	for _, f := range fields {
		affix := false
		for _, a := range projectAffixes {
			if f == a {
				affix = true
				break
			}
		}
		if !affix {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}
