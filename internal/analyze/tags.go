package analyze

import "strings"

// Store-facing tag values. The emoji prefixes are part of the stored string;
// changing them here drifts the store taxonomy.
const (
	TagCommunications = "📞 Communications"
	TagNeedsPartner   = "👥 Needs Input from Partner"
)

// TagDetector assigns store-facing tags from keyword rules.
type TagDetector struct {
	// CommunicationVerbs are person-directed actions.
	CommunicationVerbs []string

	// PersonIndicators are words naming who the action is directed at.
	PersonIndicators []string

	// PartnerKeywords mark decisions that need a partner's input.
	PartnerKeywords []string
}

// NewTagDetector returns a TagDetector with the built-in rules.
func NewTagDetector() *TagDetector {
	return &TagDetector{
		CommunicationVerbs: []string{"call", "email", "text", "message", "phone", "reply to"},
		PersonIndicators: []string{
			"parents", "mom", "dad", "team", "client", "boss", "doctor",
			"plumber", "electrician", "landlord", "accountant", "friend",
		},
		PartnerKeywords: []string{
			"home remodel", "remodel", "baby", "major decision", "vacation plans",
			"moving house", "joint account", "big purchase",
		},
	}
}

// Detect returns all applicable tags for the given text.
func (d *TagDetector) Detect(text string) []string {
	lower := strings.ToLower(text)
	var tags []string

	if anyPhrase(lower, d.CommunicationVerbs) && anyPhrase(lower, d.PersonIndicators) {
		tags = append(tags, TagCommunications)
	}
	if anyPhrase(lower, d.PartnerKeywords) {
		tags = append(tags, TagNeedsPartner)
	}
	return tags
}

func anyPhrase(lower string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(lower, p) {
			return true
		}
	}
	return false
}
