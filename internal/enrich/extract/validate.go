package extract

import (
	"regexp"
	"strings"

	"github.com/shpitdev/leadfinder/internal/enrich"
)

const (
	maxStructuralRoleWords = 5
	maxLineRoleWords       = 8
	maxNameTokens          = 4
)

// nameTokenRe accepts "Jane", "Dr", "Dr.", "O'Neil", "Smith-Jones".
var nameTokenRe = regexp.MustCompile(`^[A-Z][a-z]*(?:'[A-Z]?[a-z]+|-[A-Z][a-z]+)*\.?$`)

var genericLabels = map[string]struct{}{
	"meet our team": {}, "our team": {}, "leadership": {}, "our staff": {},
	"about us": {}, "our doctors": {}, "our providers": {}, "who we are": {},
	"contact us": {}, "our people": {}, "staff": {}, "team": {},
	"meet the team": {}, "leadership team": {}, "our leadership": {},
}

var bioDenylist = []string{
	"specialty", "invisalign", "services", "bio", "treatment", "procedure",
	"patients", "experience", "years", "graduated", "degree", "certified",
	"insurance",
}

var marketingPhrases = []string{
	"welcome to", "new patients", "learn more", "read more", "contact us",
	"call us", "schedule", "book an appointment", "click here", "our services",
}

// Tokens that never appear in a person's name but often in capitalized
// section copy ("Meet Our Dentists", "Office Hours").
var nameNoise = map[string]struct{}{
	"our": {}, "team": {}, "staff": {}, "meet": {}, "about": {}, "contact": {},
	"welcome": {}, "services": {}, "office": {}, "hours": {}, "call": {},
	"learn": {}, "read": {}, "more": {}, "home": {}, "location": {},
	"locations": {}, "appointment": {}, "appointments": {}, "patients": {},
	"new": {}, "click": {}, "here": {}, "us": {}, "the": {}, "and": {},
	"of": {}, "for": {}, "with": {}, "your": {}, "leadership": {},
}

// ValidName reports whether s looks like a person's name: two to four
// capitalized word tokens and no section-copy words.
func ValidName(s string) bool {
	tokens := strings.Fields(s)
	if len(tokens) < 2 || len(tokens) > maxNameTokens {
		return false
	}
	for _, t := range tokens {
		if !nameTokenRe.MatchString(t) || !hasLower(t) {
			return false
		}
		if _, noisy := nameNoise[strings.ToLower(strings.TrimSuffix(t, "."))]; noisy {
			return false
		}
	}
	return !IsGenericLabel(s)
}

// IsGenericLabel reports whether s is a section heading such as "Meet Our Team".
func IsGenericLabel(s string) bool {
	key := strings.ToLower(collapse(strings.Trim(s, " :.!-–")))
	_, ok := genericLabels[key]
	return ok
}

// ValidRolePhrase reports whether s is a short job-title phrase rather than
// bio or marketing copy.
func ValidRolePhrase(s string, maxWords int) bool {
	n := len(strings.Fields(s))
	if n == 0 || n > maxWords {
		return false
	}
	lower := strings.ToLower(s)
	for _, w := range bioDenylist {
		if strings.Contains(lower, w) {
			return false
		}
	}
	for _, p := range marketingPhrases {
		if strings.Contains(lower, p) {
			return false
		}
	}
	return true
}

// validator is the single filter every pass's output goes through.
type validator struct {
	roles roleMatcher
}

func (v validator) valid(c enrich.Candidate) bool {
	switch c.Source {
	case enrich.SourceImage:
		return strings.TrimSpace(c.Name) != "" && strings.TrimSpace(c.Role) != ""
	case enrich.SourceStructural:
		return v.validPerson(c, maxStructuralRoleWords)
	default:
		return v.validPerson(c, maxLineRoleWords)
	}
}

func (v validator) validPerson(c enrich.Candidate, maxRoleWords int) bool {
	if !ValidName(c.Name) {
		return false
	}
	// "Office Manager" above "Practice Manager" is a title, not a name.
	if _, ok := v.roles.match(c.Name); ok {
		return false
	}
	if _, ok := v.roles.match(c.Role); !ok {
		return false
	}
	return ValidRolePhrase(c.Role, maxRoleWords)
}

func hasLower(s string) bool {
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			return true
		}
	}
	return false
}
