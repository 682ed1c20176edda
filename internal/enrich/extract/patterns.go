package extract

import (
	"regexp"
	"strings"

	"github.com/nyaruka/phonenumbers"
)

var (
	emailRe  = regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)
	mailtoRe = regexp.MustCompile(`(?i)mailto:([^"'\s<>?]+)`)
	phoneRe  = regexp.MustCompile(`(?:\+?1[\s.\-]?)?(?:\(\d{3}\)|\d{3})[\s.\-]?\d{3}[\s.\-]?\d{4}`)
)

// Asset names like logo@2x.png look like addresses.
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg"}

func usableEmail(e string) bool {
	e = strings.ToLower(e)
	if strings.HasSuffix(e, "example.com") {
		return false
	}
	for _, s := range assetSuffixes {
		if strings.HasSuffix(e, s) {
			return false
		}
	}
	return true
}

// Emails returns the usable email addresses in text, lower-cased, in order of
// first appearance.
func Emails(text string) []string {
	var out []string
	seen := map[string]struct{}{}
	for _, m := range emailRe.FindAllString(text, -1) {
		m = strings.ToLower(strings.Trim(m, "."))
		if !usableEmail(m) {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

func firstEmail(text string) string {
	if es := Emails(text); len(es) > 0 {
		return es[0]
	}
	return ""
}

// Phone returns the first North American phone number in text, in E.164 form
// when it is a valid US number.
func Phone(text string) string {
	for _, loc := range phoneRe.FindAllStringIndex(text, -1) {
		if loc[0] > 0 && isDigit(text[loc[0]-1]) {
			continue
		}
		if loc[1] < len(text) && isDigit(text[loc[1]]) {
			continue
		}
		return NormalizePhone(text[loc[0]:loc[1]])
	}
	return ""
}

// NormalizePhone formats raw as E.164 when it parses as a valid US number and
// returns it trimmed otherwise.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	num, err := phonenumbers.Parse(raw, "US")
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return raw
	}
	return phonenumbers.Format(num, phonenumbers.E164)
}

func isDigit(b byte) bool { return b >= '0' && b <= '9' }

// roleMatcher finds role keywords in text. Keywords of three letters or fewer
// ("md", "ceo") must stand alone as words.
type roleMatcher struct {
	roles []string
	short map[string]*regexp.Regexp
}

func newRoleMatcher(roles []string) roleMatcher {
	m := roleMatcher{short: map[string]*regexp.Regexp{}}
	for _, r := range roles {
		r = strings.ToLower(strings.TrimSpace(r))
		if r == "" {
			continue
		}
		m.roles = append(m.roles, r)
		if len(r) <= 3 {
			m.short[r] = regexp.MustCompile(`\b` + regexp.QuoteMeta(r) + `\b`)
		}
	}
	return m
}

// match returns the first role keyword found in text.
func (m roleMatcher) match(text string) (string, bool) {
	lower := strings.ToLower(text)
	for _, r := range m.roles {
		if re, ok := m.short[r]; ok {
			if re.MatchString(lower) {
				return r, true
			}
			continue
		}
		if strings.Contains(lower, r) {
			return r, true
		}
	}
	return "", false
}
