package redact

import (
	"regexp"
	"strings"
)

var (
	// Matches "Bearer <token>" (JWTs and opaque tokens).
	bearerTokenRe = regexp.MustCompile(`(?i)\bBearer\s+[^\s"']+`)

	// Common key=value formats that sometimes leak in error strings.
	apiKeyKVRe = regexp.MustCompile(`(?i)\b(api[_-]?key|gemini[_-]?api[_-]?key|places[_-]?api[_-]?key)\b\s*[:=]\s*[^\s"'&]+`)

	// Places API requests carry the key as a query parameter, and *url.Error
	// strings include the full request URL.
	queryKeyRe = regexp.MustCompile(`([?&])key=[^\s"'&]+`)

	// Google API keys have a fixed prefix; catch them anywhere.
	googleKeyRe = regexp.MustCompile(`\bAIza[0-9A-Za-z_\-]{20,}`)
)

// Secrets removes obvious secret-bearing substrings from error/log strings.
func Secrets(s string) string {
	if s == "" {
		return ""
	}
	out := s
	out = bearerTokenRe.ReplaceAllString(out, "Bearer <redacted>")
	out = apiKeyKVRe.ReplaceAllString(out, "<redacted_kv>")
	out = queryKeyRe.ReplaceAllString(out, "${1}key=<redacted>")
	out = googleKeyRe.ReplaceAllString(out, "<redacted_key>")
	return strings.TrimSpace(out)
}
