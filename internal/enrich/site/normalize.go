package site

import (
	"strings"

	"github.com/shpitdev/leadfinder/internal/enrich"
)

// NormalizeURL turns a spreadsheet website cell into a fetchable URL. Empty
// cells and the literal "nan" yield enrich.ErrInvalidURL; a missing scheme
// becomes http://.
// No DNS or syntax validation happens here.
func NormalizeURL(raw string) (string, error) {
	s := strings.TrimSpace(raw)
	if s == "" || strings.EqualFold(s, "nan") {
		return "", enrich.ErrInvalidURL
	}
	lower := strings.ToLower(s)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return s, nil
	}
	return "http://" + s, nil
}
