package extract

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// SubpageKeywords mark links worth following for staff listings.
var SubpageKeywords = []string{
	"about", "team", "staff", "doctors", "leadership", "providers", "who-we-are", "our-people",
}

// DiscoverSubpages parses rawHTML and returns its staff-page links resolved
// against baseURL.
func DiscoverSubpages(rawHTML, baseURL string) []string {
	d, err := Parse(baseURL, rawHTML)
	if err != nil {
		return nil
	}
	return d.Subpages()
}

// Subpages returns site-internal links whose path mentions a SubpageKeywords
// entry, resolved against the document URL with fragments removed, in
// discovery order and without repeats. Absolute and protocol-relative links
// are ignored, which keeps the crawl to one hop on the same site.
func (d *Document) Subpages() []string {
	if d == nil || d.doc == nil {
		return nil
	}
	base, err := url.Parse(strings.TrimSpace(d.URL))
	if err != nil {
		return nil
	}
	var out []string
	seen := map[string]struct{}{}
	d.doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		href = strings.TrimSpace(href)
		if !isRelativeLink(href) {
			return
		}
		ref, err := url.Parse(href)
		if err != nil || ref.Scheme != "" || ref.Host != "" {
			return
		}
		if !hasSubpageKeyword(ref.Path) {
			return
		}
		abs := base.ResolveReference(ref)
		abs.Fragment = ""
		abs.RawFragment = ""
		key := abs.String()
		if _, ok := seen[key]; ok {
			return
		}
		seen[key] = struct{}{}
		out = append(out, key)
	})
	return out
}

func isRelativeLink(href string) bool {
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "//") {
		return false
	}
	lower := strings.ToLower(href)
	for _, p := range []string{"mailto:", "tel:", "javascript:", "data:"} {
		if strings.HasPrefix(lower, p) {
			return false
		}
	}
	return true
}

func hasSubpageKeyword(path string) bool {
	lower := strings.ToLower(path)
	for _, k := range SubpageKeywords {
		if strings.Contains(lower, k) {
			return true
		}
	}
	return false
}
